package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// UnsetDepth is the depth of a feature that has not been triangulated yet.
var UnsetDepth = math.NaN()

// Feature is an image location plus the signed distance along its camera ray, once triangulated.
type Feature struct {
	Point r2.Point
	Depth float64
}

// NewFeature returns a feature at (x, y) with an unset depth.
func NewFeature(x, y float64) Feature {
	return Feature{Point: r2.Point{X: x, Y: y}, Depth: UnsetDepth}
}

// HasDepth reports whether the feature has been triangulated.
func (f Feature) HasDepth() bool {
	return !math.IsNaN(f.Depth)
}

// Correspondence is a pair of features in image A and image B believed to depict the same 3D point.
type Correspondence struct {
	A Feature
	B Feature
}

// NewCorrespondence builds a correspondence from pixel coordinates in image A and image B.
func NewCorrespondence(xA, yA, xB, yB float64) Correspondence {
	return Correspondence{A: NewFeature(xA, yA), B: NewFeature(xB, yB)}
}

// CorrespondencesFromPoints zips two equally sized point lists into correspondences.
func CorrespondencesFromPoints(pts1, pts2 []r2.Point) ([]Correspondence, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	corrs := make([]Correspondence, len(pts1))
	for i := range pts1 {
		corrs[i] = NewCorrespondence(pts1[i].X, pts1[i].Y, pts2[i].X, pts2[i].Y)
	}
	return corrs, nil
}

func homogeneous(pt r2.Point) r3.Vector {
	return r3.Vector{X: pt.X, Y: pt.Y, Z: 1}
}

func copyCorrespondences(corrs []Correspondence) []Correspondence {
	pairs := make([]Correspondence, len(corrs))
	copy(pairs, corrs)
	return pairs
}
