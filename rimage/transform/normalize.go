package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// minMeanDistance is the smallest mean distance to the centroid that can still be rescaled.
const minMeanDistance = 1e-12

// NormalizeCorrespondences normalizes the points of each image in place as described in
// Multiple View Geometry, Alg 11.1: every image's points are moved so that their centroid is the
// origin and scaled so that their mean distance to the origin is sqrt(2). It returns the
// similarity transforms T1 (image A) and T2 (image B) mapping original to normalized points.
// On error the correspondences are left untouched.
func NormalizeCorrespondences(corrs []Correspondence) (*mat.Dense, *mat.Dense, error) {
	if len(corrs) == 0 {
		return nil, nil, errors.Wrap(ErrInsufficientData, "cannot normalize an empty correspondence list")
	}
	nPoints := float64(len(corrs))

	// centroid of points in each image
	var mu1, mu2 r2.Point
	for _, c := range corrs {
		mu1 = mu1.Add(c.A.Point)
		mu2 = mu2.Add(c.B.Point)
	}
	mu1 = mu1.Mul(1. / nPoints)
	mu2 = mu2.Mul(1. / nPoints)

	// mean distance to the centroid
	d1, d2 := 0.0, 0.0
	for _, c := range corrs {
		d1 += c.A.Point.Sub(mu1).Norm() / nPoints
		d2 += c.B.Point.Sub(mu2).Norm() / nPoints
	}
	if d1 < minMeanDistance || d2 < minMeanDistance {
		return nil, nil, errors.Wrapf(ErrNumericDegeneracy,
			"all points coincide (mean distances to centroid %g and %g)", d1, d2)
	}
	scale1 := math.Sqrt2 / d1
	scale2 := math.Sqrt2 / d2

	for i := range corrs {
		corrs[i].A.Point = corrs[i].A.Point.Sub(mu1).Mul(scale1)
		corrs[i].B.Point = corrs[i].B.Point.Sub(mu2).Mul(scale2)
	}
	return similarityTransform(scale1, mu1), similarityTransform(scale2, mu2), nil
}

// similarityTransform returns the matrix that translates by -mu then scales by s.
func similarityTransform(s float64, mu r2.Point) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		s, 0, -s * mu.X,
		0, s, -s * mu.Y,
		0, 0, 1,
	})
}
