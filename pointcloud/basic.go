package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

type pointAndNormal struct {
	p, n r3.Vector
}

// basicPointCloud is the basic implementation of the PointCloud interface backed by a slice.
type basicPointCloud struct {
	points []pointAndNormal
	meta   MetaData
}

// New returns an empty PointCloud backed by a basicPointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointCloud backed by a basicPointCloud.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points: make([]pointAndNormal, 0, size),
		meta:   NewMetaData(),
	}
}

// NewFromPoints builds a cloud whose normals point from the origin towards each point, which is
// the viewing direction of the camera the points are expressed in.
func NewFromPoints(pts []r3.Vector) (PointCloud, error) {
	cloud := NewWithPrealloc(len(pts))
	for _, p := range pts {
		if err := cloud.Set(p, p.Normalize()); err != nil {
			return nil, err
		}
	}
	return cloud, nil
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

// Set validates that the point is finite before adding it to the cloud.
func (cloud *basicPointCloud) Set(p, normal r3.Vector) error {
	if !isFinite(p) || !isFinite(normal) {
		return errors.Errorf("NaN or infinite value detected in point %v with normal %v", p, normal)
	}
	cloud.points = append(cloud.points, pointAndNormal{p: p, n: normal})
	cloud.meta.Merge(p)
	return nil
}

func (cloud *basicPointCloud) Iterate(fn func(p, normal r3.Vector) bool) {
	for _, pn := range cloud.points {
		if !fn(pn.p, pn.n) {
			return
		}
	}
}

func isFinite(v r3.Vector) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
