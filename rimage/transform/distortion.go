package transform

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/stereodepth/stereo/utils"
)

// DistortionType is the name of the distortion model.
type DistortionType string

// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
const BrownConradyDistortionType = DistortionType("brown_conrady")

// Distorter maps between undistorted and distorted normalized image coordinates.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Distort(x, y float64) (float64, float64)
	Undistort(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

// BrownConrady is the radial (k1, k2, k3) and tangential (p1, p2) lens distortion model:
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x*y + p1*(r² + 2*y²)
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order.
// Missing trailing parameters are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	params := make([]float64, 5)
	copy(params, inp)
	return &BrownConrady{params[0], params[1], params[2], params[3], params[4]}, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// Distort applies the model to an undistorted normalized point.
func (bc *BrownConrady) Distort(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := utils.Square(x) + utils.Square(y)
	radial := 1 + bc.RadialK1*r2 + bc.RadialK2*r2*r2 + bc.RadialK3*r2*r2*r2
	xd := x*radial + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*radial + 2*bc.TangentialP2*x*y + bc.TangentialP1*(r2+2*y*y)
	return xd, yd
}

// Undistort inverts Distort with Newton-Raphson iterations started at the distorted point.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	if bc == nil {
		return xd, yd
	}
	const (
		maxIterations = 20
		tolerance     = 1e-12
	)
	x, y := xd, yd
	for i := 0; i < maxIterations; i++ {
		ex, ey := bc.Distort(x, y)
		ex -= xd
		ey -= yd
		if utils.Square(ex)+utils.Square(ey) < utils.Square(tolerance) {
			break
		}

		r2 := utils.Square(x) + utils.Square(y)
		radial := 1 + bc.RadialK1*r2 + bc.RadialK2*r2*r2 + bc.RadialK3*r2*r2*r2
		// d(radial)/dx = x*dRadial, d(radial)/dy = y*dRadial
		dRadial := 2 * (bc.RadialK1 + 2*bc.RadialK2*r2 + 3*bc.RadialK3*r2*r2)
		jxx := radial + x*x*dRadial + 2*bc.TangentialP1*y + 6*bc.TangentialP2*x
		jxy := x*y*dRadial + 2*bc.TangentialP1*x + 2*bc.TangentialP2*y
		jyx := x*y*dRadial + 2*bc.TangentialP2*y + 2*bc.TangentialP1*x
		jyy := radial + y*y*dRadial + 2*bc.TangentialP2*x + 6*bc.TangentialP1*y

		det := jxx*jyy - jxy*jyx
		if det == 0 {
			break
		}
		x -= (jyy*ex - jxy*ey) / det
		y -= (-jyx*ex + jxx*ey) / det
	}
	return x, y
}

// UndistortPoints removes the lens distortion of pixel locations seen by a camera with the
// calibration matrix k.
func UndistortPoints(k mat.Matrix, d Distorter, pts []r2.Point) ([]r2.Point, error) {
	if d == nil {
		return pts, nil
	}
	if err := d.CheckValid(); err != nil {
		return nil, err
	}
	rays, err := PixelsToRays(k, pts)
	if err != nil {
		return nil, err
	}
	out := make([]r2.Point, len(rays))
	for i, ray := range rays {
		x, y := d.Undistort(ray.X/ray.Z, ray.Y/ray.Z)
		p := mulVec(k, homogeneous(r2.Point{X: x, Y: y}))
		out[i] = r2.Point{X: p.X / p.Z, Y: p.Y / p.Z}
	}
	return out, nil
}
