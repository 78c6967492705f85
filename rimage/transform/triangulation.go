package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/stereodepth/stereo/utils"
)

const (
	// parallelTol is the tolerance below which two rays are considered parallel.
	parallelTol = 1e-12
	// branchTol selects the closed-form branch of the depth solve.
	branchTol = 1e-9
	minRayZ   = 1e-12
)

// CorrectCorrespondence moves a pair of calibrated homogeneous points (third coordinate 1) the
// minimal distance onto the epipolar constraint xB^T * E * xA = 0, using one iteration of
// Lindstrom's "Triangulation made easy" (niter1).
func CorrectCorrespondence(essMat mat.Matrix, xA, xB r3.Vector) (r3.Vector, r3.Vector, error) {
	if err := check3x3(essMat, "essential"); err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	// S keeps the first two coordinates, E2 is the top-left 2x2 block of E
	ea := mulVec(essMat, xA)
	eb := mulTransposeVec(essMat, xB)
	n := r2.Point{X: ea.X, Y: ea.Y}
	nPrime := r2.Point{X: eb.X, Y: eb.Y}
	e2 := func(p r2.Point) r2.Point {
		return r2.Point{
			X: essMat.At(0, 0)*p.X + essMat.At(0, 1)*p.Y,
			Y: essMat.At(1, 0)*p.X + essMat.At(1, 1)*p.Y,
		}
	}
	e2T := func(p r2.Point) r2.Point {
		return r2.Point{
			X: essMat.At(0, 0)*p.X + essMat.At(1, 0)*p.Y,
			Y: essMat.At(0, 1)*p.X + essMat.At(1, 1)*p.Y,
		}
	}

	a := n.Dot(e2(nPrime))
	b := 0.5 * (n.Dot(n) + nPrime.Dot(nPrime))
	c := xB.Dot(ea)
	disc := b*b - a*c
	if disc < 0 {
		return r3.Vector{}, r3.Vector{}, errors.Wrapf(ErrNumericDegeneracy,
			"negative discriminant %g in optimal correction", disc)
	}
	d := math.Sqrt(disc)
	if c == 0 || b+d == 0 {
		return xA, xB, nil
	}

	lambda := c / (b + d)
	dx := n.Mul(lambda)
	dxPrime := nPrime.Mul(lambda)
	n = n.Sub(e2(dxPrime))
	nPrime = nPrime.Sub(e2T(dx))

	norm := n.Dot(n) + nPrime.Dot(nPrime)
	if norm == 0 {
		return xA, xB, nil
	}
	lambda *= 2 * d / norm
	dx = n.Mul(lambda)
	dxPrime = nPrime.Mul(lambda)

	correctedB := r3.Vector{X: xB.X - dx.X, Y: xB.Y - dx.Y, Z: xB.Z}
	correctedA := r3.Vector{X: xA.X - dxPrime.X, Y: xA.Y - dxPrime.Y, Z: xA.Z}
	return correctedA, correctedB, nil
}

// closestApproach corrects both rays and returns the parameters of the closest points on the ray
// t + lambda*u through camera A's center and the ray mu*v through camera B's center, both written
// in camera B's frame with u and v of unit length.
func closestApproach(essMat mat.Matrix, pose *Pose, rayA, rayB r3.Vector) (lambda, mu float64, u, v r3.Vector, err error) {
	if pose == nil || pose.Rotation == nil {
		return 0, 0, u, v, errors.New("pose is nil")
	}
	if math.Abs(rayA.Z) < minRayZ || math.Abs(rayB.Z) < minRayZ {
		return 0, 0, u, v, errors.Wrap(ErrTriangulationFailure, "ray is parallel to the image plane")
	}
	xA, xB, err := CorrectCorrespondence(essMat, rayA.Mul(1/rayA.Z), rayB.Mul(1/rayB.Z))
	if err != nil {
		return 0, 0, u, v, err
	}

	u = mulVec(pose.Rotation, xA).Normalize()
	v = xB.Normalize()
	t := pose.Translation

	a := u.Dot(t)
	b := u.Dot(u)
	c := u.Dot(v)
	d := v.Dot(t)
	e := v.Dot(v)
	det := c*c - b*e
	if utils.Float64AlmostEqual(det, 0, parallelTol) {
		return 0, 0, u, v, errors.Wrapf(ErrTriangulationFailure, "rays are parallel (determinant %g)", det)
	}
	if math.Abs(c) < branchTol {
		lambda = (a*e - c*d) / det
		mu = (lambda*c + d) / e
	} else {
		mu = (a*c - b*d) / det
		lambda = (mu*c - a) / b
	}
	return lambda, mu, u, v, nil
}

// TriangulateDepths returns the signed distances of the triangulated point along the unit rays
// of camera A and camera B. Rays are calibrated homogeneous image points, K^-1 * (x, y, 1).
// A negative depth means the point lies behind that camera for the given pose.
func TriangulateDepths(essMat mat.Matrix, pose *Pose, rayA, rayB r3.Vector) (float64, float64, error) {
	lambda, mu, _, _, err := closestApproach(essMat, pose, rayA, rayB)
	if err != nil {
		return 0, 0, err
	}
	return lambda, mu, nil
}

// TriangulatePoint returns the midpoint of closest approach of the two corrected rays, in camera
// A's frame, together with the depths along each ray.
func TriangulatePoint(essMat mat.Matrix, pose *Pose, rayA, rayB r3.Vector) (r3.Vector, float64, float64, error) {
	lambda, mu, u, v, err := closestApproach(essMat, pose, rayA, rayB)
	if err != nil {
		return r3.Vector{}, 0, 0, err
	}
	onA := pose.Translation.Add(u.Mul(lambda))
	onB := v.Mul(mu)
	midB := onA.Add(onB).Mul(0.5)
	// X_A = R^T * (X_B - t)
	midA := mulTransposeVec(pose.Rotation, midB.Sub(pose.Translation))
	return midA, lambda, mu, nil
}

// ReprojectionError projects a point given in camera A's frame with the calibration matrix kA and
// returns its pixel distance to the observed location. A point on the camera plane returns +Inf.
func ReprojectionError(kA mat.Matrix, x r3.Vector, observed r2.Point) float64 {
	p := mulVec(kA, x)
	if math.Abs(p.Z) < minRayZ {
		return math.Inf(1)
	}
	projected := r2.Point{X: p.X / p.Z, Y: p.Y / p.Z}
	return projected.Sub(observed).Norm()
}
