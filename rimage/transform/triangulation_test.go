package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestCorrectCorrespondence(t *testing.T) {
	scene := newSyntheticScene(newTestRand(6), 50, 0, 1)
	E := scene.essential()
	for i := range scene.corrs {
		rayA, rayB := scene.rays(i)
		xA, xB, err := CorrectCorrespondence(E, rayA, rayB)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, math.Abs(xB.Dot(mulVec(E, xA))), test.ShouldBeLessThan, 1e-9)
		test.That(t, xA.Z, test.ShouldEqual, rayA.Z)
		test.That(t, xB.Z, test.ShouldEqual, rayB.Z)
		// a one pixel perturbation stays a few pixels away
		test.That(t, xA.Sub(rayA).Norm(), test.ShouldBeLessThan, 0.02)
		test.That(t, xB.Sub(rayB).Norm(), test.ShouldBeLessThan, 0.02)
	}

	// consistent points are left alone
	exact := newSyntheticScene(newTestRand(6), 5, 0, 0)
	rayA, rayB := exact.rays(0)
	xA, xB, err := CorrectCorrespondence(exact.essential(), rayA, rayB)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, xA.Sub(rayA).Norm(), test.ShouldBeLessThan, 1e-12)
	test.That(t, xB.Sub(rayB).Norm(), test.ShouldBeLessThan, 1e-12)
}

func TestTriangulateRoundTrip(t *testing.T) {
	scene := newSyntheticScene(newTestRand(7), 50, 0, 0)
	E := scene.essential()
	for i, xA := range scene.pointsA {
		rayA, rayB := scene.rays(i)
		depthA, depthB, err := TriangulateDepths(E, scene.pose, rayA, rayB)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, depthA, test.ShouldAlmostEqual, xA.Norm(), 1e-6*xA.Norm())
		xB := scene.pose.Transform(xA)
		test.That(t, depthB, test.ShouldAlmostEqual, xB.Norm(), 1e-6*xB.Norm())

		x, dA, dB, err := TriangulatePoint(E, scene.pose, rayA, rayB)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dA, test.ShouldEqual, depthA)
		test.That(t, dB, test.ShouldEqual, depthB)
		test.That(t, x.Sub(xA).Norm(), test.ShouldBeLessThan, 1e-6)
		test.That(t, ReprojectionError(scene.kA, x, scene.corrs[i].A.Point), test.ShouldBeLessThan, 1e-6)
	}
}

func TestTriangulateNoiseGrowth(t *testing.T) {
	meanRelativeError := func(noisePx float64) float64 {
		// the same seed gives the same noise directions at every level
		scene := newSyntheticScene(newTestRand(8), 100, 0, noisePx)
		E := scene.essential()
		sum := 0.0
		for i, xA := range scene.pointsA {
			rayA, rayB := scene.rays(i)
			depthA, _, err := TriangulateDepths(E, scene.pose, rayA, rayB)
			test.That(t, err, test.ShouldBeNil)
			sum += math.Abs(depthA-xA.Norm()) / xA.Norm()
		}
		return sum / float64(len(scene.pointsA))
	}

	small := meanRelativeError(0.1)
	large := meanRelativeError(0.8)
	test.That(t, small, test.ShouldBeGreaterThan, 0)
	test.That(t, large, test.ShouldBeLessThan, 0.05)
	// eight times the noise: the error is first order in the noise, and the second order term
	// stays within 10% at sub-pixel noise
	test.That(t, large/small, test.ShouldBeBetween, 4, 8*1.1)
}

func TestTriangulateSignedDepth(t *testing.T) {
	scene := newSyntheticScene(newTestRand(9), 5, 0, 0)
	E := scene.essential()
	flipped := NewPose(scene.pose.Rotation, scene.pose.Translation.Mul(-1))
	rayA, rayB := scene.rays(0)
	depthA, depthB, err := TriangulateDepths(E, flipped, rayA, rayB)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depthA, test.ShouldBeLessThan, 0)
	test.That(t, depthB, test.ShouldBeLessThan, 0)

	// the reprojection does not depend on the sign of the translation
	x, _, _, err := TriangulatePoint(E, flipped, rayA, rayB)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ReprojectionError(scene.kA, x, scene.corrs[0].A.Point), test.ShouldBeLessThan, 1e-6)
}

func TestTriangulateFailures(t *testing.T) {
	// with no rotation, equal rays never meet
	pose := NewPose(eye(3), r3.Vector{X: 1})
	E := pose.EssentialMatrix()
	ray := r3.Vector{X: 0.1, Y: 0.2, Z: 1}
	_, _, err := TriangulateDepths(E, pose, ray, ray)
	test.That(t, errors.Is(err, ErrTriangulationFailure), test.ShouldBeTrue)

	_, _, err = TriangulateDepths(E, pose, r3.Vector{X: 1}, ray)
	test.That(t, errors.Is(err, ErrTriangulationFailure), test.ShouldBeTrue)

	_, _, err = TriangulateDepths(E, nil, ray, ray)
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = CorrectCorrespondence(mat.NewDense(2, 2, nil), ray, ray)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, math.IsInf(ReprojectionError(eye(3), r3.Vector{X: 1}, r2.Point{}), 1), test.ShouldBeTrue)
}
