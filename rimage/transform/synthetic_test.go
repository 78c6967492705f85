package transform

import (
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// syntheticScene is a pair of calibrated cameras looking at points in front of both.
type syntheticScene struct {
	kA, kB   *mat.Dense
	pose     *Pose
	pointsA  []r3.Vector
	corrs    []Correspondence
	outliers map[int]bool
}

func testCameraMatrix() *mat.Dense {
	intrinsics := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 510, Ppx: 320, Ppy: 240}
	return intrinsics.GetCameraMatrix()
}

// rotationXYZ returns Rz * Ry * Rx.
func rotationXYZ(rx, ry, rz float64) *mat.Dense {
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)
	Rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, cx, -sx, 0, sx, cx})
	Ry := mat.NewDense(3, 3, []float64{cy, 0, sy, 0, 1, 0, -sy, 0, cy})
	Rz := mat.NewDense(3, 3, []float64{cz, -sz, 0, sz, cz, 0, 0, 0, 1})
	var R mat.Dense
	R.Mul(Rz, Ry)
	R.Mul(&R, Rx)
	return &R
}

func testPose() *Pose {
	return NewPose(rotationXYZ(0.05, -0.12, 0.03), r3.Vector{X: -1, Y: 0.1, Z: 0.05}.Normalize())
}

func project(k mat.Matrix, x r3.Vector) r2.Point {
	p := mulVec(k, x)
	return r2.Point{X: p.X / p.Z, Y: p.Y / p.Z}
}

// newSyntheticScene generates n points in front of both cameras. Every point's observation in
// image B is replaced by a random pixel with probability outlierRatio, and Gaussian noise with
// standard deviation noisePx is added to inlier observations.
func newSyntheticScene(rng *rand.Rand, n int, outlierRatio, noisePx float64) *syntheticScene {
	scene := &syntheticScene{
		kA:       testCameraMatrix(),
		kB:       testCameraMatrix(),
		pose:     testPose(),
		outliers: map[int]bool{},
	}
	for len(scene.corrs) < n {
		xA := r3.Vector{
			X: -2 + 4*rng.Float64(),
			Y: -1.5 + 3*rng.Float64(),
			Z: 4 + 4*rng.Float64(),
		}
		xB := scene.pose.Transform(xA)
		if xB.Z < 1 {
			continue
		}
		pA := project(scene.kA, xA)
		pB := project(scene.kB, xB)
		i := len(scene.corrs)
		if rng.Float64() < outlierRatio {
			pB = r2.Point{X: 640 * rng.Float64(), Y: 480 * rng.Float64()}
			scene.outliers[i] = true
		} else if noisePx > 0 {
			pA = pA.Add(r2.Point{X: noisePx * rng.NormFloat64(), Y: noisePx * rng.NormFloat64()})
			pB = pB.Add(r2.Point{X: noisePx * rng.NormFloat64(), Y: noisePx * rng.NormFloat64()})
		}
		scene.pointsA = append(scene.pointsA, xA)
		scene.corrs = append(scene.corrs, NewCorrespondence(pA.X, pA.Y, pB.X, pB.Y))
	}
	return scene
}

func (s *syntheticScene) essential() *mat.Dense {
	return s.pose.EssentialMatrix()
}

func (s *syntheticScene) rays(i int) (r3.Vector, r3.Vector) {
	c := s.corrs[i]
	kAInv, err := invert3x3(s.kA, "A")
	if err != nil {
		panic(err)
	}
	kBInv, err := invert3x3(s.kB, "B")
	if err != nil {
		panic(err)
	}
	return mulVec(kAInv, homogeneous(c.A.Point)), mulVec(kBInv, homogeneous(c.B.Point))
}

func newTestRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
