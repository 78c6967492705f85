package stereo

import (
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/stereodepth/stereo/rimage/transform"
)

type testScene struct {
	images   []*ImageDescriptor
	matcher  *PrecomputedMatcher
	points   []r3.Vector
	outliers map[int]bool
}

func testCalibration() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		500, 0, 320,
		0, 500, 240,
		0, 0, 1,
	})
}

func rotationY(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

func projectPoint(k, rot *mat.Dense, t, x r3.Vector) transform.Feature {
	var xv mat.VecDense
	xv.MulVec(rot, mat.NewVecDense(3, []float64{x.X, x.Y, x.Z}))
	cam := r3.Vector{X: xv.AtVec(0) + t.X, Y: xv.AtVec(1) + t.Y, Z: xv.AtVec(2) + t.Z}
	var pv mat.VecDense
	pv.MulVec(k, mat.NewVecDense(3, []float64{cam.X, cam.Y, cam.Z}))
	return transform.NewFeature(pv.AtVec(0)/pv.AtVec(2), pv.AtVec(1)/pv.AtVec(2))
}

// newTestScene builds three images of n points seen from camera "left". "right" sees every point,
// with the first nOutliers of its features moved to random pixels. "far" only shares the first
// 20 points (fewer when n is smaller) with "left" and none with "right".
func newTestScene(seed uint64, n, nOutliers int) *testScene {
	rng := rand.New(rand.NewPCG(seed, seed+1)) //nolint:gosec
	k := testCalibration()
	identity := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	rotRight := rotationY(-0.1)
	tRight := r3.Vector{X: -1, Y: 0, Z: 0}
	rotFar := rotationY(0.2)
	tFar := r3.Vector{X: 1.5, Y: 0.2, Z: 0.3}

	nFar := min(n, 20)
	scene := &testScene{outliers: map[int]bool{}}
	left := &ImageDescriptor{Name: "left", Calibration: k}
	right := &ImageDescriptor{Name: "right", Calibration: k}
	far := &ImageDescriptor{Name: "far", Calibration: k}
	for i := 0; i < n; i++ {
		x := r3.Vector{
			X: 4*rng.Float64() - 2,
			Y: 3*rng.Float64() - 1.5,
			Z: 4 + 4*rng.Float64(),
		}
		scene.points = append(scene.points, x)
		left.Features = append(left.Features, projectPoint(k, identity, r3.Vector{}, x))
		f := projectPoint(k, rotRight, tRight, x)
		if i < nOutliers {
			f = transform.NewFeature(640*rng.Float64(), 480*rng.Float64())
			scene.outliers[i] = true
		}
		right.Features = append(right.Features, f)
		if i < nFar {
			far.Features = append(far.Features, projectPoint(k, rotFar, tFar, x))
		}
	}

	scene.matcher = NewPrecomputedMatcher()
	identityMatches := make([]Match, n)
	for i := range identityMatches {
		identityMatches[i] = Match{A: i, B: i}
	}
	scene.matcher.Add("left", "right", identityMatches)
	scene.matcher.Add("left", "far", identityMatches[:nFar])
	scene.images = []*ImageDescriptor{left, right, far}
	return scene
}

type recordingObserver struct {
	fundamentals []PairKey
	poses        []PairKey
	points       map[PairKey]int
	missingF     bool
	missingPose  bool
}

func (o *recordingObserver) OnFundamental(pair *StereoPair) {
	o.fundamentals = append(o.fundamentals, pair.Key)
	if pair.F == nil || pair.E == nil {
		o.missingF = true
	}
}

func (o *recordingObserver) OnPose(pair *StereoPair) {
	o.poses = append(o.poses, pair.Key)
	if pair.Pose == nil {
		o.missingPose = true
	}
}

func (o *recordingObserver) OnTriangulated(pair *StereoPair, points []TriangulatedPoint) {
	if o.points == nil {
		o.points = map[PairKey]int{}
	}
	o.points[pair.Key] = len(points)
}
