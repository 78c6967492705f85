package stereo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/stereodepth/stereo/logging"
	"github.com/stereodepth/stereo/rimage/transform"
)

func writeScene(t *testing.T, scene *sceneFile) string {
	t.Helper()
	data, err := json.Marshal(scene)
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(t.TempDir(), "scene.json")
	test.That(t, os.WriteFile(path, data, 0o600), test.ShouldBeNil)
	return path
}

func featurePoints(features []transform.Feature) [][2]float64 {
	return lo.Map(features, func(f transform.Feature, _ int) [2]float64 {
		return [2]float64{f.Point.X, f.Point.Y}
	})
}

func TestLoadScene(t *testing.T) {
	synthetic := newTestScene(13, 60, 0)
	// P = K [R | t] for the right camera
	rt := mat.NewDense(3, 4, nil)
	rt.Slice(0, 3, 0, 3).(*mat.Dense).Copy(rotationY(-0.1))
	rt.Set(0, 3, -1)
	var P mat.Dense
	P.Mul(testCalibration(), rt)
	pairs := make([][2]int, 60)
	for i := range pairs {
		pairs[i] = [2]int{i, i}
	}
	path := writeScene(t, &sceneFile{
		Images: []sceneImage{
			{
				Name:       "left",
				Intrinsics: &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240},
				Features:   featurePoints(synthetic.images[0].Features),
			},
			{
				Name:       "right",
				Projection: P.RawMatrix().Data,
				Features:   featurePoints(synthetic.images[1].Features),
			},
		},
		Matches: []sceneMatches{{A: "right", B: "left", Pairs: pairs}},
	})

	images, matcher, err := LoadScene(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, images, test.ShouldHaveLength, 2)
	test.That(t, images[0].Name, test.ShouldEqual, "left")
	test.That(t, images[0].Features, test.ShouldHaveLength, 60)
	test.That(t, images[0].Features[0].HasDepth(), test.ShouldBeFalse)
	test.That(t, mat.EqualApprox(images[0].Calibration, testCalibration(), 1e-12), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(images[1].Calibration, testCalibration(), 1e-6), test.ShouldBeTrue)

	matches, err := matcher.Match(context.Background(), images[0], images[1])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, matches, test.ShouldHaveLength, 60)

	res, err := Run(context.Background(), images, matcher, nil, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	sp, ok := res.Pairs.Get(0, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, sp.Inliers, test.ShouldHaveLength, 60)
	test.That(t, images[0].Features[0].HasDepth(), test.ShouldBeTrue)
}

func TestLoadSceneDistortion(t *testing.T) {
	synthetic := newTestScene(19, 10, 0)
	params := []float64{-0.15, 0.02, 0, 0.001, 0}
	bc, err := transform.NewBrownConrady(params)
	test.That(t, err, test.ShouldBeNil)
	distorted := lo.Map(synthetic.images[0].Features, func(f transform.Feature, _ int) [2]float64 {
		x, y := bc.Distort((f.Point.X-320)/500, (f.Point.Y-240)/500)
		return [2]float64{320 + 500*x, 240 + 500*y}
	})
	path := writeScene(t, &sceneFile{Images: []sceneImage{{
		Name:       "left",
		Intrinsics: &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240},
		Distortion: &sceneDistortion{Type: transform.BrownConradyDistortionType, Parameters: params},
		Features:   distorted,
	}}})

	images, _, err := LoadScene(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, images[0].Features, test.ShouldHaveLength, 10)
	for i, f := range images[0].Features {
		test.That(t, f.Point.Sub(synthetic.images[0].Features[i].Point).Norm(), test.ShouldBeLessThan, 1e-6)
	}
}

func TestLoadSceneIntrinsicsFile(t *testing.T) {
	dir := t.TempDir()
	test.That(t, os.WriteFile(filepath.Join(dir, "camera.json"),
		[]byte(`{"width_px": 640, "height_px": 480, "fx": 500, "fy": 500, "ppx": 320, "ppy": 240}`),
		0o600), test.ShouldBeNil)
	data, err := json.Marshal(&sceneFile{Images: []sceneImage{
		{Name: "relative", IntrinsicsFile: "camera.json", Features: [][2]float64{{1, 2}}},
		{Name: "absolute", IntrinsicsFile: filepath.Join(dir, "camera.json")},
	}})
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(dir, "scene.json")
	test.That(t, os.WriteFile(path, data, 0o600), test.ShouldBeNil)

	images, _, err := LoadScene(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, images, test.ShouldHaveLength, 2)
	for _, img := range images {
		test.That(t, mat.EqualApprox(img.Calibration, testCalibration(), 1e-12), test.ShouldBeTrue)
	}
	test.That(t, images[0].Features, test.ShouldHaveLength, 1)
}

func TestLoadSceneErrors(t *testing.T) {
	intrinsics := &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	features := [][2]float64{{1, 2}, {3, 4}}

	_, _, err := LoadScene(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err.Error(), test.ShouldContainSubstring, "error opening scene file")

	bad := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"images": 3}`), 0o600), test.ShouldBeNil)
	_, _, err = LoadScene(bad)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error parsing scene file")

	for _, tc := range []struct {
		name  string
		scene sceneFile
		want  string
	}{
		{
			name:  "unnamed",
			scene: sceneFile{Images: []sceneImage{{Intrinsics: intrinsics}}},
			want:  "image 0 has no name",
		},
		{
			name: "duplicate",
			scene: sceneFile{Images: []sceneImage{
				{Name: "a", Intrinsics: intrinsics},
				{Name: "a", Intrinsics: intrinsics},
			}},
			want: "duplicate image name",
		},
		{
			name:  "uncalibrated",
			scene: sceneFile{Images: []sceneImage{{Name: "a"}}},
			want:  "no intrinsics, intrinsics_file or projection matrix",
		},
		{
			name:  "both calibrations",
			scene: sceneFile{Images: []sceneImage{{Name: "a", Intrinsics: intrinsics, Projection: make([]float64, 12)}}},
			want:  "give only one of",
		},
		{
			name: "intrinsics and file",
			scene: sceneFile{Images: []sceneImage{{
				Name:           "a",
				Intrinsics:     intrinsics,
				IntrinsicsFile: "camera.json",
			}}},
			want: "give only one of",
		},
		{
			name:  "missing intrinsics file",
			scene: sceneFile{Images: []sceneImage{{Name: "a", IntrinsicsFile: "camera.json"}}},
			want:  "error opening JSON file",
		},
		{
			name:  "short projection",
			scene: sceneFile{Images: []sceneImage{{Name: "a", Projection: []float64{1, 2, 3}}}},
			want:  "projection matrix needs 12 values, got 3",
		},
		{
			name:  "invalid intrinsics",
			scene: sceneFile{Images: []sceneImage{{Name: "a", Intrinsics: &transform.PinholeCameraIntrinsics{}}}},
			want:  "Invalid size",
		},
		{
			name: "unknown distortion",
			scene: sceneFile{Images: []sceneImage{{
				Name:       "a",
				Intrinsics: intrinsics,
				Distortion: &sceneDistortion{Type: "fisheye"},
			}}},
			want: "do not know how to parse \"fisheye\" distortion model",
		},
		{
			name: "unknown image",
			scene: sceneFile{
				Images:  []sceneImage{{Name: "a", Intrinsics: intrinsics, Features: features}},
				Matches: []sceneMatches{{A: "a", B: "z"}},
			},
			want: "unknown image pair",
		},
		{
			name: "match out of range",
			scene: sceneFile{
				Images: []sceneImage{
					{Name: "a", Intrinsics: intrinsics, Features: features},
					{Name: "b", Intrinsics: intrinsics, Features: features},
				},
				Matches: []sceneMatches{{A: "a", B: "b", Pairs: [][2]int{{0, 1}, {2, 0}}}},
			},
			want: "match (2, 0) between \"a\" and \"b\" is out of range",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := LoadScene(writeScene(t, &tc.scene))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.want)
		})
	}

	_, _, err = LoadScene(writeScene(t, &sceneFile{Images: []sceneImage{{Name: "a"}}}))
	test.That(t, errors.Is(err, transform.ErrNoIntrinsics), test.ShouldBeTrue)
}
