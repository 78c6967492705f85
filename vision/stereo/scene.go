package stereo

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/stereodepth/stereo/rimage/transform"
)

// sceneFile is the json layout of a scene. Each image is calibrated by exactly one of its
// intrinsics, an intrinsics json file (relative paths start at the scene file's directory) or a
// 3x4 projection matrix given row by row, and may carry a lens distortion model that is removed
// from its features on load.
type sceneFile struct {
	Images  []sceneImage   `json:"images"`
	Matches []sceneMatches `json:"matches"`
}

type sceneImage struct {
	Name           string                             `json:"name"`
	Intrinsics     *transform.PinholeCameraIntrinsics `json:"intrinsics,omitempty"`
	IntrinsicsFile string                             `json:"intrinsics_file,omitempty"`
	Projection     []float64                          `json:"projection,omitempty"`
	Distortion     *sceneDistortion                   `json:"distortion,omitempty"`
	Features       [][2]float64                       `json:"features"`
}

type sceneDistortion struct {
	Type       transform.DistortionType `json:"type"`
	Parameters []float64                `json:"parameters"`
}

type sceneMatches struct {
	A     string   `json:"a"`
	B     string   `json:"b"`
	Pairs [][2]int `json:"pairs"`
}

// LoadScene reads the images and precomputed feature matches of a scene from a json file.
func LoadScene(path string) ([]*ImageDescriptor, *PrecomputedMatcher, error) {
	sceneReader, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, nil, errors.Wrap(err, "error opening scene file")
	}
	defer utils.UncheckedErrorFunc(sceneReader.Close)

	var scene sceneFile
	if err := json.NewDecoder(sceneReader).Decode(&scene); err != nil {
		return nil, nil, errors.Wrap(err, "error parsing scene file")
	}
	return scene.build(filepath.Dir(path))
}

func (s *sceneFile) build(dir string) ([]*ImageDescriptor, *PrecomputedMatcher, error) {
	images := make([]*ImageDescriptor, 0, len(s.Images))
	byName := map[string]*ImageDescriptor{}
	for i, si := range s.Images {
		if si.Name == "" {
			return nil, nil, errors.Errorf("image %d has no name", i)
		}
		if _, ok := byName[si.Name]; ok {
			return nil, nil, errors.Errorf("duplicate image name %q", si.Name)
		}
		k, err := si.calibration(dir)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "image %q", si.Name)
		}
		pts, err := si.undistortedFeatures(k)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "image %q", si.Name)
		}
		img := &ImageDescriptor{
			Name: si.Name,
			Features: lo.Map(pts, func(p r2.Point, _ int) transform.Feature {
				return transform.NewFeature(p.X, p.Y)
			}),
			Calibration: k,
		}
		images = append(images, img)
		byName[si.Name] = img
	}

	matcher := NewPrecomputedMatcher()
	for _, sm := range s.Matches {
		a, okA := byName[sm.A]
		b, okB := byName[sm.B]
		if !okA || !okB {
			return nil, nil, errors.Errorf("matches reference unknown image pair (%q, %q)", sm.A, sm.B)
		}
		matches := lo.Map(sm.Pairs, func(p [2]int, _ int) Match {
			return Match{A: p[0], B: p[1]}
		})
		for _, m := range matches {
			if m.A < 0 || m.A >= len(a.Features) || m.B < 0 || m.B >= len(b.Features) {
				return nil, nil, errors.Errorf("match (%d, %d) between %q and %q is out of range", m.A, m.B, sm.A, sm.B)
			}
		}
		matcher.Add(sm.A, sm.B, matches)
	}
	return images, matcher, nil
}

func (si *sceneImage) calibration(dir string) (*mat.Dense, error) {
	given := lo.Count([]bool{si.Intrinsics != nil, si.IntrinsicsFile != "", si.Projection != nil}, true)
	if given > 1 {
		return nil, errors.New("give only one of intrinsics, intrinsics_file or a projection matrix")
	}
	switch {
	case si.Intrinsics != nil:
		if err := si.Intrinsics.CheckValid(); err != nil {
			return nil, err
		}
		return si.Intrinsics.GetCameraMatrix(), nil
	case si.IntrinsicsFile != "":
		path := si.IntrinsicsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(path)
		if err != nil {
			return nil, err
		}
		return intrinsics.GetCameraMatrix(), nil
	case si.Projection != nil:
		if len(si.Projection) != 12 {
			return nil, errors.Errorf("projection matrix needs 12 values, got %d", len(si.Projection))
		}
		dec, err := transform.DecomposeProjectionMatrix(mat.NewDense(3, 4, si.Projection))
		if err != nil {
			return nil, err
		}
		return dec.K, nil
	default:
		return nil, transform.NewNoIntrinsicsError("no intrinsics, intrinsics_file or projection matrix")
	}
}

func (si *sceneImage) undistortedFeatures(k mat.Matrix) ([]r2.Point, error) {
	pts := lo.Map(si.Features, func(f [2]float64, _ int) r2.Point {
		return r2.Point{X: f[0], Y: f[1]}
	})
	if si.Distortion == nil {
		return pts, nil
	}
	d, err := transform.NewDistorter(si.Distortion.Type, si.Distortion.Parameters)
	if err != nil {
		return nil, err
	}
	return transform.UndistortPoints(k, d, pts)
}
