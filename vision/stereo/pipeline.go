package stereo

import (
	"context"
	"math/rand/v2"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/stereodepth/stereo/logging"
	"github.com/stereodepth/stereo/pointcloud"
	"github.com/stereodepth/stereo/rimage/transform"
)

// Result holds everything a stereo run produced.
type Result struct {
	// ImageNames are the names of the input images, in input order.
	ImageNames []string
	// Pairs only contains the pairs whose fundamental matrix was found.
	Pairs PairSet
	// Points are the triangulated inliers of each pair, in the frame of the pair's first camera.
	Points map[PairKey][]TriangulatedPoint
	Depths map[PairKey]DepthSummary
	// Skipped records why a pair was not estimated.
	Skipped map[PairKey]error
}

// PointCloud returns the triangulated points of a pair as a point cloud.
func (r *Result) PointCloud(key PairKey) (pointcloud.PointCloud, error) {
	points, ok := r.Points[key]
	if !ok {
		return nil, errors.Errorf("no points for pair (%d, %d)", key.I, key.J)
	}
	return pointcloud.NewFromPoints(lo.Map(points, func(p TriangulatedPoint, _ int) r3.Vector {
		return p.Point
	}))
}

// Run matches every pair of images, estimates the epipolar geometry of the pairs with enough
// overlap and triangulates their inliers. Triangulated depths are written into the features of
// the images, so a feature seen by several pairs keeps the depth of the last one. Depths are in
// units of the pair's baseline.
// A pair that cannot be estimated is logged and skipped; only an invalid input or a canceled
// context stops the run.
func Run(
	ctx context.Context,
	images []*ImageDescriptor,
	matcher Matcher,
	cfg *Config,
	observer Observer,
	logger logging.Logger,
) (*Result, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if matcher == nil {
		return nil, errors.New("matcher is nil")
	}
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = logging.NewBlankLogger("stereo")
	}
	for i, img := range images {
		if img == nil {
			return nil, errors.Errorf("image %d is nil", i)
		}
		if img.Calibration == nil {
			return nil, errors.Errorf("image %q has no calibration matrix", img.Name)
		}
	}

	names := lo.Map(images, func(img *ImageDescriptor, _ int) string {
		return img.Name
	})
	result := &Result{
		ImageNames: names,
		Pairs:      PairSet{},
		Points:     map[PairKey][]TriangulatedPoint{},
		Depths:     map[PairKey]DepthSummary{},
		Skipped:    map[PairKey]error{},
	}
	for i := range images {
		for j := i + 1; j < len(images); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			key := PairKey{I: i, J: j}
			pairLogger := logger.Sublogger(images[i].Name + "_" + images[j].Name)
			sp, err := estimatePair(ctx, key, images[i], images[j], matcher, cfg, pairLogger)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				pairLogger.Warnw("skipping pair", "error", err)
				result.Skipped[key] = err
				continue
			}
			result.Pairs[key] = sp
			observer.OnFundamental(sp)

			if err := choosePose(sp, cfg); err != nil {
				pairLogger.Warnw("skipping pair", "error", err)
				delete(result.Pairs, key)
				result.Skipped[key] = err
				continue
			}
			observer.OnPose(sp)

			points := triangulatePair(sp, pairLogger)
			result.Points[key] = points
			observer.OnTriangulated(sp, points)
			if len(points) == 0 {
				pairLogger.Warn("no inlier could be triangulated")
				continue
			}
			summary, err := SummarizeDepths(lo.Map(points, func(p TriangulatedPoint, _ int) float64 {
				return p.DepthA
			}))
			if err != nil {
				return nil, err
			}
			result.Depths[key] = summary
			if 2*summary.Negative > summary.Count {
				pairLogger.Warnw("most triangulated points lie behind camera A",
					"negative", summary.Negative, "count", summary.Count)
			}
			pairLogger.Infow("pair estimated",
				"matches", len(sp.Matches),
				"inliers", len(sp.Inliers),
				"points", len(points),
				"max_epipolar_error", sp.MaxEpipolarError,
				"median_depth", summary.Median,
			)
		}
	}
	return result, nil
}

// estimatePair matches two images and robustly estimates their fundamental matrix.
func estimatePair(
	ctx context.Context,
	key PairKey,
	a, b *ImageDescriptor,
	matcher Matcher,
	cfg *Config,
	logger logging.Logger,
) (*StereoPair, error) {
	matches, err := matcher.Match(ctx, a, b)
	if err != nil {
		return nil, errors.Wrap(err, "failed to match features")
	}
	if len(matches) < cfg.OverlapThreshold {
		return nil, errors.Errorf("not enough overlap: %d matches, need %d", len(matches), cfg.OverlapThreshold)
	}
	sp, err := NewStereoPair(key, a, b, matches)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(key.I)<<32|uint64(key.J))) //nolint:gosec
	res, err := transform.EstimateFundamentalMatrixRANSAC(
		ctx, sp.Matches, a.Calibration, b.Calibration, cfg.RANSAC, rng, logger.Sublogger("ransac"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to find fundamental matrix")
	}
	sp.F = res.F
	sp.E = res.E
	sp.Pose = res.Pose
	sp.Inliers = res.Inliers
	sp.MaxEpipolarError = transform.MaxEpipolarError(sp.F, lo.Map(sp.Inliers, func(i, _ int) transform.Correspondence {
		return sp.Matches[i]
	}))
	return sp, nil
}

// choosePose replaces the pair's pose with the candidate placing the most inliers in front of
// both cameras, when configured to.
func choosePose(sp *StereoPair, cfg *Config) error {
	if !cfg.ResolvePoseAmbiguity {
		return nil
	}
	raysA, raysB, err := inlierRays(sp)
	if err != nil {
		return err
	}
	poses, err := transform.GetPossibleCameraPoses(sp.E)
	if err != nil {
		return err
	}
	pose, _ := transform.GetCorrectCameraPose(poses, sp.E, raysA, raysB)
	sp.Pose = pose
	return nil
}

func inlierRays(sp *StereoPair) ([]r3.Vector, []r3.Vector, error) {
	raysA, err := transform.PixelsToRays(sp.ImageA.Calibration, lo.Map(sp.Inliers, func(i, _ int) r2.Point {
		return sp.Matches[i].A.Point
	}))
	if err != nil {
		return nil, nil, err
	}
	raysB, err := transform.PixelsToRays(sp.ImageB.Calibration, lo.Map(sp.Inliers, func(i, _ int) r2.Point {
		return sp.Matches[i].B.Point
	}))
	if err != nil {
		return nil, nil, err
	}
	return raysA, raysB, nil
}

// triangulatePair triangulates the inliers of a pair and records their depths in the pair's
// correspondences and in the features of both images. Inliers that cannot be triangulated keep
// their previous depth.
func triangulatePair(sp *StereoPair, logger logging.Logger) []TriangulatedPoint {
	raysA, raysB, err := inlierRays(sp)
	if err != nil {
		logger.Warnw("cannot compute rays", "error", err)
		return nil
	}
	points := make([]TriangulatedPoint, 0, len(sp.Inliers))
	failed := 0
	for k, idx := range sp.Inliers {
		x, depthA, depthB, err := transform.TriangulatePoint(sp.E, sp.Pose, raysA[k], raysB[k])
		if err != nil {
			failed++
			continue
		}
		m := sp.MatchIndices[idx]
		sp.Matches[idx].A.Depth = depthA
		sp.Matches[idx].B.Depth = depthB
		sp.ImageA.Features[m.A].Depth = depthA
		sp.ImageB.Features[m.B].Depth = depthB
		points = append(points, TriangulatedPoint{Match: m, Point: x, DepthA: depthA, DepthB: depthB})
	}
	if failed > 0 {
		logger.Debugw("some inliers could not be triangulated", "failed", failed)
	}
	return points
}
