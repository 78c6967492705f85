package transform

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/stereodepth/stereo/logging"
	"github.com/stereodepth/stereo/utils"
	"github.com/stereodepth/stereo/utils/matrix"
)

// RANSACConfig contains the parameters of the robust fundamental matrix estimation.
type RANSACConfig struct {
	// Iterations is the fixed number of trials; there is no early exit.
	Iterations int `json:"iterations"`
	// InlierThreshold is the reprojection error in pixels below which a correspondence supports a candidate.
	InlierThreshold float64 `json:"inlier_threshold_px"`
	// MinInliers is the number of supporting correspondences a candidate must exceed.
	MinInliers int `json:"min_inliers"`
	// PenaltyError is the error charged to a correspondence that cannot be triangulated.
	PenaltyError float64 `json:"penalty_error_px"`
	// EnforceRank2 projects every candidate onto the rank 2 manifold.
	EnforceRank2 bool `json:"enforce_rank2"`
}

// NewDefaultRANSACConfig returns the default RANSAC parameters.
func NewDefaultRANSACConfig() *RANSACConfig {
	return &RANSACConfig{
		Iterations:      500,
		InlierThreshold: 2,
		MinInliers:      MinCorrespondences,
		PenaltyError:    1e6,
	}
}

// Validate returns every invalid field of the config.
func (cfg *RANSACConfig) Validate() error {
	if cfg == nil {
		return errors.New("ransac config is nil")
	}
	var err error
	if cfg.Iterations <= 0 {
		err = multierr.Append(err, errors.Errorf("iterations must be positive, got %d", cfg.Iterations))
	}
	if cfg.InlierThreshold <= 0 {
		err = multierr.Append(err, errors.Errorf("inlier_threshold_px must be positive, got %g", cfg.InlierThreshold))
	}
	if cfg.MinInliers < 0 {
		err = multierr.Append(err, errors.Errorf("min_inliers cannot be negative, got %d", cfg.MinInliers))
	}
	if cfg.PenaltyError < cfg.InlierThreshold {
		err = multierr.Append(err, errors.Errorf(
			"penalty_error_px (%g) must not be below inlier_threshold_px (%g)", cfg.PenaltyError, cfg.InlierThreshold))
	}
	return err
}

// RANSACResult is the winning candidate of a RANSAC run.
type RANSACResult struct {
	F    *mat.Dense
	E    *mat.Dense
	Pose *Pose
	// Inliers are the indices of all correspondences whose error under the winner is below threshold.
	Inliers []int
	// MeanError is the mean reprojection error of the winner's inliers during selection.
	MeanError   float64
	Trials      int
	ValidTrials int
}

type ransacCandidate struct {
	trial     int
	F, E      *mat.Dense
	pose      *Pose
	nInliers  int
	meanError float64
}

// betterThan orders candidates by mean inlier error, then by trial index.
func (c *ransacCandidate) betterThan(other *ransacCandidate) bool {
	if other == nil {
		return true
	}
	if c.meanError != other.meanError {
		return c.meanError < other.meanError
	}
	return c.trial < other.trial
}

type ransacProblem struct {
	corrs        []Correspondence
	kA, kB       mat.Matrix
	raysA, raysB []r3.Vector
	cfg          *RANSACConfig
	opts         []FundamentalOption
}

// EstimateFundamentalMatrixRANSAC robustly estimates the fundamental matrix relating image A to
// image B. Every trial fits the 8-point algorithm to a random sample, decomposes the resulting
// essential matrix and scores the remaining correspondences by the reprojection error of their
// triangulation into image A. The candidate with the lowest mean inlier error wins.
// All samples are drawn from rng up front, so a given rng state always yields the same result.
func EstimateFundamentalMatrixRANSAC(
	ctx context.Context,
	corrs []Correspondence,
	kA, kB mat.Matrix,
	cfg *RANSACConfig,
	rng *rand.Rand,
	logger logging.Logger,
) (*RANSACResult, error) {
	if cfg == nil {
		cfg = NewDefaultRANSACConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("ransac")
	}
	if len(corrs) < MinCorrespondences {
		return nil, errors.Wrapf(ErrInsufficientData,
			"ransac needs at least %d correspondences, got %d", MinCorrespondences, len(corrs))
	}
	problem, err := newRANSACProblem(corrs, kA, kB, cfg)
	if err != nil {
		return nil, err
	}

	samples := make([][]int, cfg.Iterations)
	for i := range samples {
		samples[i], err = matrix.SampleWithoutReplacement(MinCorrespondences, len(corrs), rng)
		if err != nil {
			return nil, err
		}
	}

	var (
		mu          sync.Mutex
		best        *ransacCandidate
		validTrials int
	)
	err = utils.GroupWorkParallel(
		ctx,
		len(samples),
		nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			var groupBest *ransacCandidate
			groupValid := 0
			return func(memberNum, workNum int) {
					cand, ok := problem.runTrial(workNum, samples[workNum])
					if !ok {
						return
					}
					groupValid++
					if cand.nInliers > cfg.MinInliers && cand.meanError < cfg.InlierThreshold && cand.betterThan(groupBest) {
						groupBest = cand
					}
				}, func() {
					mu.Lock()
					defer mu.Unlock()
					validTrials += groupValid
					if groupBest != nil && groupBest.betterThan(best) {
						best = groupBest
					}
				}
		},
	)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, errors.Wrapf(ErrNoConsensus,
			"%d of %d trials produced a model but none had more than %d inliers below %g px",
			validTrials, cfg.Iterations, cfg.MinInliers, cfg.InlierThreshold)
	}

	inliers, _ := problem.score(best.E, best.pose, nil)
	logger.Debugw("ransac finished",
		"trials", cfg.Iterations,
		"valid_trials", validTrials,
		"best_trial", best.trial,
		"inliers", len(inliers),
		"mean_error_px", best.meanError,
	)
	return &RANSACResult{
		F:           best.F,
		E:           best.E,
		Pose:        best.pose,
		Inliers:     inliers,
		MeanError:   best.meanError,
		Trials:      cfg.Iterations,
		ValidTrials: validTrials,
	}, nil
}

func newRANSACProblem(corrs []Correspondence, kA, kB mat.Matrix, cfg *RANSACConfig) (*ransacProblem, error) {
	ptsA := make([]r2.Point, len(corrs))
	ptsB := make([]r2.Point, len(corrs))
	for i, c := range corrs {
		ptsA[i] = c.A.Point
		ptsB[i] = c.B.Point
	}
	raysA, err := PixelsToRays(kA, ptsA)
	if err != nil {
		return nil, err
	}
	raysB, err := PixelsToRays(kB, ptsB)
	if err != nil {
		return nil, err
	}
	var opts []FundamentalOption
	if cfg.EnforceRank2 {
		opts = append(opts, WithRank2Constraint())
	}
	return &ransacProblem{
		corrs: corrs,
		kA:    kA,
		kB:    kB,
		raysA: raysA,
		raysB: raysB,
		cfg:   cfg,
		opts:  opts,
	}, nil
}

// runTrial fits and scores one sample. It reports false when no model could be built from it.
func (p *ransacProblem) runTrial(trial int, sample []int) (*ransacCandidate, bool) {
	subset := make([]Correspondence, len(sample))
	skip := make(map[int]struct{}, len(sample))
	for i, idx := range sample {
		subset[i] = p.corrs[idx]
		skip[idx] = struct{}{}
	}
	F, err := ComputeFundamentalMatrix(subset, p.opts...)
	if err != nil {
		return nil, false
	}
	E, err := GetEssentialMatrixFromFundamental(p.kA, p.kB, F)
	if err != nil {
		return nil, false
	}
	pose, err := DecomposeEssentialMatrix(E)
	if err != nil {
		return nil, false
	}
	inliers, meanError := p.score(E, pose, skip)
	return &ransacCandidate{
		trial:     trial,
		F:         F,
		E:         E,
		pose:      pose,
		nInliers:  len(inliers),
		meanError: meanError,
	}, true
}

// score triangulates every correspondence not in skip and returns the indices of those
// reprojecting into image A within the inlier threshold, along with their mean error.
func (p *ransacProblem) score(E *mat.Dense, pose *Pose, skip map[int]struct{}) ([]int, float64) {
	var (
		inliers []int
		errs    []float64
	)
	for i, c := range p.corrs {
		if _, ok := skip[i]; ok {
			continue
		}
		e := p.cfg.PenaltyError
		if x, _, _, err := TriangulatePoint(E, pose, p.raysA[i], p.raysB[i]); err == nil {
			if reproj := ReprojectionError(p.kA, x, c.A.Point); !math.IsNaN(reproj) && !math.IsInf(reproj, 0) {
				e = reproj
			}
		}
		if e < p.cfg.InlierThreshold {
			inliers = append(inliers, i)
			errs = append(errs, e)
		}
	}
	if len(errs) == 0 {
		return nil, math.Inf(1)
	}
	return inliers, stat.Mean(errs, nil)
}
