package stereo

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/stereodepth/stereo/rimage/transform"
)

// ImageDescriptor is an image of the scene: its features and calibration matrix.
type ImageDescriptor struct {
	Name        string
	Features    []transform.Feature
	Calibration *mat.Dense
}

// Match pairs the index of a feature in image A with the index of a feature in image B.
type Match struct {
	A int `json:"a"`
	B int `json:"b"`
}

// PairKey identifies an unordered pair of images by index, with I < J.
type PairKey struct {
	I, J int
}

// NewPairKey returns the key of the pair formed by images i and j, in either order.
func NewPairKey(i, j int) (PairKey, error) {
	if i < 0 || j < 0 {
		return PairKey{}, errors.Errorf("image indices must be non-negative, got (%d, %d)", i, j)
	}
	if i == j {
		return PairKey{}, errors.Errorf("an image cannot be paired with itself (%d)", i)
	}
	if i > j {
		i, j = j, i
	}
	return PairKey{I: i, J: j}, nil
}

// StereoPair is the relative geometry of two overlapping images. F, E and Pose are set once the
// estimation succeeded.
type StereoPair struct {
	Key    PairKey
	ImageA *ImageDescriptor
	ImageB *ImageDescriptor
	// MatchIndices index the features of ImageA and ImageB; Matches holds the same pairs as points.
	MatchIndices []Match
	Matches      []transform.Correspondence
	F            *mat.Dense
	E            *mat.Dense
	Pose         *transform.Pose
	// Inliers index Matches.
	Inliers []int
	// MaxEpipolarError is the largest |xB^T F xA| over the inliers.
	MaxEpipolarError float64
}

// NewStereoPair builds the correspondences of a pair from feature matches.
func NewStereoPair(key PairKey, a, b *ImageDescriptor, matches []Match) (*StereoPair, error) {
	for _, m := range matches {
		if m.A < 0 || m.A >= len(a.Features) || m.B < 0 || m.B >= len(b.Features) {
			return nil, errors.Errorf("match (%d, %d) is out of range for images %q (%d features) and %q (%d features)",
				m.A, m.B, a.Name, len(a.Features), b.Name, len(b.Features))
		}
	}
	corrs := lo.Map(matches, func(m Match, _ int) transform.Correspondence {
		return transform.Correspondence{A: a.Features[m.A], B: b.Features[m.B]}
	})
	return &StereoPair{
		Key:          key,
		ImageA:       a,
		ImageB:       b,
		MatchIndices: matches,
		Matches:      corrs,
	}, nil
}

// Estimated reports whether the pair's fundamental matrix has been found.
func (sp *StereoPair) Estimated() bool {
	return sp.F != nil
}

// InlierMatches returns the feature index pairs of the inliers.
func (sp *StereoPair) InlierMatches() []Match {
	return lo.Map(sp.Inliers, func(i, _ int) Match {
		return sp.MatchIndices[i]
	})
}

// PairSet holds the stereo pairs of a scene keyed by unordered image pair.
type PairSet map[PairKey]*StereoPair

// Get returns the pair formed by images i and j, in either order.
func (ps PairSet) Get(i, j int) (*StereoPair, bool) {
	key, err := NewPairKey(i, j)
	if err != nil {
		return nil, false
	}
	sp, ok := ps[key]
	return sp, ok
}

// Keys returns the keys sorted by first then second image index.
func (ps PairSet) Keys() []PairKey {
	keys := lo.Keys(map[PairKey]*StereoPair(ps))
	slices.SortFunc(keys, func(a, b PairKey) int {
		return cmp.Or(cmp.Compare(a.I, b.I), cmp.Compare(a.J, b.J))
	})
	return keys
}
