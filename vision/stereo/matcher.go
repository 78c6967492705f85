package stereo

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

// Matcher finds feature matches between two images.
type Matcher interface {
	Match(ctx context.Context, a, b *ImageDescriptor) ([]Match, error)
}

// PrecomputedMatcher serves matches known ahead of time, such as those read from a scene file.
type PrecomputedMatcher struct {
	mu      sync.RWMutex
	matches map[[2]string][]Match
}

// NewPrecomputedMatcher returns an empty PrecomputedMatcher.
func NewPrecomputedMatcher() *PrecomputedMatcher {
	return &PrecomputedMatcher{matches: map[[2]string][]Match{}}
}

// Add records the matches from image a to image b, replacing any previous ones.
func (pm *PrecomputedMatcher) Add(a, b string, matches []Match) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.matches[[2]string{a, b}] = matches
}

// Match returns the recorded matches of the two images, swapped if they were recorded from b to a.
// Unknown pairs have no matches.
func (pm *PrecomputedMatcher) Match(ctx context.Context, a, b *ImageDescriptor) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if m, ok := pm.matches[[2]string{a.Name, b.Name}]; ok {
		return m, nil
	}
	if m, ok := pm.matches[[2]string{b.Name, a.Name}]; ok {
		return lo.Map(m, func(mm Match, _ int) Match {
			return Match{A: mm.B, B: mm.A}
		}), nil
	}
	return nil, nil
}
