package stereo

import "github.com/golang/geo/r3"

// TriangulatedPoint is a match triangulated in the frame of the pair's first camera.
type TriangulatedPoint struct {
	Match  Match
	Point  r3.Vector
	DepthA float64
	DepthB float64
}

// Observer receives every stage result of a stereo pair, for debug visualization or inspection.
// Implementations must not modify the pair.
type Observer interface {
	// OnFundamental is called once F and E are estimated.
	OnFundamental(pair *StereoPair)
	// OnPose is called once the relative pose is chosen.
	OnPose(pair *StereoPair)
	// OnTriangulated is called with the points of the pair's inliers.
	OnTriangulated(pair *StereoPair, points []TriangulatedPoint)
}

// NoopObserver ignores everything.
type NoopObserver struct{}

// OnFundamental does nothing.
func (NoopObserver) OnFundamental(*StereoPair) {}

// OnPose does nothing.
func (NoopObserver) OnPose(*StereoPair) {}

// OnTriangulated does nothing.
func (NoopObserver) OnTriangulated(*StereoPair, []TriangulatedPoint) {}
