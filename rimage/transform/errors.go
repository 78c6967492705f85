package transform

import "github.com/pkg/errors"

var (
	// ErrInsufficientData is returned when too few correspondences are supplied to an estimator.
	ErrInsufficientData = errors.New("insufficient correspondences")
	// ErrNumericDegeneracy is returned when a factorization fails or the input geometry is degenerate.
	ErrNumericDegeneracy = errors.New("numerically degenerate input")
	// ErrNoConsensus is returned when no RANSAC candidate reached the support threshold.
	ErrNoConsensus = errors.New("no candidate reached consensus")
	// ErrTriangulationFailure is returned when two rays cannot be intersected.
	ErrTriangulationFailure = errors.New("triangulation failed")
	// ErrNoIntrinsics is when a camera does not have intrinsic parameters or other parameters.
	ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")
)

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}
