package transform

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MinCorrespondences is the number of correspondences the linear estimator needs: eight
// independent equations for the nine entries of F, known up to scale.
const MinCorrespondences = 8

// minBottomRight is the smallest |F(2,2)| that is still rescaled to 1.
const minBottomRight = 1e-15

type fundamentalOptions struct {
	rank2 bool
}

// FundamentalOption configures ComputeFundamentalMatrix.
type FundamentalOption func(*fundamentalOptions)

// WithRank2Constraint projects the linear estimate onto the closest rank 2 matrix before
// denormalization. Without it the estimate may be rank 3.
func WithRank2Constraint() FundamentalOption {
	return func(o *fundamentalOptions) {
		o.rank2 = true
	}
}

// ComputeFundamentalMatrix estimates the fundamental matrix F from correspondences with the
// normalized 8-point algorithm, such that xB^T * F * xA = 0. The input is not modified.
// The result is scaled so that F(2,2) = 1.
func ComputeFundamentalMatrix(corrs []Correspondence, opts ...FundamentalOption) (*mat.Dense, error) {
	if len(corrs) < MinCorrespondences {
		return nil, errors.Wrapf(ErrInsufficientData,
			"sets of points must have at least %d elements, got %d", MinCorrespondences, len(corrs))
	}
	var options fundamentalOptions
	for _, opt := range opts {
		opt(&options)
	}

	pairs := copyCorrespondences(corrs)
	T1, T2, err := NormalizeCorrespondences(pairs)
	if err != nil {
		return nil, err
	}

	m := mat.NewDense(len(pairs), 9, nil)
	for i, c := range pairs {
		v1 := c.A.Point
		v2 := c.B.Point
		row := []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		}
		m.SetRow(i, row)
	}

	// the solution is the right singular vector of the smallest singular value
	mats1, err := performSVD(m)
	if err != nil {
		return nil, err
	}
	lastColV := mats1.V.ColView(8)
	F := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		F.Set(i/3, i%3, lastColV.AtVec(i))
	}
	F.Scale(1/mat.Norm(F, 2), F)

	if options.rank2 {
		F, err = enforceRank2(F)
		if err != nil {
			return nil, err
		}
	}

	// rescale F: T2^T @ F @ T1
	F.Mul(T2.T(), F)
	F.Mul(F, T1)

	if math.Abs(F.At(2, 2)) < minBottomRight*mat.Norm(F, 2) {
		return nil, errors.Wrap(ErrNumericDegeneracy, "fundamental matrix has a vanishing bottom-right entry")
	}
	F.Scale(1/F.At(2, 2), F)
	// x * (1/x) is not always exactly 1
	F.Set(2, 2, 1)
	return F, nil
}

// enforceRank2 returns the closest rank 2 matrix to F in Frobenius norm.
func enforceRank2(F *mat.Dense) (*mat.Dense, error) {
	mats, err := performSVD(F)
	if err != nil {
		return nil, err
	}
	S := mats.S
	S.Set(2, 2, 0)
	Fhat := mat.NewDense(3, 3, nil)
	Fhat.Mul(mats.U, S)
	Fhat.Mul(Fhat, mats.VT)
	return Fhat, nil
}

// GetEssentialMatrixFromFundamental returns the essential matrix E = K2^T * F * K1 from the
// fundamental matrix and the calibration matrices of the first (k1) and second (k2) image.
func GetEssentialMatrixFromFundamental(k1, k2, f mat.Matrix) (*mat.Dense, error) {
	for name, m := range map[string]mat.Matrix{"first calibration": k1, "second calibration": k2, "fundamental": f} {
		if err := check3x3(m, name); err != nil {
			return nil, err
		}
	}
	var essMat mat.Dense
	essMat.Mul(k2.T(), f)
	essMat.Mul(&essMat, k1)
	return &essMat, nil
}

// EpipolarError returns the algebraic epipolar error |xB^T * F * xA| of a correspondence.
func EpipolarError(f mat.Matrix, c Correspondence) float64 {
	xA := homogeneous(c.A.Point)
	xB := homogeneous(c.B.Point)
	return math.Abs(xB.Dot(mulVec(f, xA)))
}

// MaxEpipolarError returns the largest algebraic epipolar error over corrs.
func MaxEpipolarError(f mat.Matrix, corrs []Correspondence) float64 {
	maxErr := 0.0
	for _, c := range corrs {
		maxErr = math.Max(maxErr, EpipolarError(f, c))
	}
	return maxErr
}
