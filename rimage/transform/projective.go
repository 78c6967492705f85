package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// minProjectionDet is the smallest |det| of the left 3x3 block of a usable projection matrix.
const minProjectionDet = 1e-12

// ProjectiveDecomposition is a 3x4 projection matrix P = K * [R | t] split into its parts.
type ProjectiveDecomposition struct {
	// K is upper triangular with a positive diagonal and K(2,2) = 1.
	K        *mat.Dense
	Rotation *mat.Dense
	// Essential is [t]x * R.
	Essential   *mat.Dense
	Center      r3.Vector
	Translation r3.Vector
}

// DecomposeProjectionMatrix factors P into calibration, rotation and camera center with an RQ
// decomposition of its left 3x3 block computed from three Givens rotations, as in Multiple View
// Geometry, A4.1.1.
func DecomposeProjectionMatrix(P mat.Matrix) (*ProjectiveDecomposition, error) {
	if P == nil {
		return nil, errors.New("projection matrix is nil")
	}
	if r, c := P.Dims(); r != 3 || c != 4 {
		return nil, errors.Errorf("projection matrix must be 3x4, got %dx%d", r, c)
	}
	proj := mat.DenseCopyOf(P)
	A := mat.DenseCopyOf(proj.Slice(0, 3, 0, 3))
	det := mat.Det(A)
	if math.Abs(det) < minProjectionDet {
		return nil, errors.Wrapf(ErrNumericDegeneracy, "projection matrix has a singular 3x3 block (det %g)", det)
	}
	// P is homogeneous; flipping its sign keeps R a proper rotation
	if det < 0 {
		proj.Scale(-1, proj)
		A.Scale(-1, A)
	}
	p4 := r3.Vector{X: proj.At(0, 3), Y: proj.At(1, 3), Z: proj.At(2, 3)}

	K, R := rqDecompose(A)

	aInv, err := invert3x3(A, "projection")
	if err != nil {
		return nil, err
	}
	center := mulVec(aInv, p4).Mul(-1)
	translation := mulVec(R, center).Mul(-1)

	var essMat mat.Dense
	essMat.Mul(crossProductMatrix(translation), R)
	return &ProjectiveDecomposition{
		K:           K,
		Rotation:    R,
		Essential:   &essMat,
		Center:      center,
		Translation: translation,
	}, nil
}

// rqDecompose returns K upper triangular and R orthogonal with A = K * R. K has a positive
// diagonal and is scaled so that K(2,2) = 1.
func rqDecompose(A *mat.Dense) (*mat.Dense, *mat.Dense) {
	K := mat.DenseCopyOf(A)
	Q := eye(3)

	// zero (2,1)
	if r := math.Hypot(K.At(2, 2), K.At(2, 1)); r > 0 {
		c, s := -K.At(2, 2)/r, K.At(2, 1)/r
		qx := mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, c, -s,
			0, s, c,
		})
		K.Mul(K, qx)
		Q.Mul(Q, qx)
	}
	// zero (2,0)
	if r := math.Hypot(K.At(2, 2), K.At(2, 0)); r > 0 {
		c, s := K.At(2, 2)/r, K.At(2, 0)/r
		qy := mat.NewDense(3, 3, []float64{
			c, 0, s,
			0, 1, 0,
			-s, 0, c,
		})
		K.Mul(K, qy)
		Q.Mul(Q, qy)
	}
	// zero (1,0)
	if r := math.Hypot(K.At(1, 1), K.At(1, 0)); r > 0 {
		c, s := -K.At(1, 1)/r, K.At(1, 0)/r
		qz := mat.NewDense(3, 3, []float64{
			c, -s, 0,
			s, c, 0,
			0, 0, 1,
		})
		K.Mul(K, qz)
		Q.Mul(Q, qz)
	}
	// rounding leaves tiny values below the diagonal
	K.Set(1, 0, 0)
	K.Set(2, 0, 0)
	K.Set(2, 1, 0)

	R := transposeDense(Q)
	for i := 0; i < 3; i++ {
		if K.At(i, i) < 0 {
			// K * D and D * R with D = diag(..., -1, ...)
			for j := 0; j < 3; j++ {
				K.Set(j, i, -K.At(j, i))
				R.Set(i, j, -R.At(i, j))
			}
		}
	}
	K.Scale(1/K.At(2, 2), K)
	K.Set(2, 2, 1)
	return K, R
}
