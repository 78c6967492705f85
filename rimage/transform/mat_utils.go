package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// mat.Dense utils.
func transposeDense(m mat.Matrix) *mat.Dense {
	nRows, nCols := m.Dims()
	m2 := mat.NewDense(nCols, nRows, nil)
	m2.Copy(m.T())
	return m2
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix mat.Matrix) (*matsSVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil, errors.Wrap(ErrNumericDegeneracy, "singular value decomposition failed to converge")
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma}, nil
}

// crossProductMatrix returns the skew-symmetric matrix [p]x such that [p]x * q = p x q.
func crossProductMatrix(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

// mulVec returns m * v for a 3x3 matrix m.
func mulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// mulTransposeVec returns m^T * v for a 3x3 matrix m.
func mulTransposeVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return mulVec(m.T(), v)
}

func check3x3(m mat.Matrix, name string) error {
	if m == nil {
		return errors.Errorf("%s matrix is nil", name)
	}
	if r, c := m.Dims(); r != 3 || c != 3 {
		return errors.Errorf("%s matrix must be 3x3, got %dx%d", name, r, c)
	}
	return nil
}

// invert3x3 returns the inverse of a 3x3 matrix such as a calibration matrix.
func invert3x3(m mat.Matrix, name string) (*mat.Dense, error) {
	if err := check3x3(m, name); err != nil {
		return nil, err
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, errors.Wrapf(ErrNumericDegeneracy, "cannot invert %s matrix: %v", name, err)
	}
	return &inv, nil
}
