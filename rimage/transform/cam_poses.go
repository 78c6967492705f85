package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// minSingularValue is the smallest leading singular value for which an essential matrix is
// considered non-zero.
const minSingularValue = 1e-12

// wMatrix is the quarter turn about the third axis used in the classical factorization of an
// essential matrix.
var wMatrix = mat.NewDense(3, 3, []float64{
	0, -1, 0,
	1, 0, 0,
	0, 0, 1,
})

// Pose is the relative pose of a second camera with respect to a first one: a point X in the
// first camera's frame is R*X + t in the second camera's frame. The translation has unit norm;
// its sign and the metric scale are not recoverable from two views.
type Pose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// NewPose creates a pose from a 3x3 rotation and a translation.
func NewPose(rotation *mat.Dense, translation r3.Vector) *Pose {
	return &Pose{Rotation: rotation, Translation: translation}
}

// Transform maps a point from the first camera's frame into the second camera's frame.
func (p *Pose) Transform(x r3.Vector) r3.Vector {
	return mulVec(p.Rotation, x).Add(p.Translation)
}

// PoseMatrix returns the 3x4 matrix [R | t].
func (p *Pose) PoseMatrix() *mat.Dense {
	t := mat.NewDense(3, 1, []float64{p.Translation.X, p.Translation.Y, p.Translation.Z})
	var pose mat.Dense
	pose.Augment(p.Rotation, t)
	return &pose
}

// EssentialMatrix returns [t]x * R, the essential matrix consistent with this pose.
func (p *Pose) EssentialMatrix() *mat.Dense {
	var essMat mat.Dense
	essMat.Mul(crossProductMatrix(p.Translation), p.Rotation)
	return &essMat
}

// essentialSVD factorizes an essential matrix after rescaling it by its largest singular value,
// and flips V so that U * V^T is a proper rotation.
func essentialSVD(essMat mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	if err := check3x3(essMat, "essential"); err != nil {
		return nil, nil, err
	}
	mats, err := performSVD(essMat)
	if err != nil {
		return nil, nil, err
	}
	largest := mats.S.At(0, 0)
	if largest < minSingularValue {
		return nil, nil, errors.Wrap(ErrNumericDegeneracy, "essential matrix is zero")
	}
	// pushes the two non-zero singular values towards each other
	var scaled mat.Dense
	scaled.Scale(1/largest, essMat)
	mats, err = performSVD(&scaled)
	if err != nil {
		return nil, nil, err
	}

	var uvt mat.Dense
	uvt.Mul(mats.U, mats.VT)
	if mat.Det(&uvt) < 0 {
		mats.V.Scale(-1, mats.V)
	}
	return mats.U, mats.V, nil
}

// DecomposeEssentialMatrix decomposes the essential matrix into the rotation U*W*V^T and the
// translation direction given by the third column of U. The result is one of the four poses
// consistent with the matrix; see GetPossibleCameraPoses and GetCorrectCameraPose.
func DecomposeEssentialMatrix(essMat mat.Matrix) (*Pose, error) {
	u, v, err := essentialSVD(essMat)
	if err != nil {
		return nil, err
	}
	var rot mat.Dense
	rot.Mul(u, wMatrix)
	rot.Mul(&rot, v.T())
	return NewPose(&rot, translationFromU(u)), nil
}

func translationFromU(u *mat.Dense) r3.Vector {
	U3 := u.ColView(2)
	return r3.Vector{X: U3.AtVec(0), Y: U3.AtVec(1), Z: U3.AtVec(2)}
}

// GetPossibleCameraPoses computes all 4 possible poses from the essential matrix:
// {U*W*V^T, U*W^T*V^T} x {t, -t}.
func GetPossibleCameraPoses(essMat mat.Matrix) ([]*Pose, error) {
	u, v, err := essentialSVD(essMat)
	if err != nil {
		return nil, err
	}
	var R1, R2 mat.Dense
	// UWV^T
	R1.Mul(u, wMatrix)
	R1.Mul(&R1, v.T())
	// UW^TV^T
	R2.Mul(u, wMatrix.T())
	R2.Mul(&R2, v.T())

	t := translationFromU(u)
	return []*Pose{
		NewPose(&R1, t),
		NewPose(mat.DenseCopyOf(&R1), t.Mul(-1)),
		NewPose(&R2, t),
		NewPose(mat.DenseCopyOf(&R2), t.Mul(-1)),
	}, nil
}

// GetNumberPositiveDepth counts the calibrated ray pairs that triangulate in front of both cameras.
func GetNumberPositiveDepth(pose *Pose, essMat mat.Matrix, raysA, raysB []r3.Vector) int {
	nPositiveDepth := 0
	for i := range raysA {
		depthA, depthB, err := TriangulateDepths(essMat, pose, raysA[i], raysB[i])
		if err != nil {
			continue
		}
		if depthA > 0 && depthB > 0 {
			nPositiveDepth++
		}
	}
	return nPositiveDepth
}

// GetCorrectCameraPose returns the pose with the most positive depths (the cheirality test),
// along with that count. Ties keep the earliest pose.
func GetCorrectCameraPose(poses []*Pose, essMat mat.Matrix, raysA, raysB []r3.Vector) (*Pose, int) {
	if len(poses) == 0 {
		return nil, 0
	}
	maxNumPosDepth := -1
	correctPose := poses[0]
	for _, pose := range poses {
		nPosDepth := GetNumberPositiveDepth(pose, essMat, raysA, raysB)
		if nPosDepth > maxNumPosDepth {
			maxNumPosDepth = nPosDepth
			correctPose = pose
		}
	}
	return correctPose, maxNumPosDepth
}
