package transform

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/linalg"
)

// Rectification holds the homographies mapping the original images of a camera pair to
// rectified images, where corresponding points share the same row, and the rectified cameras.
type Rectification struct {
	H0, H1 *mat.Dense
	P0, P1 *mat.Dense
}

// RectifyingHomographies computes the compact rectification of two cameras: both are rotated
// about their optical centers to a common orientation whose x axis is the baseline, and share
// the mean of their intrinsics with zero skew.
func RectifyingHomographies(p0, p1 mat.Matrix) (*Rectification, error) {
	k0, r0, _, err := DecomposeCameraMatrix(p0)
	if err != nil {
		return nil, errors.Wrap(err, "first camera")
	}
	k1, _, _, err := DecomposeCameraMatrix(p1)
	if err != nil {
		return nil, errors.Wrap(err, "second camera")
	}
	c0, err := CameraCenter(p0)
	if err != nil {
		return nil, errors.Wrap(err, "first camera")
	}
	c1, err := CameraCenter(p1)
	if err != nil {
		return nil, errors.Wrap(err, "second camera")
	}

	baseline := c1.Sub(c0)
	if baseline.Norm() == 0 {
		return nil, errors.New("cameras share the same optical center")
	}
	v1 := baseline.Normalize()
	// new y axis is orthogonal to the baseline and to the old optical axis
	v2 := linalg.Row(r0, 2).Cross(v1)
	if v2.Norm() == 0 {
		return nil, errors.New("baseline is parallel to the optical axis")
	}
	v2 = v2.Normalize()
	v3 := v1.Cross(v2)
	rn := linalg.FromRows(v1, v2, v3)

	var kn mat.Dense
	kn.Add(k0, k1)
	kn.Scale(0.5, &kn)
	kn.Set(0, 1, 0)

	pn0 := NewCameraMatrix(&kn, rn, linalg.MulVec3(rn, c0).Mul(-1))
	pn1 := NewCameraMatrix(&kn, rn, linalg.MulVec3(rn, c1).Mul(-1))

	h0, err := blockTransfer(pn0, p0)
	if err != nil {
		return nil, err
	}
	h1, err := blockTransfer(pn1, p1)
	if err != nil {
		return nil, err
	}
	return &Rectification{H0: h0, H1: h1, P0: pn0, P1: pn1}, nil
}

// blockTransfer returns Qn Qo^-1 where Q is the left 3x3 block of each camera.
func blockTransfer(pn, po mat.Matrix) (*mat.Dense, error) {
	qo := mat.DenseCopyOf(po).Slice(0, 3, 0, 3)
	qoInv, err := linalg.Inverse3(qo)
	if err != nil {
		return nil, err
	}
	var h mat.Dense
	h.Mul(mat.DenseCopyOf(pn).Slice(0, 3, 0, 3), qoInv)
	if s := h.At(2, 2); s != 0 {
		h.Scale(1/s, &h)
	}
	return &h, nil
}
