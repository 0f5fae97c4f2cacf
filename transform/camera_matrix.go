package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/linalg"
)

// NewCameraMatrix returns the 3x4 projection matrix P = K [R | t].
func NewCameraMatrix(k, r mat.Matrix, t r3.Vector) *mat.Dense {
	var rt mat.Dense
	rt.Augment(r, mat.NewDense(3, 1, []float64{t.X, t.Y, t.Z}))
	p := mat.NewDense(3, 4, nil)
	p.Mul(k, &rt)
	return p
}

// Project projects a 3D point through the camera matrix P and then applies the distortion, if any.
func Project(p mat.Matrix, x r3.Vector, distortion Distorter) r2.Point {
	return ProjectHomogeneous(p, [4]float64{x.X, x.Y, x.Z, 1}, distortion)
}

// ProjectHomogeneous projects a homogeneous 4-vector through P and then applies the distortion, if any.
func ProjectHomogeneous(p mat.Matrix, x [4]float64, distortion Distorter) r2.Point {
	var v [3]float64
	for i := range v {
		for j := 0; j < 4; j++ {
			v[i] += p.At(i, j) * x[j]
		}
	}
	pt := r2.Point{X: v[0] / v[2], Y: v[1] / v[2]}
	if distortion != nil {
		pt.X, pt.Y = distortion.Transform(pt.X, pt.Y)
	}
	return pt
}

// DecomposeCameraMatrix splits P = K [R | t] into K, with K[2,2] = 1, the rotation R and t.
func DecomposeCameraMatrix(p mat.Matrix) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	if r, c := p.Dims(); r != 3 || c != 4 {
		return nil, nil, r3.Vector{}, errors.Errorf("camera matrix must be 3x4, got %dx%d", r, c)
	}
	m := mat.DenseCopyOf(p).Slice(0, 3, 0, 3)
	p4 := linalg.Column(p, 3)
	// a camera matrix is only defined up to scale, pick the sign giving a proper rotation
	if linalg.Det3(m) < 0 {
		var neg mat.Dense
		neg.Scale(-1, m)
		m = &neg
		p4 = p4.Mul(-1)
	}
	k, r, err := linalg.RQ3(m)
	if err != nil {
		return nil, nil, r3.Vector{}, err
	}
	scale := k.At(2, 2)
	if scale == 0 {
		return nil, nil, r3.Vector{}, errors.New("camera matrix has a singular left 3x3 block")
	}
	k.Scale(1/scale, k)
	kInv, err := linalg.Inverse3(k)
	if err != nil {
		return nil, nil, r3.Vector{}, err
	}
	t := linalg.MulVec3(kInv, p4.Mul(1/scale))
	return k, linalg.Orthonormalize(r), t, nil
}

// CameraCenter returns the optical center C of P, the point with P [C; 1] = 0.
func CameraCenter(p mat.Matrix) (r3.Vector, error) {
	m := mat.DenseCopyOf(p).Slice(0, 3, 0, 3)
	mInv, err := linalg.Inverse3(m)
	if err != nil {
		return r3.Vector{}, err
	}
	return linalg.MulVec3(mInv, linalg.Column(p, 3)).Mul(-1), nil
}

// CameraFromHomography returns the camera matrix of a view of the plane Z = 0 whose points (X, Y)
// map to the image through H. The in-plane axes r1 and r2 come from K^-1 H and are orthonormalized,
// r3 = r1 x r2, and the target is placed in front of the camera.
func CameraFromHomography(k, h mat.Matrix) (*mat.Dense, error) {
	kInv, err := linalg.Inverse3(k)
	if err != nil {
		return nil, err
	}
	var m mat.Dense
	m.Mul(kInv, h)
	m1, m2, m3 := linalg.Column(&m, 0), linalg.Column(&m, 1), linalg.Column(&m, 2)
	n1, n2 := m1.Norm(), m2.Norm()
	if n1 == 0 || n2 == 0 {
		return nil, errors.New("homography does not map a plane")
	}
	lambda := 2 / (n1 + n2)
	if m3.Z < 0 {
		lambda = -lambda
	}
	r1 := m1.Mul(lambda)
	r2 := m2.Mul(lambda)
	t := m3.Mul(lambda)

	// Gram-Schmidt, then polish through a quaternion
	r1 = r1.Normalize()
	r2 = r2.Sub(r1.Mul(r1.Dot(r2))).Normalize()
	r := linalg.Orthonormalize(linalg.FromColumns(r1, r2, r1.Cross(r2)))
	return NewCameraMatrix(k, r, t), nil
}
