package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// RotationToQuaternion converts a 3x3 rotation matrix to a unit quaternion. The largest of the
// four candidate pivots is used for numerical stability.
func RotationToQuaternion(r mat.Matrix) quat.Number {
	r00, r01, r02 := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	r10, r11, r12 := r.At(1, 0), r.At(1, 1), r.At(1, 2)
	r20, r21, r22 := r.At(2, 0), r.At(2, 1), r.At(2, 2)

	var q quat.Number
	trace := r00 + r11 + r22
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = quat.Number{Real: 0.25 * s, Imag: (r21 - r12) / s, Jmag: (r02 - r20) / s, Kmag: (r10 - r01) / s}
	case r00 > r11 && r00 > r22:
		s := math.Sqrt(1+r00-r11-r22) * 2
		q = quat.Number{Real: (r21 - r12) / s, Imag: 0.25 * s, Jmag: (r01 + r10) / s, Kmag: (r02 + r20) / s}
	case r11 > r22:
		s := math.Sqrt(1+r11-r00-r22) * 2
		q = quat.Number{Real: (r02 - r20) / s, Imag: (r01 + r10) / s, Jmag: 0.25 * s, Kmag: (r12 + r21) / s}
	default:
		s := math.Sqrt(1+r22-r00-r11) * 2
		q = quat.Number{Real: (r10 - r01) / s, Imag: (r02 + r20) / s, Jmag: (r12 + r21) / s, Kmag: 0.25 * s}
	}
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	}
	return q
}

// QuaternionToRotation converts a quaternion to a 3x3 rotation matrix. The quaternion is
// normalized first.
func QuaternionToRotation(q quat.Number) *mat.Dense {
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	})
}

// Orthonormalize round-trips a nearly orthonormal matrix through a unit quaternion, removing the
// numerical drift left by SVD products.
func Orthonormalize(r mat.Matrix) *mat.Dense {
	return QuaternionToRotation(RotationToQuaternion(r))
}

// RotationFromAxisAngle returns the rotation of theta radians about the given axis.
func RotationFromAxisAngle(x, y, z, theta float64) *mat.Dense {
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return Eye(3)
	}
	s := math.Sin(theta/2) / n
	return QuaternionToRotation(quat.Number{Real: math.Cos(theta / 2), Imag: x * s, Jmag: y * s, Kmag: z * s})
}

// RotationFromVector returns the rotation encoded by a Rodrigues vector (axis scaled by angle).
func RotationFromVector(v []float64) *mat.Dense {
	theta := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if theta == 0 {
		return Eye(3)
	}
	return RotationFromAxisAngle(v[0], v[1], v[2], theta)
}

// RotationToVector returns the Rodrigues vector of a rotation matrix.
func RotationToVector(r mat.Matrix) [3]float64 {
	q := RotationToQuaternion(r)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	sinHalf := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if sinHalf < 1e-15 {
		return [3]float64{2 * q.Imag, 2 * q.Jmag, 2 * q.Kmag}
	}
	theta := 2 * math.Atan2(sinHalf, q.Real)
	k := theta / sinHalf
	return [3]float64{q.Imag * k, q.Jmag * k, q.Kmag * k}
}
