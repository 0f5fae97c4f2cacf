// Package linalg wraps the gonum matrix routines used by the estimators: small fixed-size
// inverses, SVD, the Hartley normalization transform and rotation re-orthonormalization.
package linalg

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/logging"
)

// ErrSingularMatrix is returned with a best-effort result when a 3x3 matrix is (numerically) singular.
var ErrSingularMatrix = errors.New("matrix is singular")

// NewSingularMatrixError wraps ErrSingularMatrix with context.
func NewSingularMatrixError(msg string) error {
	return errors.Wrap(ErrSingularMatrix, msg)
}

// singularTolerance is relative to the cube of the Frobenius norm.
const singularTolerance = 1e-12

// Eye creates an identity matrix of size nxn.
func Eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Transpose returns a new dense copy of the transpose of m.
func Transpose(m mat.Matrix) *mat.Dense {
	nRows, nCols := m.Dims()
	m2 := mat.NewDense(nCols, nRows, nil)
	m2.Copy(m.T())
	return m2
}

// Zero3 returns the 3x3 zero matrix, the sentinel returned by estimators on invalid input.
func Zero3() *mat.Dense {
	return mat.NewDense(3, 3, nil)
}

// IsZero returns true if every entry of m is exactly zero.
func IsZero(m mat.Matrix) bool {
	if m == nil {
		return true
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// Det3 returns the determinant of a 3x3 matrix using the rule of Sarrus.
func Det3(m mat.Matrix) float64 {
	return m.At(0, 0)*(m.At(1, 1)*m.At(2, 2)-m.At(1, 2)*m.At(2, 1)) -
		m.At(0, 1)*(m.At(1, 0)*m.At(2, 2)-m.At(1, 2)*m.At(2, 0)) +
		m.At(0, 2)*(m.At(1, 0)*m.At(2, 1)-m.At(1, 1)*m.At(2, 0))
}

// Inverse3 inverts a 3x3 matrix through its adjugate. When the determinant is numerically zero a
// warning is logged and the best-effort inverse is returned together with ErrSingularMatrix.
func Inverse3(m mat.Matrix) (*mat.Dense, error) {
	inv, ok := Invert3(m)
	if !ok {
		det := Det3(m)
		logging.Global().Warnw("inverting a singular 3x3 matrix", "det", det, "norm", mat.Norm(m, 2))
		if det == 0 {
			return inv, NewSingularMatrixError("determinant is zero")
		}
		return inv, NewSingularMatrixError("determinant is close to zero")
	}
	return inv, nil
}

// Invert3 is Inverse3 without logging, for hot loops such as optimizer objectives. It reports
// false when the matrix is numerically singular; the adjugate is then only divided by a
// non-zero determinant.
func Invert3(m mat.Matrix) (*mat.Dense, bool) {
	det := Det3(m)
	norm := mat.Norm(m, 2)
	inv := mat.NewDense(3, 3, []float64{
		m.At(1, 1)*m.At(2, 2) - m.At(1, 2)*m.At(2, 1),
		m.At(0, 2)*m.At(2, 1) - m.At(0, 1)*m.At(2, 2),
		m.At(0, 1)*m.At(1, 2) - m.At(0, 2)*m.At(1, 1),
		m.At(1, 2)*m.At(2, 0) - m.At(1, 0)*m.At(2, 2),
		m.At(0, 0)*m.At(2, 2) - m.At(0, 2)*m.At(2, 0),
		m.At(0, 2)*m.At(1, 0) - m.At(0, 0)*m.At(1, 2),
		m.At(1, 0)*m.At(2, 1) - m.At(1, 1)*m.At(2, 0),
		m.At(0, 1)*m.At(2, 0) - m.At(0, 0)*m.At(2, 1),
		m.At(0, 0)*m.At(1, 1) - m.At(0, 1)*m.At(1, 0),
	})
	if det != 0 {
		inv.Scale(1/det, inv)
	}
	return inv, math.Abs(det) > singularTolerance*norm*norm*norm
}

// CrossMatrix returns the skew-symmetric matrix [p]x such that [p]x v = p x v.
func CrossMatrix(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

// MulVec3 returns m*v for a 3x3 matrix.
func MulVec3(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// Homogeneous lifts an image point to (x, y, 1).
func Homogeneous(pt r2.Point) r3.Vector {
	return r3.Vector{X: pt.X, Y: pt.Y, Z: 1}
}

// Dehomogenize divides by the last coordinate.
func Dehomogenize(v r3.Vector) r2.Point {
	return r2.Point{X: v.X / v.Z, Y: v.Y / v.Z}
}

// Transfer maps an image point through a 3x3 projective transform.
func Transfer(m mat.Matrix, pt r2.Point) r2.Point {
	return Dehomogenize(MulVec3(m, Homogeneous(pt)))
}

// Column returns column j of a 3xN matrix as a vector.
func Column(m mat.Matrix, j int) r3.Vector {
	return r3.Vector{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
}

// Row returns row i of an Nx3 matrix as a vector.
func Row(m mat.Matrix, i int) r3.Vector {
	return r3.Vector{X: m.At(i, 0), Y: m.At(i, 1), Z: m.At(i, 2)}
}

// FromColumns builds a 3x3 matrix from three column vectors.
func FromColumns(c0, c1, c2 r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		c0.X, c1.X, c2.X,
		c0.Y, c1.Y, c2.Y,
		c0.Z, c1.Z, c2.Z,
	})
}

// FromRows builds a 3x3 matrix from three row vectors.
func FromRows(r0, r1, r2 r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		r0.X, r0.Y, r0.Z,
		r1.X, r1.Y, r1.Z,
		r2.X, r2.Y, r2.Z,
	})
}
