package linalg

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SVD stores the matrices from a full singular value decomposition.
type SVD struct {
	U      *mat.Dense
	V      *mat.Dense
	VT     *mat.Dense
	S      *mat.Dense
	Values []float64
}

// PerformSVD performs a full SVD on inputMatrix and returns U, Sigma and V.
func PerformSVD(inputMatrix mat.Matrix) (*SVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize matrix")
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &SVD{U: u, V: v, VT: vt, S: sigma, Values: singularValues}, nil
}

// NullVector returns the right singular vector associated with the smallest singular value,
// i.e. the least squares solution of A x = 0 with |x| = 1.
func NullVector(a mat.Matrix) ([]float64, error) {
	svd, err := PerformSVD(a)
	if err != nil {
		return nil, err
	}
	_, c := svd.V.Dims()
	return mat.Col(nil, c-1, svd.V), nil
}

// EnforceRank2 zeroes the smallest singular value of a 3x3 matrix and divides the result by its
// largest singular value, so the returned matrix has singular values (1, s2/s1, 0).
func EnforceRank2(m mat.Matrix) (*mat.Dense, error) {
	svd, err := PerformSVD(m)
	if err != nil {
		return nil, err
	}
	if svd.Values[0] == 0 {
		return Zero3(), nil
	}
	s := mat.NewDiagDense(3, []float64{1, svd.Values[1] / svd.Values[0], 0})
	var out mat.Dense
	out.Mul(svd.U, s)
	out.Mul(&out, svd.VT)
	return &out, nil
}

// NormalizeByLargestSingularValue returns m divided by its largest singular value.
func NormalizeByLargestSingularValue(m mat.Matrix) *mat.Dense {
	var out mat.Dense
	var s float64
	if values := SingularValues(m); len(values) > 0 {
		s = values[0]
	}
	if s == 0 {
		out.CloneFrom(m)
		return &out
	}
	out.Scale(1/s, m)
	return &out
}

// SingularValues returns the singular values of m in descending order.
func SingularValues(m mat.Matrix) []float64 {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return nil
	}
	return svd.Values(nil)
}
