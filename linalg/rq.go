package linalg

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// exchange is the 3x3 anti-diagonal permutation.
var exchange = mat.NewDense(3, 3, []float64{
	0, 0, 1,
	0, 1, 0,
	1, 0, 0,
})

// RQ3 factors a 3x3 matrix as m = K Q with K upper triangular with a positive diagonal and Q
// orthogonal. It runs a QR factorization of (J m)^T, J being the exchange matrix.
func RQ3(m mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return nil, nil, errors.Errorf("RQ3 needs a 3x3 matrix, got %dx%d", r, c)
	}
	var jm mat.Dense
	jm.Mul(exchange, m)

	var qr mat.QR
	qr.Factorize(jm.T())
	var qt, rt mat.Dense
	qr.QTo(&qt)
	qr.RTo(&rt)

	// m = (J Rt^T J)(J Qt^T)
	var k, q mat.Dense
	k.Mul(exchange, rt.T())
	k.Mul(&k, exchange)
	q.Mul(exchange, qt.T())

	for i := 0; i < 3; i++ {
		if k.At(i, i) < 0 {
			for r := 0; r < 3; r++ {
				k.Set(r, i, -k.At(r, i))
			}
			for c := 0; c < 3; c++ {
				q.Set(i, c, -q.At(i, c))
			}
		}
	}
	return &k, &q, nil
}
