package linalg

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// NormalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: the
// centroid moves to the origin and the mean distance to it becomes sqrt(2). It returns the
// transformed points and the 3x3 similarity T such that p' = T p.
func NormalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	if nPoints == 0 {
		return nil, Eye(3)
	}
	mu, d := Spread(pts)
	scale := 1.0
	if d > 0 {
		scale = math.Sqrt2 / d
	}
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T
}

// Spread returns the centroid of the points and their mean distance to it.
func Spread(pts []r2.Point) (r2.Point, float64) {
	if len(pts) == 0 {
		return r2.Point{}, 0
	}
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(len(pts)))
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm()
	}
	return mu, d / float64(len(pts))
}
