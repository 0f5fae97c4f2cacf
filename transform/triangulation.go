package transform

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/linalg"
	"go.viam.com/multiview/utils"
)

// DefaultHartleySturmIterations is used when maxIter is not positive.
const DefaultHartleySturmIterations = 100

// hartleySturmTolerance bounds the norm of the change of the two depth weights.
const hartleySturmTolerance = 1e-12

// ErrDegenerateTriangulation is returned when the rays give no finite point.
var ErrDegenerateTriangulation = errors.New("degenerate triangulation")

// NewDegenerateTriangulationError wraps ErrDegenerateTriangulation with context.
func NewDegenerateTriangulationError(msg string) error {
	return errors.Wrap(ErrDegenerateTriangulation, msg)
}

// TriangulateLonguetHiggins triangulates a point seen at x0 in the first camera and x1 in the
// second, both in normalized camera coordinates, when the second camera maps a point X of the
// first camera frame to R X + t. The point is returned in the first camera frame as a homogeneous
// 4-vector with last coordinate 1, or 0 when the rays are parallel.
func TriangulateLonguetHiggins(x0, x1 r2.Point, r mat.Matrix, t r3.Vector) [4]float64 {
	ray := linalg.Homogeneous(x0)
	row0, row1, row2 := linalg.Row(r, 0), linalg.Row(r, 1), linalg.Row(r, 2)

	// depth from the x and the y equations, take the better conditioned one
	denU := row2.Mul(x1.X).Sub(row0).Dot(ray)
	denV := row2.Mul(x1.Y).Sub(row1).Dot(ray)
	var z float64
	switch {
	case math.Abs(denU) >= math.Abs(denV) && denU != 0:
		z = (t.X - x1.X*t.Z) / denU
	case denV != 0:
		z = (t.Y - x1.Y*t.Z) / denV
	default:
		return [4]float64{ray.X, ray.Y, ray.Z, 0}
	}
	return [4]float64{x0.X * z, x0.Y * z, z, 1}
}

// TriangulateHartleySturm triangulates a point seen at x0 by camera p0 and at x1 by camera p1
// (3x4 projection matrices) with iteratively reweighted linear least squares. Each iteration
// divides the rows of each camera by its depth for the previous estimate and re-solves. It stops
// once the depth weights move by less than 1e-12 or after maxIter iterations (100 when maxIter
// is not positive), and returns the point with last coordinate 1 and the iterations used.
func TriangulateHartleySturm(p0, p1 mat.Matrix, x0, x1 r2.Point, maxIter int) ([4]float64, int) {
	if maxIter <= 0 {
		maxIter = DefaultHartleySturmIterations
	}
	w0, w1 := 1.0, 1.0
	var x [4]float64
	a := mat.NewDense(4, 4, nil)
	iter := 0
	for iter < maxIter {
		iter++
		setProjectionRows(a, 0, p0, x0, w0)
		setProjectionRows(a, 2, p1, x1, w1)
		v, err := linalg.NullVector(a)
		if err != nil || v[3] == 0 {
			break
		}
		x = [4]float64{v[0] / v[3], v[1] / v[3], v[2] / v[3], 1}

		nw0, nw1 := depthOf(p0, x), depthOf(p1, x)
		delta := math.Hypot(nw0-w0, nw1-w1)
		if nw0 == 0 || nw1 == 0 {
			break
		}
		w0, w1 = nw0, nw1
		if delta < hartleySturmTolerance {
			break
		}
	}
	return x, iter
}

// setProjectionRows writes the two DLT rows of camera p and image point pt at row offset,
// divided by weight.
func setProjectionRows(a *mat.Dense, offset int, p mat.Matrix, pt r2.Point, weight float64) {
	for j := 0; j < 4; j++ {
		a.Set(offset, j, (pt.X*p.At(2, j)-p.At(0, j))/weight)
		a.Set(offset+1, j, (pt.Y*p.At(2, j)-p.At(1, j))/weight)
	}
}

// depthOf is the third row of p applied to x.
func depthOf(p mat.Matrix, x [4]float64) float64 {
	return p.At(2, 0)*x[0] + p.At(2, 1)*x[1] + p.At(2, 2)*x[2] + p.At(2, 3)*x[3]
}

// TriangulateLinear triangulates one point from two or more views with the homogeneous direct
// linear transform.
func TriangulateLinear(cams []mat.Matrix, pts []r2.Point) (r3.Vector, error) {
	if len(cams) != len(pts) {
		return r3.Vector{}, errors.Errorf("got %d cameras and %d points", len(cams), len(pts))
	}
	if len(cams) < 2 {
		return r3.Vector{}, errors.New("triangulation needs at least 2 views")
	}
	a := mat.NewDense(2*len(cams), 4, nil)
	for i, p := range cams {
		if r, c := p.Dims(); r != 3 || c != 4 {
			return r3.Vector{}, errors.Errorf("camera %d is %dx%d, expected 3x4", i, r, c)
		}
		setProjectionRows(a, 2*i, p, pts[i], 1)
	}
	v, err := linalg.NullVector(a)
	if err != nil {
		return r3.Vector{}, err
	}
	if v[3] == 0 {
		return r3.Vector{}, NewDegenerateTriangulationError("point at infinity")
	}
	return r3.Vector{X: v[0] / v[3], Y: v[1] / v[3], Z: v[2] / v[3]}, nil
}

// TriangulatePoints runs TriangulateHartleySturm on every correspondence in parallel. The output
// is ordered like the input.
func TriangulatePoints(ctx context.Context, p0, p1 mat.Matrix, pts0, pts1 []r2.Point, maxIter int) ([]r3.Vector, error) {
	if len(pts0) != len(pts1) {
		return nil, errors.Errorf("point sets differ in length: %d != %d", len(pts0), len(pts1))
	}
	out := make([]r3.Vector, len(pts0))
	err := utils.ParallelForEach(ctx, len(pts0), func(i int) error {
		x, _ := TriangulateHartleySturm(p0, p1, pts0[i], pts1[i], maxIter)
		if x[3] == 0 {
			return NewDegenerateTriangulationError("point at infinity")
		}
		out[i] = r3.Vector{X: x[0], Y: x[1], Z: x[2]}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
