package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/linalg"
	"go.viam.com/multiview/logging"
	"go.viam.com/multiview/neldermead"
	"go.viam.com/multiview/ransac"
)

// DefaultHomographyThreshold is the squared transfer error, in pixels squared, under which a
// correspondence is an inlier of a homography.
const DefaultHomographyThreshold = 4.0

const homographySampleSize = 4

// Homography is a 3x3 matrix (represented as a 2D array) used to transform a plane from the perspective of a 2D
// camera to the perspective of another 2D camera. Indices are [row][column]. It implements mat.Matrix.
type Homography [3][3]float64

// NewHomography creates a homography from 9 row-major values, or from the 8 free values when
// the last entry is fixed to 1.
func NewHomography(vals []float64) (*Homography, error) {
	var h Homography
	switch len(vals) {
	case 8:
		h[2][2] = 1
	case 9:
	default:
		return nil, errors.Errorf("input to NewHomography must have length of 8 or 9, has length of %d", len(vals))
	}
	for i, v := range vals {
		h[i/3][i%3] = v
	}
	return &h, nil
}

// NewHomographyFromMatrix copies a 3x3 matrix.
func NewHomographyFromMatrix(m mat.Matrix) *Homography {
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = m.At(i, j)
		}
	}
	return &h
}

// At returns the value at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Dims returns the matrix dimensions.
func (h *Homography) Dims() (int, int) {
	return 3, 3
}

// T returns the transpose.
func (h *Homography) T() mat.Matrix {
	return mat.Transpose{Matrix: h}
}

// Apply transforms a 2D point.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Inverse returns the inverse homography, normalized so its last entry is 1 when possible.
func (h *Homography) Inverse() (*Homography, error) {
	inv, err := linalg.Inverse3(h)
	if err != nil {
		return nil, err
	}
	out := NewHomographyFromMatrix(inv)
	out.normalize()
	return out, nil
}

// Dense returns a copy as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	return mat.DenseCopyOf(h)
}

// Params returns the 8 free parameters of h scaled so that the last entry is 1.
func (h *Homography) Params() []float64 {
	n := *h
	n.normalize()
	out := make([]float64, 8)
	for i := range out {
		out[i] = n[i/3][i%3]
	}
	return out
}

func (h *Homography) normalize() {
	s := h[2][2]
	if s == 0 {
		return
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] /= s
		}
	}
}

// EstimateHomography estimates the homography H such that pts1 ~ H pts0 with the normalized
// direct linear transform. The result is scaled so that H[2,2] = 1. The zero matrix is returned
// if the point sets differ in length, hold fewer than 4 points, or are degenerate.
func EstimateHomography(pts0, pts1 []r2.Point) *mat.Dense {
	if len(pts0) != len(pts1) || len(pts0) < homographySampleSize {
		return linalg.Zero3()
	}
	if _, d := linalg.Spread(pts0); d == 0 {
		return linalg.Zero3()
	}
	if _, d := linalg.Spread(pts1); d == 0 {
		return linalg.Zero3()
	}
	p0, t0 := linalg.NormalizePoints(pts0)
	p1, t1 := linalg.NormalizePoints(pts1)

	a := mat.NewDense(2*len(p0), 9, nil)
	for i := range p0 {
		x, y := p0[i].X, p0[i].Y
		u, v := p1[i].X, p1[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	h, err := linalg.NullVector(a)
	if err != nil {
		return linalg.Zero3()
	}

	// un-normalize: T1^-1 Hn T0
	t1Inv, err := linalg.Inverse3(t1)
	if err != nil {
		return linalg.Zero3()
	}
	var out mat.Dense
	out.Mul(t1Inv, mat.NewDense(3, 3, h))
	out.Mul(&out, t0)

	s := out.At(2, 2)
	if math.Abs(s) < 1e-15*mat.Norm(&out, 2) || s == 0 {
		return linalg.Zero3()
	}
	out.Scale(1/s, &out)
	// a homography that collapses the plane fits only degenerate configurations
	if sv := linalg.SingularValues(&out); len(sv) != 3 || sv[2] < 1e-12*sv[0] {
		return linalg.Zero3()
	}
	return &out
}

// RansacParams are the parameters of the robust estimators.
type RansacParams struct {
	MaxIterations int     `json:"max_iterations"`
	Threshold     float64 `json:"threshold"`
	Seed          uint64  `json:"seed"`
}

func (p RansacParams) toRansac(defaultThreshold float64) ransac.Params {
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return ransac.Params{MaxIterations: p.MaxIterations, Threshold: threshold, Seed: p.Seed}
}

// homographyModel fits homographies from 4 correspondences.
type homographyModel struct {
	pts0, pts1 []r2.Point
	threshold  float64
}

func (m *homographyModel) SampleSize() int { return homographySampleSize }

func (m *homographyModel) Fit(sample []int) (*mat.Dense, bool) {
	h := EstimateHomography(lo.Map(sample, indexInto(m.pts0)), lo.Map(sample, indexInto(m.pts1)))
	return h, !linalg.IsZero(h)
}

func (m *homographyModel) IsInlier(h *mat.Dense, i int) bool {
	return transferError(h, m.pts0[i], m.pts1[i]) < m.threshold
}

// transferError is the squared distance between H p0 and p1.
func transferError(h mat.Matrix, p0, p1 r2.Point) float64 {
	d := linalg.Transfer(h, p0).Sub(p1)
	return d.Dot(d)
}

// EstimateHomographyRansac robustly estimates a homography from 4-point samples drawn with a
// seeded Mersenne Twister. It returns the homography and the ascending indices of its inliers.
// The result starts as the direct estimate over all points, which is also what is returned when
// there are fewer than 5 points. When more than 3 inliers are found the homography is refitted
// on all of them.
func EstimateHomographyRansac(pts0, pts1 []r2.Point, params RansacParams, logger logging.Logger) (*mat.Dense, []int) {
	if len(pts0) != len(pts1) || len(pts0) < homographySampleSize {
		return linalg.Zero3(), nil
	}
	rp := params.toRansac(DefaultHomographyThreshold)
	model := &homographyModel{pts0: pts0, pts1: pts1, threshold: rp.Threshold}

	h := EstimateHomography(pts0, pts1)
	if len(pts0) <= homographySampleSize {
		if linalg.IsZero(h) {
			return h, nil
		}
		return h, lo.Range(len(pts0))
	}

	res, err := ransac.Run[*mat.Dense](len(pts0), model, rp, logger)
	if err != nil || !res.Found {
		if logger != nil {
			logger.Debugw("no homography consensus, using the direct estimate", "error", err)
		}
		if linalg.IsZero(h) {
			return h, nil
		}
		return h, lo.Filter(lo.Range(len(pts0)), func(i, _ int) bool { return model.IsInlier(h, i) })
	}
	h = res.Model
	if len(res.Inliers) > homographySampleSize-1 {
		if refit := EstimateHomography(
			lo.Map(res.Inliers, indexInto(pts0)), lo.Map(res.Inliers, indexInto(pts1)),
		); !linalg.IsZero(refit) {
			h = refit
		}
	}
	return h, res.Inliers
}

// SymmetricTransferError is the sum over the given indices of |H p0 - p1|^2 + |H^-1 p1 - p0|^2.
// It is +Inf when H is singular.
func SymmetricTransferError(h mat.Matrix, pts0, pts1 []r2.Point, indices []int) float64 {
	hInv, ok := linalg.Invert3(h)
	if !ok {
		return math.Inf(1)
	}
	sum := 0.0
	for _, i := range indices {
		sum += transferError(h, pts0[i], pts1[i]) + transferError(hInv, pts1[i], pts0[i])
	}
	return sum
}

// EstimateHomographyWithNonLinearRefinement runs EstimateHomographyRansac and then polishes the 8
// free parameters of H (H[2,2] fixed to 1) with Nelder-Mead, minimizing the symmetric transfer
// error over the inliers.
func EstimateHomographyWithNonLinearRefinement(
	pts0, pts1 []r2.Point,
	params RansacParams,
	settings neldermead.Settings[float64],
	logger logging.Logger,
) (*mat.Dense, []int) {
	h, inliers := EstimateHomographyRansac(pts0, pts1, params, logger)
	if linalg.IsZero(h) || len(inliers) < homographySampleSize {
		return h, inliers
	}

	var candidate Homography
	objective := func(x []float64) float64 {
		for i, v := range x {
			candidate[i/3][i%3] = v
		}
		candidate[2][2] = 1
		return SymmetricTransferError(&candidate, pts0, pts1, inliers)
	}
	x0 := NewHomographyFromMatrix(h).Params()
	start := objective(x0)
	res := neldermead.Minimize(objective, x0, settings)
	if logger != nil {
		logger.Debugw("homography refined",
			"inliers", len(inliers), "initial_error", start, "final_error", res.Value, "iterations", res.Iterations)
	}
	refined, err := NewHomography(res.X)
	if err != nil {
		return h, inliers
	}
	return refined.Dense(), inliers
}

// indexInto returns a lo.Map iteratee selecting pts[i].
func indexInto(pts []r2.Point) func(i, _ int) r2.Point {
	return func(i, _ int) r2.Point {
		return pts[i]
	}
}
