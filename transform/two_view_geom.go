package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/linalg"
	"go.viam.com/multiview/logging"
	"go.viam.com/multiview/neldermead"
	"go.viam.com/multiview/ransac"
)

// DefaultFundamentalThreshold is the squared epipolar distance, in pixels squared, under which a
// correspondence is an inlier of a fundamental matrix.
const DefaultFundamentalThreshold = 0.01

const fundamentalSampleSize = 8

// EstimateFundamental estimates the fundamental matrix F such that p1^T F p0 = 0 with the
// normalized 8-point algorithm. F has rank 2 and is divided by its largest singular value. The
// zero matrix is returned if the point sets differ in length or hold fewer than 8 points.
func EstimateFundamental(pts0, pts1 []r2.Point) *mat.Dense {
	if len(pts0) != len(pts1) || len(pts0) < fundamentalSampleSize {
		return linalg.Zero3()
	}
	p0, t0 := linalg.NormalizePoints(pts0)
	p1, t1 := linalg.NormalizePoints(pts1)

	a := mat.NewDense(len(p0), 9, nil)
	for i := range p0 {
		v0, v1 := p0[i], p1[i]
		a.SetRow(i, []float64{
			v1.X * v0.X, v1.X * v0.Y, v1.X,
			v1.Y * v0.X, v1.Y * v0.Y, v1.Y,
			v0.X, v0.Y, 1,
		})
	}
	f, err := linalg.NullVector(a)
	if err != nil {
		return linalg.Zero3()
	}
	fn, err := linalg.EnforceRank2(mat.NewDense(3, 3, f))
	if err != nil {
		return linalg.Zero3()
	}

	// rescale F: T1^T @ F @ T0
	var out mat.Dense
	out.Mul(t1.T(), fn)
	out.Mul(&out, t0)
	return linalg.NormalizeByLargestSingularValue(&out)
}

// EpipolarDistance is the squared distance of p1 to the epipolar line F p0.
func EpipolarDistance(f mat.Matrix, p0, p1 r2.Point) float64 {
	l := linalg.MulVec3(f, linalg.Homogeneous(p0))
	e := linalg.Homogeneous(p1).Dot(l)
	den := l.X*l.X + l.Y*l.Y
	if den == 0 {
		if e == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return e * e / den
}

// SymmetricEpipolarDistance adds the squared distance of p0 to the epipolar line F^T p1 to
// EpipolarDistance.
func SymmetricEpipolarDistance(f mat.Matrix, p0, p1 r2.Point) float64 {
	return EpipolarDistance(f, p0, p1) + EpipolarDistance(f.T(), p1, p0)
}

// fundamentalModel fits fundamental matrices from 8 correspondences.
type fundamentalModel struct {
	pts0, pts1 []r2.Point
	threshold  float64
}

func (m *fundamentalModel) SampleSize() int { return fundamentalSampleSize }

func (m *fundamentalModel) Fit(sample []int) (*mat.Dense, bool) {
	f := EstimateFundamental(lo.Map(sample, indexInto(m.pts0)), lo.Map(sample, indexInto(m.pts1)))
	return f, !linalg.IsZero(f)
}

func (m *fundamentalModel) IsInlier(f *mat.Dense, i int) bool {
	return EpipolarDistance(f, m.pts0[i], m.pts1[i]) < m.threshold
}

// EstimateFundamentalRansac robustly estimates a fundamental matrix from 8-point samples drawn
// with a seeded Mersenne Twister. It returns F and the ascending indices of its inliers. The
// result starts as the direct estimate over all points; when at least 8 inliers are found F is
// refitted on all of them.
func EstimateFundamentalRansac(pts0, pts1 []r2.Point, params RansacParams, logger logging.Logger) (*mat.Dense, []int) {
	if len(pts0) != len(pts1) || len(pts0) < fundamentalSampleSize {
		return linalg.Zero3(), nil
	}
	rp := params.toRansac(DefaultFundamentalThreshold)
	model := &fundamentalModel{pts0: pts0, pts1: pts1, threshold: rp.Threshold}

	f := EstimateFundamental(pts0, pts1)
	if len(pts0) == fundamentalSampleSize {
		if linalg.IsZero(f) {
			return f, nil
		}
		return f, lo.Range(len(pts0))
	}

	res, err := ransac.Run[*mat.Dense](len(pts0), model, rp, logger)
	if err != nil || !res.Found {
		if logger != nil {
			logger.Debugw("no fundamental consensus, using the direct estimate", "error", err)
		}
		return f, lo.Filter(lo.Range(len(pts0)), func(i, _ int) bool { return model.IsInlier(f, i) })
	}
	f = res.Model
	if len(res.Inliers) >= fundamentalSampleSize {
		if refit := EstimateFundamental(
			lo.Map(res.Inliers, indexInto(pts0)), lo.Map(res.Inliers, indexInto(pts1)),
		); !linalg.IsZero(refit) {
			f = refit
		}
	}
	return f, res.Inliers
}

// EstimateFundamentalWithNonLinearRefinement runs EstimateFundamentalRansac and then polishes the 9
// entries of F with Nelder-Mead, minimizing the symmetric epipolar distance over the inliers. The
// result is projected back to rank 2 and divided by its largest singular value.
func EstimateFundamentalWithNonLinearRefinement(
	pts0, pts1 []r2.Point,
	params RansacParams,
	settings neldermead.Settings[float64],
	logger logging.Logger,
) (*mat.Dense, []int) {
	f, inliers := EstimateFundamentalRansac(pts0, pts1, params, logger)
	if linalg.IsZero(f) || len(inliers) < fundamentalSampleSize {
		return f, inliers
	}

	candidate := mat.NewDense(3, 3, nil)
	objective := func(x []float64) float64 {
		copy(candidate.RawMatrix().Data, x)
		sum := 0.0
		for _, i := range inliers {
			sum += SymmetricEpipolarDistance(candidate, pts0[i], pts1[i])
		}
		return sum
	}
	x0 := make([]float64, 9)
	copy(x0, mat.DenseCopyOf(f).RawMatrix().Data)
	start := objective(x0)
	res := neldermead.Minimize(objective, x0, settings)
	if logger != nil {
		logger.Debugw("fundamental matrix refined",
			"inliers", len(inliers), "initial_error", start, "final_error", res.Value, "iterations", res.Iterations)
	}
	refined, err := linalg.EnforceRank2(mat.NewDense(3, 3, res.X))
	if err != nil || linalg.IsZero(refined) {
		return f, inliers
	}
	// the rank projection can undo the gain
	if objective(refined.RawMatrix().Data) > start {
		return f, inliers
	}
	return refined, inliers
}

// EssentialFromFundamental returns the essential matrix E = K1^T F K0 with its singular values
// forced to (1, 1, 0).
func EssentialFromFundamental(k0, k1, f mat.Matrix) (*mat.Dense, error) {
	var essMat mat.Dense
	essMat.Mul(k1.T(), f)
	essMat.Mul(&essMat, k0)
	svd, err := linalg.PerformSVD(&essMat)
	if err != nil {
		return nil, errors.Wrap(err, "cannot factorize essential matrix")
	}
	essMat.Mul(svd.U, mat.NewDiagDense(3, []float64{1, 1, 0}))
	essMat.Mul(&essMat, svd.VT)
	return &essMat, nil
}

// DecomposeEssentialMatrix decomposes the essential matrix into its 2 possible rotations and the
// translation direction, whose sign is ambiguous. Both rotations are re-orthonormalized.
func DecomposeEssentialMatrix(essMat mat.Matrix) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	svd, err := linalg.PerformSVD(essMat)
	if err != nil {
		return nil, nil, r3.Vector{}, errors.Wrap(err, "cannot factorize essential matrix")
	}
	// proper rotations need det(U) = det(V) = 1
	if mat.Det(svd.U) < 0 {
		svd.U.Scale(-1, svd.U)
	}
	if mat.Det(svd.VT) < 0 {
		svd.VT.Scale(-1, svd.VT)
	}
	w := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	var r1, r2 mat.Dense
	// UWV^T
	r1.Mul(svd.U, w)
	r1.Mul(&r1, svd.VT)
	// UW^TV^T
	r2.Mul(svd.U, w.T())
	r2.Mul(&r2, svd.VT)
	return linalg.Orthonormalize(&r1), linalg.Orthonormalize(&r2), linalg.Column(svd.U, 2), nil
}

// DecomposeEssentialMatrixWithConfiguration picks among (R1, t), (R1, -t), (R2, t), (R2, -t) the
// configuration that puts the most correspondences in front of both cameras. Points are in
// normalized camera coordinates and the second camera maps X to R X + t. Ties keep the earliest
// configuration in that order. ok is false, with zero R and t, if the point sets differ in length
// or no configuration puts any point in front of both cameras.
func DecomposeEssentialMatrixWithConfiguration(
	essMat mat.Matrix, pts0, pts1 []r2.Point,
) (*mat.Dense, r3.Vector, bool) {
	if len(pts0) != len(pts1) || len(pts0) == 0 {
		return linalg.Zero3(), r3.Vector{}, false
	}
	r1, r2, t, err := DecomposeEssentialMatrix(essMat)
	if err != nil {
		return linalg.Zero3(), r3.Vector{}, false
	}
	candidates := []struct {
		r *mat.Dense
		t r3.Vector
	}{
		{r1, t}, {r1, t.Mul(-1)}, {r2, t}, {r2, t.Mul(-1)},
	}
	best, bestCount := -1, 0
	for i, c := range candidates {
		if count := CountPointsInFront(c.r, c.t, pts0, pts1); count > bestCount {
			best, bestCount = i, count
		}
	}
	if best < 0 {
		return linalg.Zero3(), r3.Vector{}, false
	}
	return mat.DenseCopyOf(candidates[best].r), candidates[best].t, true
}

// CountPointsInFront triangulates every correspondence with TriangulateLonguetHiggins and counts
// those with positive depth in both cameras.
func CountPointsInFront(r mat.Matrix, t r3.Vector, pts0, pts1 []r2.Point) int {
	count := 0
	for i := range pts0 {
		x := TriangulateLonguetHiggins(pts0[i], pts1[i], r, t)
		if x[3] == 0 {
			continue
		}
		x0 := r3.Vector{X: x[0], Y: x[1], Z: x[2]}
		x1 := linalg.MulVec3(r, x0).Add(t)
		if x0.Z > 0 && x1.Z > 0 {
			count++
		}
	}
	return count
}
