// Package ransac implements a random sample consensus loop over models fitted from minimal
// index samples. All randomness comes from an explicitly seeded Mersenne Twister so that a run
// is reproducible from its inputs and seed.
package ransac

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mathext/prng"

	"go.viam.com/multiview/logging"
)

// DefaultMaxIterations is used when Params.MaxIterations is not positive.
const DefaultMaxIterations = 1000

// ErrNotEnoughData is returned when there are fewer data points than a minimal sample needs.
var ErrNotEnoughData = errors.New("not enough data for a minimal sample")

// NewNotEnoughDataError returns ErrNotEnoughData with the counts involved.
func NewNotEnoughDataError(have, need int) error {
	return errors.Wrapf(ErrNotEnoughData, "have %d, need %d", have, need)
}

// Params are the consensus loop parameters.
type Params struct {
	MaxIterations int
	// Threshold is interpreted by the model's inlier test.
	Threshold float64
	Seed      uint64
}

// Model fits candidates of type M from minimal samples and scores data points against them.
type Model[M any] interface {
	// SampleSize is the number of indices in a minimal sample.
	SampleSize() int
	// Fit returns a candidate from the given indices, or false if the sample is degenerate.
	Fit(sample []int) (M, bool)
	// IsInlier reports whether data point i agrees with the candidate.
	IsInlier(candidate M, i int) bool
}

// Result is the best candidate of a run.
type Result[M any] struct {
	Model M
	// Inliers are ascending data indices.
	Inliers []int
	// Found is false when no candidate had a single inlier.
	Found bool
	// Iteration is the 1-based iteration that produced Model.
	Iteration int
}

// Sampler draws samples of distinct indices from [0, n).
type Sampler struct {
	rng  *rand.Rand
	perm []int
}

// NewSampler returns a sampler over [0, n) seeded with seed.
func NewSampler(n int, seed uint64) *Sampler {
	src := prng.NewMT19937()
	src.Seed(seed)
	return &Sampler{rng: rand.New(src), perm: lo.Range(n)}
}

// Sample returns k distinct indices. The permutation is carried over between calls, so the
// sequence of samples depends only on the seed.
func (s *Sampler) Sample(k int) []int {
	n := len(s.perm)
	if k > n {
		k = n
	}
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		s.perm[i], s.perm[j] = s.perm[j], s.perm[i]
	}
	out := make([]int, k)
	copy(out, s.perm[:k])
	return out
}

// Run draws params.MaxIterations minimal samples over n data points and keeps the candidate
// with the strictly largest inlier count. The first candidate found wins ties.
func Run[M any](n int, model Model[M], params Params, logger logging.Logger) (Result[M], error) {
	k := model.SampleSize()
	if n < k {
		return Result[M]{}, NewNotEnoughDataError(n, k)
	}
	maxIter := params.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	sampler := NewSampler(n, params.Seed)
	indices := lo.Range(n)
	var best Result[M]
	degenerate := 0
	for iter := 0; iter < maxIter; iter++ {
		candidate, ok := model.Fit(sampler.Sample(k))
		if !ok {
			degenerate++
			continue
		}
		inliers := lo.Filter(indices, func(i, _ int) bool {
			return model.IsInlier(candidate, i)
		})
		if len(inliers) > len(best.Inliers) {
			best = Result[M]{Model: candidate, Inliers: inliers, Found: true, Iteration: iter + 1}
			if logger != nil {
				logger.Debugw("ransac improved", "iteration", iter, "inliers", len(inliers), "of", n)
			}
		}
	}
	if logger != nil {
		logger.Debugw("ransac done",
			"iterations", maxIter, "degenerate_samples", degenerate, "inliers", len(best.Inliers), "seed", params.Seed)
	}
	return best, nil
}
