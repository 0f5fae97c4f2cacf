// Package neldermead implements the Nelder-Mead downhill simplex method for derivative-free
// minimization. The estimators in transform use it to polish linear and RANSAC solutions.
//
// The method gives no global optimum guarantee. Callers seed it from a robust estimate or use
// MinimizeMultiStart over several starting points.
package neldermead

import (
	"github.com/pkg/errors"

	"go.viam.com/multiview/utils"
)

// Coefficients of the simplex moves.
const (
	reflection  = 1.0
	expansion   = 2.0
	contraction = -0.5
	shrinkage   = 0.5
)

// Default settings.
const (
	DefaultDelta         = 0.05
	DefaultDeltaZero     = 0.00025
	DefaultTolerance     = 1e-8
	DefaultMaxIterations = 1000
)

// Objective is a function to minimize. It must not retain x.
type Objective[T utils.Float] func(x []T) T

// TerminationCheck selects the convergence test.
type TerminationCheck int

const (
	// DefaultCheck stops when both the spread of vertex values and the largest per-coordinate
	// spread of the vertices fall below the tolerance.
	DefaultCheck TerminationCheck = iota
	// MeanCheck stops when the root-mean-square deviation of the vertex values from the value at
	// the simplex centroid falls below the tolerance.
	MeanCheck
)

// String returns the config name of the check.
func (c TerminationCheck) String() string {
	switch c {
	case DefaultCheck:
		return "default"
	case MeanCheck:
		return "mean"
	}
	return "unknown"
}

// TerminationCheckFromString parses "default" or "mean".
func TerminationCheckFromString(s string) (TerminationCheck, error) {
	switch s {
	case "", "default":
		return DefaultCheck, nil
	case "mean":
		return MeanCheck, nil
	}
	return DefaultCheck, errors.Errorf("unknown termination check %q", s)
}

// Settings controls a minimization. Zero fields take the package defaults.
type Settings[T utils.Float] struct {
	Tolerance     T
	MaxIterations int
	// Delta is the relative perturbation of non-zero start coordinates.
	Delta T
	// DeltaZero replaces start coordinates that are exactly zero.
	DeltaZero T
	Check     TerminationCheck
}

// DefaultSettings returns the default settings.
func DefaultSettings[T utils.Float]() Settings[T] {
	return Settings[T]{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		Delta:         DefaultDelta,
		DeltaZero:     DefaultDeltaZero,
		Check:         DefaultCheck,
	}
}

func (s Settings[T]) withDefaults() Settings[T] {
	if s.Tolerance <= 0 {
		s.Tolerance = DefaultTolerance
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.Delta == 0 {
		s.Delta = DefaultDelta
	}
	if s.DeltaZero == 0 {
		s.DeltaZero = DefaultDeltaZero
	}
	return s
}

// Result is the outcome of a minimization. Reaching MaxIterations is not an error; compare
// Value with the objective at the start point to judge progress.
type Result[T utils.Float] struct {
	X           []T
	Value       T
	Iterations  int
	Evaluations int
}

// Minimize minimizes f starting from x0.
func Minimize[T utils.Float](f Objective[T], x0 []T, settings Settings[T]) Result[T] {
	settings = settings.withDefaults()
	evaluations := 0
	counted := func(x []T) T {
		evaluations++
		return f(x)
	}

	n := len(x0)
	if n == 0 {
		return Result[T]{X: []T{}, Value: counted(x0), Evaluations: evaluations}
	}

	sp := newSimplex(counted, x0, settings.Delta, settings.DeltaZero)
	mean := make([]T, n)
	xr := make([]T, n)
	xe := make([]T, n)
	xc := make([]T, n)

	iter := 0
	for ; iter < settings.MaxIterations; iter++ {
		sp.sort()
		if converged(sp, counted, settings, mean) {
			break
		}

		sp.centroid(mean, n)
		worst := sp.vertex(n)
		fBest, fSecondWorst, fWorst := sp.value(0), sp.value(n-1), sp.value(n)

		step(xr, mean, worst, reflection)
		fr := counted(xr)

		switch {
		case fBest <= fr && fr < fSecondWorst:
			sp.replace(n, xr, fr)
		case fr < fBest:
			step(xe, mean, worst, expansion)
			if fe := counted(xe); fe < fr {
				sp.replace(n, xe, fe)
			} else {
				sp.replace(n, xr, fr)
			}
		default:
			step(xc, mean, worst, contraction)
			if fc := counted(xc); fc < fWorst {
				sp.replace(n, xc, fc)
			} else {
				sp.shrink(counted, shrinkage)
			}
		}
	}
	sp.sort()

	x := make([]T, n)
	copy(x, sp.vertex(0))
	return Result[T]{X: x, Value: sp.value(0), Iterations: iter, Evaluations: evaluations}
}

// MinimizeMultiStart runs Minimize from every start point and returns the lowest result. The
// earliest start wins ties.
func MinimizeMultiStart[T utils.Float](f Objective[T], starts [][]T, settings Settings[T]) Result[T] {
	var best Result[T]
	for i, x0 := range starts {
		res := Minimize(f, x0, settings)
		if i == 0 || res.Value < best.Value {
			best = res
		}
	}
	return best
}

// step writes mean + coeff*(mean - worst) into dst.
func step[T utils.Float](dst, mean, worst []T, coeff T) {
	for j := range dst {
		dst[j] = mean[j] + coeff*(mean[j]-worst[j])
	}
}

func converged[T utils.Float](sp *simplex[T], f Objective[T], settings Settings[T], scratch []T) bool {
	switch settings.Check {
	case MeanCheck:
		sp.centroid(scratch, sp.n+1)
		fc := f(scratch)
		var sum T
		for v := 0; v <= sp.n; v++ {
			d := sp.values[v] - fc
			sum += d * d
		}
		return utils.Sqrt(sum/T(sp.n+1)) < settings.Tolerance
	default:
		return sp.valueSpread() < settings.Tolerance && sp.coordinateSpread() < settings.Tolerance
	}
}
