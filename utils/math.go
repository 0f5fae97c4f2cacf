// Package utils contains small numeric helpers and a grouped parallel worker.
package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Square returns n*n. math.Pow(x, 2) is slow, this is faster.
func Square(n float64) float64 {
	return n * n
}

// Float64AlmostEqual compares two float64s and returns if the difference between them is less than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// Float is the set of floating point types the generic numeric routines accept.
type Float interface {
	~float32 | ~float64
}

// Abs returns the absolute value of x for any Float.
func Abs[T Float](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// Sqrt returns the square root of x for any Float.
func Sqrt[T Float](x T) T {
	return T(math.Sqrt(float64(x)))
}
