package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// DivisionDistortion is the one-parameter radial division model in pixel coordinates:
//
//	p' = (p - c) / (1 + lambda*rho^2) + c,  rho = |p - c|
//
// where c is the distortion center, p the undistorted and p' the distorted point.
type DivisionDistortion struct {
	Center r2.Point `json:"center"`
	Lambda float64  `json:"lambda"`
}

// NewDivisionDistortion takes (cx, cy, lambda). An empty list gives the identity model.
func NewDivisionDistortion(inp []float64) (*DivisionDistortion, error) {
	switch len(inp) {
	case 0:
		return &DivisionDistortion{}, nil
	case 3:
		return &DivisionDistortion{Center: r2.Point{X: inp[0], Y: inp[1]}, Lambda: inp[2]}, nil
	default:
		return nil, errors.Errorf("list of parameters must have length 0 or 3, got %d", len(inp))
	}
}

// CheckValid checks if the fields for DivisionDistortion have valid inputs.
func (dd *DivisionDistortion) CheckValid() error {
	if dd == nil {
		return InvalidDistortionError("DivisionDistortion shaped distortion_parameters not provided")
	}
	if math.IsNaN(dd.Lambda) || math.IsInf(dd.Lambda, 0) {
		return InvalidDistortionError("lambda must be finite")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (dd *DivisionDistortion) ModelType() DistortionType {
	return DivisionDistortionType
}

// Parameters returns (cx, cy, lambda).
func (dd *DivisionDistortion) Parameters() []float64 {
	if dd == nil {
		return []float64{}
	}
	return []float64{dd.Center.X, dd.Center.Y, dd.Lambda}
}

// Transform distorts an undistorted point.
func (dd *DivisionDistortion) Transform(x, y float64) (float64, float64) {
	if dd == nil {
		return x, y
	}
	dx, dy := x-dd.Center.X, y-dd.Center.Y
	s := 1 + dd.Lambda*(dx*dx+dy*dy)
	return dx/s + dd.Center.X, dy/s + dd.Center.Y
}

// Undistort inverts Transform with Newton-Raphson iterations on the radius. Distorted radii the
// model cannot reach are returned unchanged.
func (dd *DivisionDistortion) Undistort(xd, yd float64) (float64, float64) {
	if dd == nil || dd.Lambda == 0 {
		return xd, yd
	}
	dx, dy := xd-dd.Center.X, yd-dd.Center.Y
	rd := math.Hypot(dx, dy)
	if rd == 0 {
		return xd, yd
	}

	const maxIterations = 20
	const tolerance = 1e-12

	// solve r - rd*(1 + lambda*r^2) = 0, starting from the distorted radius
	r := rd
	for i := 0; i < maxIterations; i++ {
		g := r - rd*(1+dd.Lambda*r*r)
		if math.Abs(g) < tolerance*rd {
			break
		}
		dg := 1 - 2*rd*dd.Lambda*r
		if dg == 0 {
			break
		}
		r -= g / dg
	}
	if math.IsNaN(r) || r < 0 {
		return xd, yd
	}
	k := r / rd
	return dd.Center.X + dx*k, dd.Center.Y + dy*k
}
