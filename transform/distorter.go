package transform

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// DistortionType is the name of the distortion model.
type DistortionType string

// DivisionDistortionType is the one-parameter radial division model.
const DivisionDistortionType = DistortionType("division")

// Distorter defines a Transform that takes an undistorted point and distorts it according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
	Undistort(x, y float64) (float64, float64)
}

// ErrInvalidDistortion is used when the distortion parameters are invalid.
var ErrInvalidDistortion = errors.New("invalid distortion_parameters")

// InvalidDistortionError wraps ErrInvalidDistortion with context.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(ErrInvalidDistortion, msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case DivisionDistortionType:
		return NewDivisionDistortion(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

// UndistortPoints maps observed pixels back to ideal pinhole pixels. A nil distorter returns a copy.
func UndistortPoints(d Distorter, pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		if d == nil {
			out[i] = p
			continue
		}
		out[i].X, out[i].Y = d.Undistort(p.X, p.Y)
	}
	return out
}
