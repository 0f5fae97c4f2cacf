package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ResidualStats summarizes reprojection residuals, in pixels.
type ResidualStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	RMS    float64 `json:"rms"`
	StdDev float64 `json:"std_dev"`
}

// ReprojectionResiduals returns the distance between each projected 3D point and its observed pixel.
func ReprojectionResiduals(p mat.Matrix, pts3d []r3.Vector, pts2d []r2.Point, distortion Distorter) ([]float64, error) {
	if len(pts3d) != len(pts2d) {
		return nil, errors.Errorf("got %d 3D points and %d image points", len(pts3d), len(pts2d))
	}
	out := make([]float64, len(pts3d))
	for i, x := range pts3d {
		out[i] = Project(p, x, distortion).Sub(pts2d[i]).Norm()
	}
	return out, nil
}

// ReprojectionStats computes summary statistics of residuals.
func ReprojectionStats(residuals []float64) (ResidualStats, error) {
	data := stats.Float64Data(residuals)
	if data.Len() == 0 {
		return ResidualStats{}, errors.New("no residuals")
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return ResidualStats{}, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return ResidualStats{}, err
	}
	maxVal, err := stats.Max(data)
	if err != nil {
		return ResidualStats{}, err
	}
	sd, err := stats.StandardDeviation(data)
	if err != nil {
		return ResidualStats{}, err
	}
	return ResidualStats{
		Count:  data.Len(),
		Mean:   mean,
		Median: median,
		Max:    maxVal,
		RMS:    math.Sqrt(floats.Dot(residuals, residuals) / float64(data.Len())),
		StdDev: sd,
	}, nil
}
