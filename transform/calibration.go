package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multiview/linalg"
	"go.viam.com/multiview/logging"
	"go.viam.com/multiview/neldermead"
)

// PlanarTargetStarts is the number of initial rotations about the optical axis tried by
// AlignPlanarTarget.
const PlanarTargetStarts = 36

// planarTargetRestarts bounds the restarts from the best vertex after the multi-start pass.
const planarTargetRestarts = 3

// RefineRadialDistortion refines the lambda of a division model, keeping its center, so that the
// 3D points projected through P and distorted land on the observed pixels. It returns the refined
// model and the RMS reprojection error in pixels.
func RefineRadialDistortion(
	p mat.Matrix,
	pts3d []r3.Vector,
	pts2d []r2.Point,
	initial DivisionDistortion,
	settings neldermead.Settings[float64],
	logger logging.Logger,
) (*DivisionDistortion, float64, error) {
	if len(pts3d) != len(pts2d) || len(pts3d) == 0 {
		return nil, 0, errors.Errorf("got %d 3D points and %d image points", len(pts3d), len(pts2d))
	}
	// optimize lambda*rMax^2 so that the parameter is dimensionless
	rMax := 0.0
	for _, pt := range pts2d {
		rMax = math.Max(rMax, pt.Sub(initial.Center).Norm())
	}
	if rMax == 0 {
		return nil, 0, errors.New("all image points are at the distortion center")
	}
	scale := rMax * rMax

	undistorted := make([]r2.Point, len(pts3d))
	for i, x := range pts3d {
		undistorted[i] = Project(p, x, nil)
	}
	candidate := DivisionDistortion{Center: initial.Center}
	objective := func(x []float64) float64 {
		candidate.Lambda = x[0] / scale
		sum := 0.0
		for i, u := range undistorted {
			dx, dy := candidate.Transform(u.X, u.Y)
			d := r2.Point{X: dx, Y: dy}.Sub(pts2d[i])
			sum += d.Dot(d)
		}
		return sum
	}
	res := neldermead.Minimize(objective, []float64{initial.Lambda * scale}, settings)
	rms := math.Sqrt(res.Value / float64(len(pts3d)))
	if logger != nil {
		logger.Debugw("radial distortion refined", "lambda", res.X[0]/scale, "rms", rms, "iterations", res.Iterations)
	}
	return &DivisionDistortion{Center: initial.Center, Lambda: res.X[0] / scale}, rms, nil
}

// PlanarAlignment is the pose of a planar target (Z = 0 in its own frame) in a camera frame.
type PlanarAlignment struct {
	Rotation    *mat.Dense
	Translation r3.Vector
	// RMS is the reprojection error in pixels.
	RMS float64
}

// Camera returns K [R | t].
func (pa *PlanarAlignment) Camera(k mat.Matrix) *mat.Dense {
	return NewCameraMatrix(k, pa.Rotation, pa.Translation)
}

// AlignPlanarTarget fits the pose of a planar target from the target coordinates of its points
// and their pixels. Nelder-Mead runs over a rotation vector and a translation from 36 initial
// rotations about the optical axis, each with the target centered at the depth its apparent size
// suggests; the lowest reprojection error wins and is then restarted until it stops improving.
func AlignPlanarTarget(
	k mat.Matrix,
	board, image []r2.Point,
	settings neldermead.Settings[float64],
	logger logging.Logger,
) (*PlanarAlignment, error) {
	if len(board) != len(image) {
		return nil, errors.Errorf("got %d target points and %d image points", len(board), len(image))
	}
	if len(board) < homographySampleSize {
		return nil, errors.Errorf("need at least %d points, got %d", homographySampleSize, len(board))
	}
	kInv, err := linalg.Inverse3(k)
	if err != nil {
		return nil, err
	}
	boardCenter, boardSpread := linalg.Spread(board)
	imageCenter, imageSpread := linalg.Spread(image)
	if boardSpread == 0 || imageSpread == 0 {
		return nil, errors.New("target or image points are all coincident")
	}
	depth := k.At(0, 0) * boardSpread / imageSpread
	ray := linalg.MulVec3(kInv, linalg.Homogeneous(imageCenter))
	ray = ray.Mul(1 / ray.Z)

	objective := func(x []float64) float64 {
		r := linalg.RotationFromVector(x[:3])
		t := r3.Vector{X: x[3], Y: x[4], Z: x[5]}
		sum := 0.0
		for i, b := range board {
			pc := linalg.MulVec3(r, r3.Vector{X: b.X, Y: b.Y}).Add(t)
			if pc.Z <= 0 {
				return math.Inf(1)
			}
			u := linalg.MulVec3(k, pc)
			d := r2.Point{X: u.X / u.Z, Y: u.Y / u.Z}.Sub(image[i])
			sum += d.Dot(d)
		}
		return sum
	}

	starts := make([][]float64, PlanarTargetStarts)
	for i := range starts {
		theta := 2 * math.Pi * float64(i) / PlanarTargetStarts
		r := linalg.RotationFromAxisAngle(0, 0, 1, theta)
		t := ray.Mul(depth).Sub(linalg.MulVec3(r, r3.Vector{X: boardCenter.X, Y: boardCenter.Y}))
		starts[i] = []float64{0, 0, theta, t.X, t.Y, t.Z}
	}
	best := neldermead.MinimizeMultiStart(objective, starts, settings)
	for i := 0; i < planarTargetRestarts; i++ {
		next := neldermead.Minimize(objective, best.X, settings)
		if next.Value >= best.Value {
			break
		}
		best = next
	}
	if math.IsInf(best.Value, 1) {
		return nil, errors.New("no pose puts the target in front of the camera")
	}
	rms := math.Sqrt(best.Value / float64(len(board)))
	if logger != nil {
		logger.Debugw("planar target aligned", "rms", rms, "evaluations", best.Evaluations)
	}
	return &PlanarAlignment{
		Rotation:    linalg.RotationFromVector(best.X[:3]),
		Translation: r3.Vector{X: best.X[3], Y: best.X[4], Z: best.X[5]},
		RMS:         rms,
	}, nil
}
