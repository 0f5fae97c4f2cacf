package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/multiview/linalg"
	"go.viam.com/multiview/logging"
)

// ErrNoValidPose is returned when no decomposition of the essential matrix puts points in front
// of both cameras.
var ErrNoValidPose = errors.New("no camera configuration puts points in front of both cameras")

// CamPose stores the 3x4 pose matrix as well as the 3D Rotation and Translation.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation r3.Vector
	// InFront is the number of correspondences in front of both cameras.
	InFront int
}

// NewCamPoseFromMat creates a pointer to a Camera pose from a 3x4 pose dense matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	rot := mat.DenseCopyOf(pose.Slice(0, 3, 0, 3))
	return &CamPose{
		PoseMat:     pose,
		Rotation:    rot,
		Translation: linalg.Column(pose, 3),
	}
}

// NewCamPose creates a pose from a rotation and a translation.
func NewCamPose(r mat.Matrix, t r3.Vector) *CamPose {
	var pose mat.Dense
	pose.Augment(r, mat.NewDense(3, 1, []float64{t.X, t.Y, t.Z}))
	return NewCamPoseFromMat(&pose)
}

// Quaternion returns the rotation as a unit quaternion.
func (cp *CamPose) Quaternion() quat.Number {
	return linalg.RotationToQuaternion(cp.Rotation)
}

// RotationVector returns the rotation as an axis scaled by the angle in radians.
func (cp *CamPose) RotationVector() r3.Vector {
	v := linalg.RotationToVector(cp.Rotation)
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// GetPossibleCameraPoses computes all 4 possible [R | t] poses from the essential matrix, in the
// order (R1, t), (R1, -t), (R2, t), (R2, -t).
func GetPossibleCameraPoses(essMat mat.Matrix) ([]*CamPose, error) {
	r1, r2, t, err := DecomposeEssentialMatrix(essMat)
	if err != nil {
		return nil, err
	}
	return []*CamPose{
		NewCamPose(r1, t),
		NewCamPose(r1, t.Mul(-1)),
		NewCamPose(r2, t),
		NewCamPose(r2, t.Mul(-1)),
	}, nil
}

// EstimateNewPose estimates the pose of the camera in the second set of points wrt the pose of the camera in the first
// set of points. pts0 and pts1 are pixel matches in 2 images (successive in time or from 2 different cameras of the
// same scene at the same time) taken with intrinsics k. The fundamental matrix is estimated with RANSAC, turned into
// an essential matrix and decomposed with the cheirality check over the inliers. It also returns the inliers.
func EstimateNewPose(
	pts0, pts1 []r2.Point, k mat.Matrix, params RansacParams, logger logging.Logger,
) (*CamPose, []int, error) {
	if len(pts0) != len(pts1) {
		return nil, nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	if len(pts0) < fundamentalSampleSize {
		return nil, nil, errors.Errorf("need at least %d correspondences, got %d", fundamentalSampleSize, len(pts0))
	}
	f, inliers := EstimateFundamentalRansac(pts0, pts1, params, logger)
	if linalg.IsZero(f) {
		return nil, nil, errors.New("fundamental matrix estimation failed")
	}
	essMat, err := EssentialFromFundamental(k, k, f)
	if err != nil {
		return nil, nil, err
	}
	kInv, err := linalg.Inverse3(k)
	if err != nil {
		return nil, nil, err
	}
	normalize := func(pts []r2.Point) func(i, _ int) r2.Point {
		return func(i, _ int) r2.Point {
			return linalg.Transfer(kInv, pts[i])
		}
	}
	n0 := lo.Map(inliers, normalize(pts0))
	n1 := lo.Map(inliers, normalize(pts1))

	r, t, ok := DecomposeEssentialMatrixWithConfiguration(essMat, n0, n1)
	if !ok {
		return nil, inliers, ErrNoValidPose
	}
	pose := NewCamPose(r, t)
	pose.InFront = CountPointsInFront(r, t, n0, n1)
	if logger != nil {
		logger.Debugw("pose estimated", "inliers", len(inliers), "in_front", pose.InFront)
	}
	return pose, inliers, nil
}
