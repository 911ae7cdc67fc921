package pipeline

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"github.com/SimonPBoeckner/Vision/pnp"
)

// tagCornerOffsets places the four physical corners of a tag around its
// field pose: the tag plane is the local yz plane, so the offsets are
// (0, ±s/2, ∓s/2) in the detector's corner order.
func tagCornerOffsets(size float64) [4]r3.Vector {
	h := size / 2
	return [4]r3.Vector{
		{Y: h, Z: -h},
		{Y: -h, Z: -h},
		{Y: -h, Z: h},
		{Y: h, Z: h},
	}
}

// CameraPoseEstimator solves the field-relative camera pose from all
// usable tag observations in a frame.
type CameraPoseEstimator struct {
	logger logging.Logger
}

// NewCameraPoseEstimator returns an estimator that logs numerical solve
// failures at debug level; failures are otherwise silent by design, since
// the next frame supersedes this one.
func NewCameraPoseEstimator(logger logging.Logger) *CameraPoseEstimator {
	return &CameraPoseEstimator{logger: logger}
}

// Solve pairs every observed tag that exists in the field layout with the
// field-frame positions of its physical corners, then solves for the
// camera pose. One usable tag leaves the planar two-branch ambiguity in
// place; two or more are pooled into a single unambiguous solve. Returns
// nil when no tag is usable or the solve degenerates: an absent
// observation, never a stale or default pose.
func (e *CameraPoseEstimator) Solve(observations []FrameObservation, snapshot ConfigSnapshot) *CameraPoseObservation {
	if len(snapshot.Layout) == 0 || len(observations) == 0 {
		return nil
	}
	cam, err := snapshot.Camera()
	if err != nil {
		e.logger.Debugw("camera pose solve skipped", "reason", err)
		return nil
	}

	offsets := tagCornerOffsets(snapshot.TagSizeM)
	var tagIDs []int
	var tagPoses []spatialmath.Pose
	var objectPoints []r3.Vector
	var imagePoints []pnp.Point2
	var single *FrameObservation
	for i, obs := range observations {
		tagPose, ok := snapshot.Layout[obs.TagID]
		if !ok {
			continue
		}
		for c := 0; c < 4; c++ {
			corner := spatialmath.Compose(tagPose, spatialmath.NewPoseFromPoint(offsets[c])).Point()
			// The pooled solver works in the camera convention, so the
			// field-frame corners are permuted before pooling.
			objectPoints = append(objectPoints, FieldToCamera(corner))
			imagePoints = append(imagePoints, obs.Corners[c])
		}
		tagIDs = append(tagIDs, obs.TagID)
		tagPoses = append(tagPoses, tagPose)
		single = &observations[i]
	}

	switch len(tagIDs) {
	case 0:
		return nil
	case 1:
		return e.solveSingle(cam, *single, tagPoses[0], snapshot.TagSizeM)
	default:
		return e.solvePooled(cam, tagIDs, objectPoints, imagePoints)
	}
}

// solveSingle runs the planar solver against the canonical tag template
// and composes each camera-to-tag branch with the tag's known field pose,
// keeping both branches and both errors.
func (e *CameraPoseEstimator) solveSingle(cam *pnp.Camera, obs FrameObservation, tagPose spatialmath.Pose, size float64) *CameraPoseObservation {
	sols, err := pnp.SolveSquare(cam, obs.Corners, size)
	if err != nil {
		e.logger.Debugw("single tag camera pose solve failed", "tag", obs.TagID, "error", err)
		return nil
	}

	candidates := make([]PoseCandidate, 2)
	for i, sol := range sols {
		cameraToTag := PoseFromCameraVectors(sol.Translation, sol.Rotation)
		fieldToCamera := spatialmath.Compose(tagPose, spatialmath.PoseInverse(cameraToTag))
		candidates[i] = PoseCandidate{Pose: fieldToCamera, ReprojErr: sol.ReprojErr}
	}
	result := NewAmbiguousCameraPose([]int{obs.TagID}, candidates[0], candidates[1])
	return &result
}

// solvePooled solves all correspondences jointly. The raw result maps
// field points into the camera frame, so the camera's own field pose is
// its inverse.
func (e *CameraPoseEstimator) solvePooled(cam *pnp.Camera, tagIDs []int, object []r3.Vector, image []pnp.Point2) *CameraPoseObservation {
	sol, err := pnp.SolvePooled(cam, object, image)
	if err != nil {
		e.logger.Debugw("pooled camera pose solve failed", "tags", tagIDs, "error", err)
		return nil
	}
	cameraFromField := PoseFromCameraVectors(sol.Translation, sol.Rotation)
	fieldToCamera := spatialmath.PoseInverse(cameraFromField)
	result := NewResolvedCameraPose(tagIDs, PoseCandidate{Pose: fieldToCamera, ReprojErr: sol.ReprojErr})
	return &result
}
