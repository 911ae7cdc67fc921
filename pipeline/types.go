// Package pipeline turns per-frame fiducial corner detections into camera
// pose and per-tag bearing observations, and runs the estimation stage
// behind single-slot freshness-first queues so a slow solve never stalls
// the capture loop.
package pipeline

import (
	"context"
	"image"
	"time"

	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/spatialmath"

	"github.com/SimonPBoeckner/Vision/pnp"
)

// FrameObservation is one detected fiducial in one frame: the tag id and
// its four image corners in the detector's fixed winding. Observations are
// built once by the detector and never mutated afterwards.
type FrameObservation struct {
	TagID   int
	Corners [4]pnp.Point2
}

// PoseCandidate is one candidate camera pose with its scalar reprojection
// residual.
type PoseCandidate struct {
	Pose      spatialmath.Pose
	ReprojErr float64
}

// TagPoseObservation is the standalone single-tag solve: both branches of
// the planar ambiguity, ordered by ascending error. Both are always
// populated together.
type TagPoseObservation struct {
	TagID int
	PoseA PoseCandidate
	PoseB PoseCandidate
}

// CameraPoseObservation is the field-relative camera pose for a frame.
// When it was derived from a single tag the planar ambiguity survives and
// Alternate reports the second branch; a multi-tag solve is unambiguous
// and Alternate reports none. The presence of the alternate, not its
// value, discriminates the two cases.
type CameraPoseObservation struct {
	TagIDs    []int
	Primary   PoseCandidate
	alternate *PoseCandidate
}

// NewResolvedCameraPose builds the unambiguous (multi-tag) variant.
func NewResolvedCameraPose(tagIDs []int, primary PoseCandidate) CameraPoseObservation {
	return CameraPoseObservation{TagIDs: tagIDs, Primary: primary}
}

// NewAmbiguousCameraPose builds the single-tag variant carrying both
// branches of the planar ambiguity.
func NewAmbiguousCameraPose(tagIDs []int, primary, alternate PoseCandidate) CameraPoseObservation {
	return CameraPoseObservation{TagIDs: tagIDs, Primary: primary, alternate: &alternate}
}

// Alternate returns the second pose branch when the observation is
// ambiguous.
func (o *CameraPoseObservation) Alternate() (PoseCandidate, bool) {
	if o.alternate == nil {
		return PoseCandidate{}, false
	}
	return *o.alternate, true
}

// Ambiguous reports whether the observation still carries the single-tag
// planar ambiguity.
func (o *CameraPoseObservation) Ambiguous() bool {
	return o.alternate != nil
}

// TagAngleObservation is the auxiliary per-tag observation: the angular
// bearing of each undistorted corner as an (x, y) angle pair in radians,
// plus a scalar distance to the tag.
type TagAngleObservation struct {
	TagID        int
	CornerAngles [4][2]float64
	Distance     float64
}

// FrameSample is one unit of work handed to the estimation worker.
type FrameSample struct {
	Timestamp time.Time
	Frame     image.Image
	Snapshot  ConfigSnapshot
}

// ObservationBundle is everything the worker derives from one frame.
// CameraPose and Standalone are nil when the frame produced no usable
// solve; TagAngles may be empty.
type ObservationBundle struct {
	Timestamp  time.Time
	Frames     []FrameObservation
	CameraPose *CameraPoseObservation
	TagAngles  []TagAngleObservation
	Standalone *TagPoseObservation
}

// ConfigSnapshot is an immutable per-frame view of the pipeline
// configuration. HasCalibration gates all pose work: without it the worker
// performs no estimation for the frame. The snapshot is read-only for the
// core; ownership stays with the provider.
type ConfigSnapshot struct {
	Intrinsics *transform.PinholeCameraIntrinsics
	// DistortionCoeffs in OpenCV order: k1, k2, p1, p2, k3.
	DistortionCoeffs []float64
	TagSizeM         float64
	Layout           FieldLayout
	HasCalibration   bool
}

// Camera builds the solver-facing camera model from the snapshot.
func (s ConfigSnapshot) Camera() (*pnp.Camera, error) {
	return pnp.NewCamera(s.Intrinsics, s.DistortionCoeffs)
}

// Detector finds fiducial markers in a frame. Implementations never fail
// on "no markers": an empty slice is the normal quiet-frame result.
type Detector interface {
	Detect(ctx context.Context, frame image.Image, snapshot ConfigSnapshot) []FrameObservation
}

// FrameSource supplies capture frames. A false return means "no new
// frame, retry later" and is never fatal.
type FrameSource interface {
	GetFrame(ctx context.Context) (image.Image, bool)
}

// ResultSink receives observation bundles and the periodic frame-rate
// signal. Implementations must not block the caller for long.
type ResultSink interface {
	PublishObservations(bundle ObservationBundle)
	PublishFPS(timestamp time.Time, fps int)
}

// OverlaySink receives annotated frames for debugging. Attached lets the
// worker skip annotation entirely when nobody is watching, keeping the
// overlay off the hot path.
type OverlaySink interface {
	Attached() bool
	Publish(frame image.Image)
}
