package pipeline

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
)

type stubDetector struct {
	observations []FrameObservation
}

func (d *stubDetector) Detect(ctx context.Context, frame image.Image, snapshot ConfigSnapshot) []FrameObservation {
	return d.observations
}

type stubOverlay struct {
	attached  bool
	published []image.Image
}

func (o *stubOverlay) Attached() bool            { return o.attached }
func (o *stubOverlay) Publish(frame image.Image) { o.published = append(o.published, frame) }

func TestWorkerCalibrationGate(t *testing.T) {
	logger := logging.NewTestLogger(t)
	snapshot := testSnapshot(FieldLayout{})
	snapshot.HasCalibration = false

	detector := &stubDetector{observations: []FrameObservation{{TagID: 1}}}
	w := NewWorker(WorkerConfig{Detector: detector, Logger: logger})

	bundle := w.process(context.Background(), FrameSample{Timestamp: time.Now(), Snapshot: snapshot})
	if bundle.Frames != nil || bundle.CameraPose != nil || bundle.TagAngles != nil || bundle.Standalone != nil {
		t.Fatal("uncalibrated frames must produce an empty bundle, not detections")
	}
}

func TestWorkerProcessPartition(t *testing.T) {
	logger := logging.NewTestLogger(t)
	layout := FieldLayout{
		7: spatialmath.NewPoseFromPoint(r3.Vector{X: 5, Y: 1, Z: 1}),
	}
	snapshot := testSnapshot(layout)
	cameraPose := spatialmath.NewPoseFromPoint(r3.Vector{X: 3, Y: 1, Z: 1})

	fieldObs := synthesizeObservation(t, snapshot, cameraPose, 7)
	// The demo tag is not in the layout; it rides along camera-relative.
	demoObs := synthesizeObservation(t, ConfigSnapshot{
		Intrinsics:     snapshot.Intrinsics,
		TagSizeM:       snapshot.TagSizeM,
		Layout:         FieldLayout{42: spatialmath.NewPoseFromPoint(r3.Vector{X: 5, Y: 1, Z: 1})},
		HasCalibration: true,
	}, cameraPose, 42)

	detector := &stubDetector{observations: []FrameObservation{fieldObs, demoObs}}
	w := NewWorker(WorkerConfig{
		Detector:   detector,
		Standalone: func(tagID int) bool { return tagID == 42 },
		Logger:     logger,
	})

	bundle := w.process(context.Background(), FrameSample{Timestamp: time.Now(), Snapshot: snapshot})
	if len(bundle.Frames) != 2 {
		t.Fatalf("bundle carries %d raw observations, want 2", len(bundle.Frames))
	}
	if bundle.CameraPose == nil {
		t.Fatal("field observation should produce a camera pose")
	}
	if len(bundle.CameraPose.TagIDs) != 1 || bundle.CameraPose.TagIDs[0] != 7 {
		t.Fatalf("camera pose used tags %v, want only tag 7", bundle.CameraPose.TagIDs)
	}
	if len(bundle.TagAngles) != 1 || bundle.TagAngles[0].TagID != 7 {
		t.Fatalf("tag angles %v, want only tag 7", bundle.TagAngles)
	}
	if bundle.Standalone == nil || bundle.Standalone.TagID != 42 {
		t.Fatal("demo tag should get a standalone camera-relative solve")
	}
	// The standalone solve is camera-relative: two meters straight ahead.
	tvec, _ := PoseToCameraVectors(bundle.Standalone.PoseA.Pose)
	if d := tvec.Sub(r3.Vector{Z: 2}).Norm(); d > 1e-4 {
		t.Fatalf("standalone pose off by %v: %v", d, tvec)
	}
}

func TestWorkerOverlayOnlyWhenAttached(t *testing.T) {
	logger := logging.NewTestLogger(t)
	layout := FieldLayout{
		7: spatialmath.NewPoseFromPoint(r3.Vector{X: 5, Y: 1, Z: 1}),
	}
	snapshot := testSnapshot(layout)
	obs := synthesizeObservation(t, snapshot, spatialmath.NewPoseFromPoint(r3.Vector{X: 3, Y: 1, Z: 1}), 7)
	detector := &stubDetector{observations: []FrameObservation{obs}}
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))

	overlay := &stubOverlay{}
	w := NewWorker(WorkerConfig{Detector: detector, Overlay: overlay, Logger: logger})
	w.process(context.Background(), FrameSample{Timestamp: time.Now(), Frame: frame, Snapshot: snapshot})
	if len(overlay.published) != 0 {
		t.Fatal("detached overlay should not receive frames")
	}

	overlay.attached = true
	w.process(context.Background(), FrameSample{Timestamp: time.Now(), Frame: frame, Snapshot: snapshot})
	if len(overlay.published) != 1 {
		t.Fatalf("attached overlay received %d frames, want 1", len(overlay.published))
	}
	if overlay.published[0] == image.Image(frame) {
		t.Fatal("overlay must get an annotated copy, not the capture frame")
	}
}

func TestWorkerStartDelivers(t *testing.T) {
	logger := logging.NewTestLogger(t)
	layout := FieldLayout{
		7: spatialmath.NewPoseFromPoint(r3.Vector{X: 5, Y: 1, Z: 1}),
	}
	snapshot := testSnapshot(layout)
	obs := synthesizeObservation(t, snapshot, spatialmath.NewPoseFromPoint(r3.Vector{X: 3, Y: 1, Z: 1}), 7)
	detector := &stubDetector{observations: []FrameObservation{obs}}

	w := NewWorker(WorkerConfig{Detector: detector, Logger: logger})
	defer w.Close()
	w.Start(context.Background(), nil)

	if !w.Offer(FrameSample{Timestamp: time.Now(), Snapshot: snapshot}) {
		t.Fatal("offer into an idle worker should succeed")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if bundle, ok := w.Poll(); ok {
			if bundle.CameraPose == nil {
				t.Fatal("delivered bundle is missing the camera pose")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("worker never delivered a bundle")
}
