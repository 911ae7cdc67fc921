package pipeline

import (
	"context"
	"time"

	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"github.com/SimonPBoeckner/Vision/pnp"
)

// WorkerConfig wires the estimation worker. Detector is required. A nil
// Standalone predicate means every observation feeds field localization; a
// nil Overlay disables annotation.
type WorkerConfig struct {
	Detector Detector
	// Standalone classifies an observation as independently tracked: such
	// tags are excluded from field localization and tag angles and solved
	// on their own instead.
	Standalone func(tagID int) bool
	Overlay    OverlaySink
	// FPSWindow defaults to one second.
	FPSWindow time.Duration
	Logger    logging.Logger
}

// Worker is the dedicated estimation stage. It owns the detector and the
// estimators exclusively; the only shared state with the capture side is
// the two single-slot channels, so bundles can never be reordered relative
// to their timestamps. A solve failure degrades to an absent result for
// that frame and the worker keeps running; there is no recovery path more
// elaborate than the next frame.
type Worker struct {
	in  *Slot[FrameSample]
	out *Slot[ObservationBundle]

	detector   Detector
	poses      *CameraPoseEstimator
	angles     *TagAngleCalculator
	standalone func(tagID int) bool
	overlay    OverlaySink

	fps    *rateCounter
	logger logging.Logger
}

// NewWorker builds the worker stage; Start actually runs it.
func NewWorker(cfg WorkerConfig) *Worker {
	window := cfg.FPSWindow
	if window <= 0 {
		window = time.Second
	}
	return &Worker{
		in:         NewSlot[FrameSample](),
		out:        NewSlot[ObservationBundle](),
		detector:   cfg.Detector,
		poses:      NewCameraPoseEstimator(cfg.Logger),
		angles:     NewTagAngleCalculator(cfg.Logger),
		standalone: cfg.Standalone,
		overlay:    cfg.Overlay,
		fps:        newRateCounter(window),
		logger:     cfg.Logger,
	}
}

// Start launches the processing loop. fpsFn, if non-nil, is invoked once
// per completed rate window with the frame count.
func (w *Worker) Start(ctx context.Context, fpsFn func(timestamp time.Time, fps int)) {
	goutils.PanicCapturingGo(func() {
		for {
			sample, ok := w.in.Take()
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			bundle := w.process(ctx, sample)
			w.out.Replace(bundle)
			if n, rolled := w.fps.tick(time.Now()); rolled && fpsFn != nil {
				fpsFn(sample.Timestamp, n)
			}
		}
	})
}

// Offer hands a frame to the worker without blocking. A frame arriving
// while the previous one is still unconsumed is dropped, never queued: the
// pipeline prefers the newest frame over completeness.
func (w *Worker) Offer(sample FrameSample) bool {
	return w.in.Offer(sample)
}

// Poll returns the latest unconsumed observation bundle without blocking.
func (w *Worker) Poll() (ObservationBundle, bool) {
	return w.out.Poll()
}

// FPS reports the most recent completed-window frame count.
func (w *Worker) FPS() int {
	return w.fps.rate()
}

// DroppedFrames reports how many offered frames were discarded because the
// worker was busy.
func (w *Worker) DroppedFrames() uint64 {
	return w.in.Drops()
}

// Close stops the processing loop and releases any blocked hand-off.
func (w *Worker) Close() {
	w.in.Close()
	w.out.Close()
}

func (w *Worker) process(ctx context.Context, sample FrameSample) ObservationBundle {
	bundle := ObservationBundle{Timestamp: sample.Timestamp}
	if !sample.Snapshot.HasCalibration {
		// Estimation is a no-op without calibration; detection would only
		// produce observations nothing downstream can use.
		return bundle
	}

	observations := w.detector.Detect(ctx, sample.Frame, sample.Snapshot)
	bundle.Frames = observations

	// Partition into field observations and independently tracked tags.
	var field []FrameObservation
	var standalone *FrameObservation
	for i, obs := range observations {
		if w.standalone != nil && w.standalone(obs.TagID) {
			if standalone == nil {
				standalone = &observations[i]
			}
			continue
		}
		field = append(field, obs)
	}

	bundle.CameraPose = w.poses.Solve(field, sample.Snapshot)
	for _, obs := range field {
		if angleObs := w.angles.Calculate(obs, sample.Snapshot); angleObs != nil {
			bundle.TagAngles = append(bundle.TagAngles, *angleObs)
		}
	}
	if standalone != nil {
		bundle.Standalone = w.solveStandalone(*standalone, sample.Snapshot)
	}

	if w.overlay != nil && w.overlay.Attached() && sample.Frame != nil {
		w.overlay.Publish(AnnotateFrame(sample.Frame, observations))
	}
	return bundle
}

// solveStandalone produces the demo-style pose for an independently
// tracked tag: both planar branches, relative to the camera only.
func (w *Worker) solveStandalone(obs FrameObservation, snapshot ConfigSnapshot) *TagPoseObservation {
	cam, err := snapshot.Camera()
	if err != nil {
		return nil
	}
	sols, err := pnp.SolveSquare(cam, obs.Corners, snapshot.TagSizeM)
	if err != nil {
		w.logger.Debugw("standalone tag solve failed", "tag", obs.TagID, "error", err)
		return nil
	}
	return &TagPoseObservation{
		TagID: obs.TagID,
		PoseA: PoseCandidate{Pose: PoseFromCameraVectors(sols[0].Translation, sols[0].Rotation), ReprojErr: sols[0].ReprojErr},
		PoseB: PoseCandidate{Pose: PoseFromCameraVectors(sols[1].Translation, sols[1].Rotation), ReprojErr: sols[1].ReprojErr},
	}
}
