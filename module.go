// Package vision is a camera-based fiducial localization module: it
// watches a camera for AprilTag-style markers and publishes the camera's
// field-relative pose plus per-tag bearing observations.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"

	"github.com/SimonPBoeckner/Vision/pipeline"
	"github.com/SimonPBoeckner/Vision/utils"
)

// Localizer is the model identifier for the fiducial localizer service.
var Localizer = resource.NewModel("simonpboeckner", "vision", "apriltag-localizer")

func init() {
	resource.RegisterService(genericservice.API, Localizer,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newLocalizer,
		},
	)
}

// Config configures the localizer service.
type Config struct {
	CameraName      string  `json:"camera_name"`
	DetectorName    string  `json:"detector"`
	TagSizeM        float64 `json:"tag_size_m"`
	LayoutPath      string  `json:"layout_path"`
	CalibrationPath string  `json:"calibration_path"`
	FrameRateHz     float64 `json:"frame_rate_hz"`
	// DemoTagID, when set, routes that tag to a standalone camera-relative
	// solve instead of field localization.
	DemoTagID *int `json:"demo_tag_id,omitempty"`
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit required (first return) and optional (second return) dependencies based on the config.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.CameraName == "" {
		return nil, nil, errors.New("camera_name is required")
	}
	if cfg.DetectorName == "" {
		return nil, nil, errors.New("detector is required")
	}
	if cfg.TagSizeM <= 0 {
		return nil, nil, errors.New("tag_size_m must be greater than 0")
	}
	if cfg.FrameRateHz == 0 {
		cfg.FrameRateHz = 50.0
	}
	if cfg.FrameRateHz < 0 {
		return nil, nil, errors.New("frame_rate_hz must be greater than 0")
	}
	return []string{cfg.CameraName}, nil, nil
}

type localizer struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	cfg    *Config

	cancelCtx  context.Context
	cancelFunc func()

	source   pipeline.FrameSource
	worker   *pipeline.Worker
	snapshot pipeline.ConfigSnapshot
	overlay  *overlayState

	mu         sync.Mutex
	latest     *pipeline.ObservationBundle
	lastFPS    int
	activeLoop sync.WaitGroup
}

func newLocalizer(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	cam, err := camera.FromDependencies(deps, conf.CameraName)
	if err != nil {
		return nil, err
	}
	return NewLocalizer(ctx, rawConf.ResourceName(), conf, &cameraSource{cam: cam, logger: logger}, logger)
}

// NewLocalizer builds and starts the localization pipeline against an
// arbitrary frame source. The returned resource runs until Close.
func NewLocalizer(ctx context.Context, name resource.Name, conf *Config, source pipeline.FrameSource, logger logging.Logger) (resource.Resource, error) {
	snapshot, err := buildSnapshot(conf, logger)
	if err != nil {
		return nil, err
	}

	detector, err := pipeline.NewDetector(conf.DetectorName, logger)
	if err != nil {
		return nil, err
	}

	var standalone func(int) bool
	if conf.DemoTagID != nil {
		demoID := *conf.DemoTagID
		standalone = func(tagID int) bool { return tagID == demoID }
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	overlay := &overlayState{}
	l := &localizer{
		name:       name,
		logger:     logger,
		cfg:        conf,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		source:     source,
		snapshot:   snapshot,
		overlay:    overlay,
	}
	l.worker = pipeline.NewWorker(pipeline.WorkerConfig{
		Detector:   detector,
		Standalone: standalone,
		Overlay:    overlay,
		Logger:     logger,
	})
	l.worker.Start(cancelCtx, l.publishFPS)

	l.activeLoop.Add(1)
	goutils.PanicCapturingGo(func() {
		defer l.activeLoop.Done()
		l.captureLoop(cancelCtx)
	})
	logger.Infof("fiducial localizer started (camera=%s detector=%s)", conf.CameraName, conf.DetectorName)
	return l, nil
}

// buildSnapshot loads calibration and layout once at construction. A
// missing calibration file is tolerated: the pipeline runs with pose work
// disabled until reconfigured with one.
func buildSnapshot(conf *Config, logger logging.Logger) (pipeline.ConfigSnapshot, error) {
	snapshot := pipeline.ConfigSnapshot{TagSizeM: conf.TagSizeM}

	if conf.CalibrationPath != "" {
		intrinsics, coeffs, err := pipeline.LoadCalibration(conf.CalibrationPath)
		if err != nil {
			logger.Warnf("no usable calibration, pose estimation disabled: %v", err)
		} else {
			snapshot.Intrinsics = intrinsics
			snapshot.DistortionCoeffs = coeffs
			snapshot.HasCalibration = true
		}
	}

	if conf.LayoutPath != "" {
		layout, err := pipeline.LoadFieldLayout(conf.LayoutPath, nil)
		if err != nil {
			return pipeline.ConfigSnapshot{}, err
		}
		snapshot.Layout = layout
	}
	return snapshot, nil
}

// captureLoop is the fast side of the pipeline: fetch a frame, hand it off
// without blocking, poll for any finished bundle, publish. A busy worker
// costs a dropped frame, never a stall.
func (l *localizer) captureLoop(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / l.cfg.FrameRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, ok := l.source.GetFrame(ctx)
		if !ok {
			continue
		}
		if l.snapshot.HasCalibration {
			l.worker.Offer(pipeline.FrameSample{
				Timestamp: time.Now(),
				Frame:     frame,
				Snapshot:  l.snapshot,
			})
		}

		if bundle, ok := l.worker.Poll(); ok {
			l.publish(bundle)
		}
	}
}

func (l *localizer) publish(bundle pipeline.ObservationBundle) {
	l.mu.Lock()
	l.latest = &bundle
	l.mu.Unlock()
	if bundle.CameraPose != nil {
		l.logger.Debugw("camera pose",
			"tags", bundle.CameraPose.TagIDs,
			"pose", spatialmath.PoseToProtobuf(bundle.CameraPose.Primary.Pose).String(),
			"reproj_err", bundle.CameraPose.Primary.ReprojErr,
		)
	}
}

func (l *localizer) publishFPS(timestamp time.Time, fps int) {
	l.mu.Lock()
	l.lastFPS = fps
	l.mu.Unlock()
	l.logger.Infof("running fiducial pipeline at %d fps", fps)
}

func (l *localizer) Name() resource.Name {
	return l.name
}

// AcquireOverlay registers a debug overlay consumer. Frame annotation only
// happens while at least one session is open; callers must Close the
// session when done watching.
func (l *localizer) AcquireOverlay() *OverlaySession {
	return l.overlay.acquire()
}

func (l *localizer) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, _ := cmd["command"].(string)
	switch name {
	case "latest":
		l.mu.Lock()
		bundle := l.latest
		l.mu.Unlock()
		if bundle == nil {
			return map[string]interface{}{"observation": nil}, nil
		}
		return bundleToMap(*bundle), nil
	case "stats":
		l.mu.Lock()
		fps := l.lastFPS
		l.mu.Unlock()
		return map[string]interface{}{
			"fps":            fps,
			"dropped_frames": int(l.worker.DroppedFrames()),
		}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

func (l *localizer) Close(context.Context) error {
	l.cancelFunc()
	l.worker.Close()
	l.activeLoop.Wait()
	return nil
}

// bundleToMap flattens an observation bundle for DoCommand consumers.
func bundleToMap(bundle pipeline.ObservationBundle) map[string]interface{} {
	out := map[string]interface{}{
		"timestamp": bundle.Timestamp.UnixMicro(),
		"tag_count": len(bundle.Frames),
	}
	if pose := bundle.CameraPose; pose != nil {
		out["camera_pose"] = poseToMap(pose.Primary)
		out["tag_ids"] = pose.TagIDs
		if alt, ok := pose.Alternate(); ok {
			out["camera_pose_alt"] = poseToMap(alt)
		}
	}
	if len(bundle.TagAngles) > 0 {
		angles := make([]interface{}, 0, len(bundle.TagAngles))
		for _, a := range bundle.TagAngles {
			angles = append(angles, map[string]interface{}{
				"tag_id":   a.TagID,
				"corners":  a.CornerAngles,
				"distance": a.Distance,
			})
		}
		out["tag_angles"] = angles
	}
	if demo := bundle.Standalone; demo != nil {
		out["standalone"] = map[string]interface{}{
			"tag_id": demo.TagID,
			"pose_a": poseToMap(demo.PoseA),
			"pose_b": poseToMap(demo.PoseB),
		}
	}
	return out
}

func poseToMap(c pipeline.PoseCandidate) map[string]interface{} {
	out := utils.PoseToMap(c.Pose)
	out["reproj_err"] = c.ReprojErr
	return out
}

// cameraSource adapts a camera component to the pipeline's frame source
// contract: a fetch failure is "no new frame", never fatal.
type cameraSource struct {
	cam    camera.Camera
	logger logging.Logger
	fails  atomic.Uint64
}

func (c *cameraSource) GetFrame(ctx context.Context) (image.Image, bool) {
	imgs, _, err := c.cam.Images(ctx, []string{"color"}, nil)
	if err != nil || len(imgs) == 0 {
		if c.fails.Add(1)%100 == 1 {
			c.logger.Warnf("no frame from camera: %v", err)
		}
		return nil, false
	}
	img, err := imgs[0].Image(ctx)
	if err != nil {
		return nil, false
	}
	return img, true
}
