package vision

import (
	"context"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"

	"github.com/SimonPBoeckner/Vision/pipeline"
)

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{CameraName: "cam", DetectorName: "det", TagSizeM: 0.2}
	}

	deps, _, err := base().Validate("")
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if len(deps) != 1 || deps[0] != "cam" {
		t.Fatalf("dependencies %v, want [cam]", deps)
	}

	cfg := base()
	if _, _, err := cfg.Validate(""); err != nil {
		t.Fatal(err)
	}
	if cfg.FrameRateHz != 50.0 {
		t.Fatalf("frame rate default %v, want 50", cfg.FrameRateHz)
	}

	cfg = base()
	cfg.CameraName = ""
	if _, _, err := cfg.Validate(""); err == nil {
		t.Error("missing camera_name should fail")
	}
	cfg = base()
	cfg.DetectorName = ""
	if _, _, err := cfg.Validate(""); err == nil {
		t.Error("missing detector should fail")
	}
	cfg = base()
	cfg.TagSizeM = 0
	if _, _, err := cfg.Validate(""); err == nil {
		t.Error("zero tag size should fail")
	}
	cfg = base()
	cfg.FrameRateHz = -10
	if _, _, err := cfg.Validate(""); err == nil {
		t.Error("negative frame rate should fail")
	}
}

func TestBundleToMap(t *testing.T) {
	pose := spatialmath.NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &spatialmath.R4AA{Theta: 0.4, RZ: 1})
	camPose := pipeline.NewAmbiguousCameraPose(
		[]int{7},
		pipeline.PoseCandidate{Pose: pose, ReprojErr: 0.01},
		pipeline.PoseCandidate{Pose: spatialmath.NewZeroPose(), ReprojErr: 0.5},
	)
	bundle := pipeline.ObservationBundle{
		Timestamp:  time.Unix(1000, 0),
		Frames:     []pipeline.FrameObservation{{TagID: 7}},
		CameraPose: &camPose,
		TagAngles: []pipeline.TagAngleObservation{
			{TagID: 7, Distance: 2.5},
		},
	}

	m := bundleToMap(bundle)
	if m["tag_count"] != 1 {
		t.Fatalf("tag_count %v, want 1", m["tag_count"])
	}
	poseMap, ok := m["camera_pose"].(map[string]interface{})
	if !ok {
		t.Fatalf("camera_pose missing: %v", m)
	}
	if poseMap["x"] != 1.0 || poseMap["reproj_err"] != 0.01 {
		t.Fatalf("camera_pose fields wrong: %v", poseMap)
	}
	if math.Abs(poseMap["rz"].(float64)-0.4) > 1e-9 {
		t.Fatalf("rz %v, want 0.4", poseMap["rz"])
	}
	if _, ok := m["camera_pose_alt"]; !ok {
		t.Fatal("ambiguous pose should expose its alternate")
	}
	if _, ok := m["standalone"]; ok {
		t.Fatal("no standalone solve was present")
	}

	// Resolved poses drop the alternate.
	resolved := pipeline.NewResolvedCameraPose([]int{1, 2}, pipeline.PoseCandidate{Pose: pose})
	m = bundleToMap(pipeline.ObservationBundle{CameraPose: &resolved})
	if _, ok := m["camera_pose_alt"]; ok {
		t.Fatal("resolved pose should have no alternate")
	}
}

// staticSource replays one synthetic frame forever.
type staticSource struct {
	frame image.Image
}

func (s *staticSource) GetFrame(ctx context.Context) (image.Image, bool) {
	return s.frame, true
}

const testCalibration = `{
  "width_px": 640, "height_px": 480,
  "fx": 600, "fy": 600, "ppx": 320, "ppy": 240,
  "distortion_coefficients": []
}`

const testLayout = `{
  "tags": [
    {
      "ID": 7,
      "pose": {
        "translation": {"x": 5, "y": 1, "z": 1},
        "rotation": {"quaternion": {"W": 1, "X": 0, "Y": 0, "Z": 0}}
      }
    }
  ]
}`

func init() {
	pipeline.RegisterDetector("static-test-detector", func(logger logging.Logger) (pipeline.Detector, error) {
		return &emptyDetector{}, nil
	})
}

type emptyDetector struct{}

func (d *emptyDetector) Detect(ctx context.Context, frame image.Image, snapshot pipeline.ConfigSnapshot) []pipeline.FrameObservation {
	return nil
}

func TestLocalizerLifecycle(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	calibPath := filepath.Join(dir, "calib.json")
	layoutPath := filepath.Join(dir, "layout.json")
	if err := os.WriteFile(calibPath, []byte(testCalibration), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layoutPath, []byte(testLayout), 0o644); err != nil {
		t.Fatal(err)
	}

	conf := &Config{
		CameraName:      "cam",
		DetectorName:    "static-test-detector",
		TagSizeM:        0.2,
		LayoutPath:      layoutPath,
		CalibrationPath: calibPath,
		FrameRateHz:     100,
	}
	source := &staticSource{frame: image.NewRGBA(image.Rect(0, 0, 640, 480))}

	res, err := NewLocalizer(context.Background(), genericservice.Named("test"), conf, source, logger)
	if err != nil {
		t.Fatalf("failed to start localizer: %v", err)
	}
	defer func() {
		if err := res.Close(context.Background()); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	stats, err := res.DoCommand(context.Background(), map[string]interface{}{"command": "stats"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if _, ok := stats["fps"]; !ok {
		t.Fatalf("stats missing fps: %v", stats)
	}

	// Quiet frames still produce bundles eventually.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		latest, err := res.DoCommand(context.Background(), map[string]interface{}{"command": "latest"})
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if _, pending := latest["observation"]; !pending {
			if latest["tag_count"] != 0 {
				t.Fatalf("quiet frame reported tags: %v", latest)
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := res.DoCommand(context.Background(), map[string]interface{}{"command": "bogus"}); err == nil {
		t.Fatal("unknown commands should error")
	}
}

func TestLocalizerRejectsUnknownDetector(t *testing.T) {
	logger := logging.NewTestLogger(t)
	conf := &Config{
		CameraName:   "cam",
		DetectorName: "never-registered",
		TagSizeM:     0.2,
		FrameRateHz:  10,
	}
	source := &staticSource{frame: image.NewRGBA(image.Rect(0, 0, 2, 2))}
	if _, err := NewLocalizer(context.Background(), resource.Name{}, conf, source, logger); err == nil {
		t.Fatal("unknown detector name should fail construction")
	}
}
