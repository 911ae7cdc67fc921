package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/erh/vmodutils"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"github.com/SimonPBoeckner/Vision/pipeline"
	"github.com/SimonPBoeckner/Vision/pnp"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	ctx := context.Background()
	logger := logging.NewLogger("cli")

	calibrationPath := flag.String("calibration", "", "camera calibration JSON file")
	layoutPath := flag.String("layout", "", "field layout JSON file")
	tagID := flag.Int("tag", 1, "tag id used for the synthetic observation")
	distance := flag.Float64("distance", 2.0, "synthetic tag distance in meters")
	tagSize := flag.Float64("tag-size", 0.1651, "tag side length in meters")
	cameraName := flag.String("camera", "", "grab one frame from this camera on the machine from env")
	flag.Parse()

	if *cameraName != "" {
		if err := grabFrame(ctx, logger, *cameraName); err != nil {
			return err
		}
	}

	if *calibrationPath == "" || *layoutPath == "" {
		logger.Info("no -calibration/-layout given, skipping solver check")
		return nil
	}

	intrinsics, coeffs, err := pipeline.LoadCalibration(*calibrationPath)
	if err != nil {
		return err
	}
	layout, err := pipeline.LoadFieldLayout(*layoutPath, nil)
	if err != nil {
		return err
	}

	logger.Infof("loaded calibration (%d distortion coefficients) and layout (%d tags)",
		len(coeffs), len(layout))

	// The synthetic corners are generated through an ideal projection, so the
	// solve runs without the lens model to round-trip exactly.
	snapshot := pipeline.ConfigSnapshot{
		Intrinsics:     intrinsics,
		TagSizeM:       *tagSize,
		Layout:         layout,
		HasCalibration: true,
	}

	obs, err := syntheticObservation(snapshot, *tagID, *distance)
	if err != nil {
		return err
	}

	estimator := pipeline.NewCameraPoseEstimator(logger)
	pose := estimator.Solve([]pipeline.FrameObservation{obs}, snapshot)
	if pose == nil {
		return errors.New("pose solve failed on synthetic observation")
	}
	logger.Infof("camera pose: %v (reproj err %.3g px)",
		spatialmath.PoseToProtobuf(pose.Primary.Pose).String(), pose.Primary.ReprojErr)
	if alt, ok := pose.Alternate(); ok {
		logger.Infof("ambiguous, alternate: %v (reproj err %.3g px)",
			spatialmath.PoseToProtobuf(alt.Pose).String(), alt.ReprojErr)
	}

	angles := pipeline.NewTagAngleCalculator(logger).Calculate(obs, snapshot)
	if angles != nil {
		logger.Infof("tag %d distance: %.3f m (expected %.3f)", angles.TagID, angles.Distance, *distance)
	}
	return nil
}

// grabFrame connects to the machine named by the usual environment variables
// and pulls a single frame, a quick way to confirm the camera side of a
// deployment before wiring the full service.
func grabFrame(ctx context.Context, logger logging.Logger, name string) error {
	machine, err := vmodutils.ConnectToMachineFromEnv(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to machine: %w", err)
	}
	defer machine.Close(ctx)

	cam, err := camera.FromRobot(machine, name)
	if err != nil {
		return err
	}
	imgs, _, err := cam.Images(ctx, []string{"color"}, nil)
	if err != nil {
		return err
	}
	if len(imgs) == 0 {
		return errors.New("camera returned no images")
	}
	img, err := imgs[0].Image(ctx)
	if err != nil {
		return err
	}
	logger.Infof("got %v frame from %s", img.Bounds().Size(), name)
	return nil
}

// syntheticObservation projects the corners of a tag held fronto-parallel at
// the given distance straight ahead of the camera. Solving it should recover
// a camera pose consistent with the tag's layout pose.
func syntheticObservation(snapshot pipeline.ConfigSnapshot, tagID int, distance float64) (pipeline.FrameObservation, error) {
	if _, ok := snapshot.Layout[tagID]; !ok {
		return pipeline.FrameObservation{}, fmt.Errorf("tag %d not in layout", tagID)
	}
	cam, err := snapshot.Camera()
	if err != nil {
		return pipeline.FrameObservation{}, err
	}

	template := pnp.SquareTemplate(snapshot.TagSizeM)
	var corners [4]pnp.Point2
	for i, c := range template {
		c.Z += distance
		px, ok := cam.Project(c)
		if !ok {
			return pipeline.FrameObservation{}, errors.New("synthetic corner behind camera")
		}
		corners[i] = px
	}
	return pipeline.FrameObservation{TagID: tagID, Corners: corners}, nil
}
