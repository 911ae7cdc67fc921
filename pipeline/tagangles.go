package pipeline

import (
	"math"

	"go.viam.com/rdk/logging"

	"github.com/SimonPBoeckner/Vision/pnp"
)

// TagAngleCalculator produces the auxiliary per-tag observation stream:
// distortion-corrected angular bearings for each corner plus a scalar
// distance, independent of the global localization result.
type TagAngleCalculator struct {
	logger logging.Logger
}

// NewTagAngleCalculator returns a calculator sharing the pipeline logger.
func NewTagAngleCalculator(logger logging.Logger) *TagAngleCalculator {
	return &TagAngleCalculator{logger: logger}
}

// Calculate undistorts the tag's corners, back-projects each through the
// camera matrix and records its (atan x, atan y) bearing pair, then takes
// the distance from whichever branch of a standalone planar solve has the
// lower reprojection error. If that solve fails the whole observation is
// dropped; there is no angle-only partial result.
func (t *TagAngleCalculator) Calculate(obs FrameObservation, snapshot ConfigSnapshot) *TagAngleObservation {
	cam, err := snapshot.Camera()
	if err != nil {
		return nil
	}

	var angles [4][2]float64
	for i, corner := range obs.Corners {
		ray := cam.Normalize(corner)
		angles[i][0] = math.Atan(ray.X)
		angles[i][1] = math.Atan(ray.Y)
	}

	sols, err := pnp.SolveSquare(cam, obs.Corners, snapshot.TagSizeM)
	if err != nil {
		t.logger.Debugw("tag angle solve failed", "tag", obs.TagID, "error", err)
		return nil
	}
	// Solutions come back ordered by error; the first is the trusted one.
	return &TagAngleObservation{
		TagID:        obs.TagID,
		CornerAngles: angles,
		Distance:     sols[0].Translation.Norm(),
	}
}
