package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"go.viam.com/rdk/rimage/transform"
)

// calibrationFile is the output of the external calibration session: the
// pinhole intrinsics in the rimage JSON shape plus OpenCV-ordered
// distortion coefficients.
type calibrationFile struct {
	transform.PinholeCameraIntrinsics
	DistortionCoeffs []float64 `json:"distortion_coefficients"`
}

// LoadCalibration reads camera intrinsics and distortion coefficients from
// a calibration JSON file. A missing file is not an error to the caller in
// the way a malformed one is: the pipeline runs without calibration (pose
// work disabled) until one appears.
func LoadCalibration(path string) (*transform.PinholeCameraIntrinsics, []float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading calibration %q: %w", path, err)
	}
	var parsed calibrationFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, nil, fmt.Errorf("parsing calibration %q: %w", path, err)
	}
	intrinsics := parsed.PinholeCameraIntrinsics
	if err := intrinsics.CheckValid(); err != nil {
		return nil, nil, err
	}
	return &intrinsics, parsed.DistortionCoeffs, nil
}
