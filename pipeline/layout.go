package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// FieldLayout maps a tag id to its fixed pose in the field frame. A tag
// absent from the layout is simply unusable for global localization.
type FieldLayout map[int]spatialmath.Pose

// layout JSON mirrors the published field map format: translations in
// meters, rotations as quaternions.
type layoutFile struct {
	Tags []struct {
		ID   int `json:"ID"`
		Pose struct {
			Translation struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
				Z float64 `json:"z"`
			} `json:"translation"`
			Rotation struct {
				Quaternion struct {
					W float64 `json:"W"`
					X float64 `json:"X"`
					Y float64 `json:"Y"`
					Z float64 `json:"Z"`
				} `json:"quaternion"`
			} `json:"rotation"`
		} `json:"pose"`
	} `json:"tags"`
}

// ParseFieldLayout decodes a field layout from JSON. Duplicate ids are an
// error, a malformed document is an error; there is no silent fallback
// here.
func ParseFieldLayout(data []byte) (FieldLayout, error) {
	var parsed layoutFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing field layout: %w", err)
	}
	layout := make(FieldLayout, len(parsed.Tags))
	for _, tag := range parsed.Tags {
		if _, ok := layout[tag.ID]; ok {
			return nil, fmt.Errorf("field layout has duplicate tag id %d", tag.ID)
		}
		q := tag.Pose.Rotation.Quaternion
		layout[tag.ID] = spatialmath.NewPose(
			r3.Vector{X: tag.Pose.Translation.X, Y: tag.Pose.Translation.Y, Z: tag.Pose.Translation.Z},
			&spatialmath.Quaternion{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z},
		)
	}
	return layout, nil
}

// LoadFieldLayout reads a layout file, falling back to the provided
// default layout when the file is missing or unparseable. The fallback is
// explicit and injected by the caller; a nil fallback means load failures
// are returned as errors.
func LoadFieldLayout(path string, fallback FieldLayout) (FieldLayout, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		layout, parseErr := ParseFieldLayout(data)
		if parseErr == nil {
			return layout, nil
		}
		err = parseErr
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("loading field layout %q: %w", path, err)
}
