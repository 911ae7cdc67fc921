// Package utils has small conversion helpers shared by the service and CLI.
package utils

import (
	"go.viam.com/rdk/spatialmath"
)

// PoseToMap flattens a pose into the DoCommand wire shape: translation plus
// an angle-axis rotation vector whose magnitude is the angle in radians.
func PoseToMap(pose spatialmath.Pose) map[string]interface{} {
	if pose == nil {
		return nil
	}
	point := pose.Point()
	aa := pose.Orientation().AxisAngles()
	return map[string]interface{}{
		"x": point.X, "y": point.Y, "z": point.Z,
		"rx": aa.RX * aa.Theta, "ry": aa.RY * aa.Theta, "rz": aa.RZ * aa.Theta,
	}
}
