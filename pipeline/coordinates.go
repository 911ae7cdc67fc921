package pipeline

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// Two coordinate conventions meet in this package. The solvers work in the
// camera optical frame (x right, y down, z forward); everything published
// upstream uses the field convention (x forward, y left, z up). The
// mapping is a pure axis permutation, so it applies unchanged to
// translations and to angle-axis rotation vectors.

// CameraToField permutes a camera-frame vector into field convention:
// (x, y, z)field = (z, -x, -y)camera.
func CameraToField(v r3.Vector) r3.Vector {
	return r3.Vector{X: v.Z, Y: -v.X, Z: -v.Y}
}

// FieldToCamera is the exact inverse permutation:
// (x, y, z)camera = (-y, -z, x)field.
func FieldToCamera(v r3.Vector) r3.Vector {
	return r3.Vector{X: -v.Y, Y: -v.Z, Z: v.X}
}

// PoseFromCameraVectors converts a camera-frame solver result (translation
// plus angle-axis rotation vector) into a field-convention pose. The
// rotation angle is the vector magnitude, which the permutation preserves.
func PoseFromCameraVectors(tvec, rvec r3.Vector) spatialmath.Pose {
	point := CameraToField(tvec)
	theta := rvec.Norm()
	if theta < 1e-12 {
		return spatialmath.NewPoseFromPoint(point)
	}
	axis := CameraToField(rvec).Mul(1 / theta)
	return spatialmath.NewPose(point, &spatialmath.R4AA{
		Theta: theta,
		RX:    axis.X,
		RY:    axis.Y,
		RZ:    axis.Z,
	})
}

// PoseToCameraVectors is the inverse of PoseFromCameraVectors: it breaks a
// field-convention pose back into camera-frame translation and angle-axis
// vectors.
func PoseToCameraVectors(pose spatialmath.Pose) (tvec, rvec r3.Vector) {
	tvec = FieldToCamera(pose.Point())
	aa := pose.Orientation().AxisAngles()
	axis := r3.Vector{X: aa.RX, Y: aa.RY, Z: aa.RZ}
	rvec = FieldToCamera(axis.Mul(aa.Theta))
	return tvec, rvec
}
