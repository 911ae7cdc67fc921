// Package pnp solves perspective-n-point problems for square fiducial
// targets: the two-solution planar case (IPPE) and the pooled multi-point
// case. All poses are expressed in the camera optical frame (x right,
// y down, z forward) as an angle-axis rotation vector plus a translation.
package pnp

import (
	"errors"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/rimage/transform"
)

// Point2 is an image-plane point in pixels, or a normalized image point
// when stated by the function using it.
type Point2 struct {
	X float64
	Y float64
}

// Solution is one candidate pose with its reprojection error. Rotation is
// an angle-axis vector whose magnitude is the rotation angle in radians.
type Solution struct {
	Rotation    r3.Vector
	Translation r3.Vector
	ReprojErr   float64
}

// Camera bundles the pinhole intrinsics with an optional lens distortion
// model. Distortion is applied on normalized image coordinates, matching
// the calibration output convention.
type Camera struct {
	Intrinsics *transform.PinholeCameraIntrinsics
	Distortion *transform.InverseBrownConrady
}

// NewCamera validates the intrinsics and wraps OpenCV-ordered distortion
// coefficients (k1, k2, p1, p2, k3). coeffs may be nil or empty for an
// ideal lens.
func NewCamera(intrinsics *transform.PinholeCameraIntrinsics, coeffs []float64) (*Camera, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	cam := &Camera{Intrinsics: intrinsics}
	if len(coeffs) > 0 {
		if len(coeffs) > 5 {
			return nil, errors.New("expected at most 5 distortion coefficients (k1, k2, p1, p2, k3)")
		}
		padded := make([]float64, 5)
		copy(padded, coeffs)
		cam.Distortion = &transform.InverseBrownConrady{
			RadialK1:     padded[0],
			RadialK2:     padded[1],
			TangentialP1: padded[2],
			TangentialP2: padded[3],
			RadialK3:     padded[4],
		}
	}
	return cam, nil
}

// Normalize converts a distorted pixel coordinate to an undistorted
// normalized image coordinate (the z=1 plane of the camera frame).
func (c *Camera) Normalize(p Point2) Point2 {
	x := (p.X - c.Intrinsics.Ppx) / c.Intrinsics.Fx
	y := (p.Y - c.Intrinsics.Ppy) / c.Intrinsics.Fy
	if c.Distortion != nil {
		x, y = c.Distortion.Transform(x, y)
	}
	return Point2{x, y}
}

// UndistortedPixel maps a distorted pixel coordinate to the undistorted
// pixel plane (undistort, then reproject through the camera matrix).
// Reprojection errors are measured in this plane.
func (c *Camera) UndistortedPixel(p Point2) Point2 {
	n := c.Normalize(p)
	return Point2{
		X: n.X*c.Intrinsics.Fx + c.Intrinsics.Ppx,
		Y: n.Y*c.Intrinsics.Fy + c.Intrinsics.Ppy,
	}
}

// Project maps a camera-frame 3D point to the undistorted pixel plane.
// Returns false for points at or behind the camera.
func (c *Camera) Project(v r3.Vector) (Point2, bool) {
	if v.Z <= 1e-9 {
		return Point2{}, false
	}
	return Point2{
		X: v.X/v.Z*c.Intrinsics.Fx + c.Intrinsics.Ppx,
		Y: v.Y/v.Z*c.Intrinsics.Fy + c.Intrinsics.Ppy,
	}, true
}
