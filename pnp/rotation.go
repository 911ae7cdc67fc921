package pnp

import (
	"math"

	"github.com/golang/geo/r3"
)

// rmat is a row-major 3x3 rotation matrix. Small fixed-size helpers keep
// the per-corner hot path free of gonum allocations.
type rmat [9]float64

var identity = rmat{1, 0, 0, 0, 1, 0, 0, 0, 1}

func (m rmat) apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

func (m rmat) mul(n rmat) rmat {
	var out rmat
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = m[3*i]*n[j] + m[3*i+1]*n[3+j] + m[3*i+2]*n[6+j]
		}
	}
	return out
}

func (m rmat) transpose() rmat {
	return rmat{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

func (m rmat) det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// rodrigues converts an angle-axis vector to a rotation matrix. A zero
// vector yields the identity.
func rodrigues(rvec r3.Vector) rmat {
	theta := rvec.Norm()
	if theta < 1e-12 {
		return identity
	}
	k := rvec.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return rmat{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}
}

// angleAxis is the inverse of rodrigues: the log map of a rotation matrix.
func (m rmat) angleAxis() r3.Vector {
	trace := m[0] + m[4] + m[8]
	cosTheta := (trace - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vector{}
	}
	if math.Pi-theta < 1e-6 {
		// Near-pi rotations: extract the axis from the symmetric part.
		xx := (m[0] + 1) / 2
		yy := (m[4] + 1) / 2
		zz := (m[8] + 1) / 2
		axis := r3.Vector{X: math.Sqrt(math.Max(xx, 0)), Y: math.Sqrt(math.Max(yy, 0)), Z: math.Sqrt(math.Max(zz, 0))}
		// Fix signs using the off-diagonal terms.
		if m[1]+m[3] < 0 {
			axis.Y = -axis.Y
		}
		if m[2]+m[6] < 0 {
			axis.Z = -axis.Z
		}
		return axis.Normalize().Mul(theta)
	}
	s := 2 * math.Sin(theta)
	axis := r3.Vector{
		X: (m[7] - m[5]) / s,
		Y: (m[2] - m[6]) / s,
		Z: (m[3] - m[1]) / s,
	}
	return axis.Mul(theta)
}

// rotationToZ returns the rotation taking the camera z axis onto the unit
// direction of v. Returns false when v points away from the camera.
func rotationToZ(v r3.Vector) (rmat, bool) {
	vhat := v.Normalize()
	if vhat.Z <= 0 {
		return identity, false
	}
	// axis = ez x vhat, angle from the dot product
	axis := r3.Vector{X: -vhat.Y, Y: vhat.X}
	s := axis.Norm()
	if s < 1e-12 {
		return identity, true
	}
	theta := math.Atan2(s, vhat.Z)
	return rodrigues(axis.Mul(theta / s)), true
}
