package pnp

import (
	"github.com/golang/geo/r3"
)

// SquareTemplate returns the canonical 3D corner template of a square
// target of the given side length, centered at the origin in its own
// plane (z = 0). The corner order is the fixed winding the detector uses
// for image corners; the two must always agree.
func SquareTemplate(size float64) [4]r3.Vector {
	h := size / 2
	return [4]r3.Vector{
		{X: -h, Y: h},
		{X: h, Y: h},
		{X: h, Y: -h},
		{X: -h, Y: -h},
	}
}

// minQuadArea rejects corner sets that are collinear or nearly so, in
// normalized image units.
const minQuadArea = 1e-10

// SolveSquare estimates the pose of a square planar target of known size
// from its four observed image corners (distorted pixels, in template
// order). Planar square targets are two-fold ambiguous under perspective:
// both candidate poses are always returned together, ordered by ascending
// reprojection error. Callers pick a branch by error or by temporal
// consistency; this function never does.
func SolveSquare(cam *Camera, corners [4]Point2, size float64) ([2]Solution, error) {
	if size <= 0 {
		return [2]Solution{}, ErrDegenerate
	}
	template := SquareTemplate(size)

	object := make([]r3.Vector, 4)
	plane := make([]Point2, 4)
	normalized := make([]Point2, 4)
	for i := range corners {
		object[i] = template[i]
		plane[i] = Point2{X: template[i].X, Y: template[i].Y}
		normalized[i] = cam.Normalize(corners[i])
	}

	if quadArea([4]Point2{normalized[0], normalized[1], normalized[2], normalized[3]}) < minQuadArea {
		return [2]Solution{}, ErrDegenerate
	}

	h, err := homographyDLT(plane, normalized)
	if err != nil {
		return [2]Solution{}, err
	}
	r1, r2, err := ippeRotations(h)
	if err != nil {
		return [2]Solution{}, err
	}

	sols := make([]Solution, 0, 2)
	for _, rot := range []rmat{r1, r2} {
		trans, err := solveTranslation(rot, object, normalized)
		if err != nil {
			return [2]Solution{}, err
		}
		rms, ok := reprojErrRMS(cam, rot, trans, object, normalized)
		if !ok {
			return [2]Solution{}, ErrDegenerate
		}
		sols = append(sols, Solution{
			Rotation:    rot.angleAxis(),
			Translation: trans,
			ReprojErr:   rms,
		})
	}
	if sols[1].ReprojErr < sols[0].ReprojErr {
		sols[0], sols[1] = sols[1], sols[0]
	}
	return [2]Solution{sols[0], sols[1]}, nil
}
