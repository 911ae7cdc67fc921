package pnp

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ippeRotations recovers the two rotation solutions of the planar pose
// problem from a homography H mapping model-plane coordinates (z = 0) to
// normalized image coordinates. This is the IPPE construction (Collins &
// Bartoli): the projection of the plane origin and the first-order local
// transform there determine the rotation up to the planar two-fold
// ambiguity.
func ippeRotations(h rmat) (rmat, rmat, error) {
	// Image of the plane origin in normalized coordinates.
	p := h[2] / h[8]
	q := h[5] / h[8]

	// Jacobian of the homography at the origin.
	j00 := (h[0] - p*h[6]) / h[8]
	j01 := (h[1] - p*h[7]) / h[8]
	j10 := (h[3] - q*h[6]) / h[8]
	j11 := (h[4] - q*h[7]) / h[8]

	rv, ok := rotationToZ(r3.Vector{X: p, Y: q, Z: 1})
	if !ok {
		return identity, identity, ErrDegenerate
	}

	// B is the in-plane part of the projection after rotating the viewing
	// ray onto the optical axis; its third column vanishes by construction.
	b00 := rv[0] - p*rv[6]
	b01 := rv[1] - p*rv[7]
	b10 := rv[3] - q*rv[6]
	b11 := rv[4] - q*rv[7]
	detB := b00*b11 - b01*b10
	if math.Abs(detB) < 1e-12 {
		return identity, identity, ErrDegenerate
	}
	inv := 1 / detB
	a00 := inv * (b11*j00 - b01*j10)
	a01 := inv * (b11*j01 - b01*j11)
	a10 := inv * (b00*j10 - b10*j00)
	a11 := inv * (b00*j11 - b10*j01)

	// gamma is the largest singular value of A; the top-left 2x2 block of a
	// rotation matrix always has unit largest singular value, so gamma is
	// the inverse depth of the plane origin.
	ata00 := a00*a00 + a10*a10
	ata01 := a00*a01 + a10*a11
	ata11 := a01*a01 + a11*a11
	disc := math.Sqrt((ata00-ata11)*(ata00-ata11) + 4*ata01*ata01)
	gamma := math.Sqrt((ata00 + ata11 + disc) / 2)
	if gamma < 1e-12 || math.IsNaN(gamma) {
		return identity, identity, ErrDegenerate
	}

	r00 := a00 / gamma
	r01 := a01 / gamma
	r10 := a10 / gamma
	r11 := a11 / gamma

	// Third-row entries up to the two-fold sign ambiguity.
	c0 := math.Sqrt(math.Max(0, 1-r00*r00-r10*r10))
	c1 := math.Sqrt(math.Max(0, 1-r01*r01-r11*r11))
	if -r00*r01-r10*r11 < 0 {
		c1 = -c1
	}

	build := func(b0, b1 float64) rmat {
		// Columns 1 and 2 are known; column 3 completes the right-handed
		// basis.
		col0 := r3.Vector{X: r00, Y: r10, Z: b0}
		col1 := r3.Vector{X: r01, Y: r11, Z: b1}
		col2 := col0.Cross(col1)
		m := rmat{
			col0.X, col1.X, col2.X,
			col0.Y, col1.Y, col2.Y,
			col0.Z, col1.Z, col2.Z,
		}
		return rv.mul(m)
	}
	return build(c0, c1), build(-c0, -c1), nil
}

// solveTranslation finds the translation minimizing the algebraic
// projection residual for a known rotation: for each correspondence,
// [I2 | -q] (R X + t) = 0 stacked into a linear least squares problem.
func solveTranslation(rot rmat, object []r3.Vector, image []Point2) (r3.Vector, error) {
	n := len(object)
	a := mat.NewDense(2*n, 3, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := range object {
		rx := rot.apply(object[i])
		u, v := image[i].X, image[i].Y
		a.SetRow(2*i, []float64{1, 0, -u})
		a.SetRow(2*i+1, []float64{0, 1, -v})
		b.SetVec(2*i, -(rx.X - u*rx.Z))
		b.SetVec(2*i+1, -(rx.Y - v*rx.Z))
	}
	var t mat.VecDense
	if err := t.SolveVec(a, b); err != nil {
		return r3.Vector{}, ErrDegenerate
	}
	return r3.Vector{X: t.AtVec(0), Y: t.AtVec(1), Z: t.AtVec(2)}, nil
}

// reprojErrRMS measures the root-mean-square distance, on the undistorted
// pixel plane, between the observed normalized points and the projection
// of the object points under (rot, trans).
func reprojErrRMS(cam *Camera, rot rmat, trans r3.Vector, object []r3.Vector, normalized []Point2) (float64, bool) {
	var sum float64
	for i := range object {
		pc := rot.apply(object[i]).Add(trans)
		proj, ok := cam.Project(pc)
		if !ok {
			return 0, false
		}
		obs := Point2{
			X: normalized[i].X*cam.Intrinsics.Fx + cam.Intrinsics.Ppx,
			Y: normalized[i].Y*cam.Intrinsics.Fy + cam.Intrinsics.Ppy,
		}
		dx := proj.X - obs.X
		dy := proj.Y - obs.Y
		sum += dx*dx + dy*dy
	}
	return math.Sqrt(sum / float64(len(object))), true
}
