package pnp

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// planarity ratio below which a pooled point set is solved as a plane.
const planarEigenRatio = 1e-6

// SolvePooled estimates a single camera pose from pooled 3D/2D
// correspondences spanning several targets. Image points are distorted
// pixels. Unlike the square solver this always returns exactly one
// solution: a non-coplanar pool has no planar ambiguity, and for a
// coplanar pool the lower-reprojection-error branch is kept.
func SolvePooled(cam *Camera, object []r3.Vector, image []Point2) (Solution, error) {
	if len(object) != len(image) || len(object) < 4 {
		return Solution{}, ErrDegenerate
	}

	normalized := make([]Point2, len(image))
	for i, p := range image {
		normalized[i] = cam.Normalize(p)
	}

	centroid, basis, eigenvals, err := principalAxes(object)
	if err != nil {
		return Solution{}, err
	}
	if eigenvals[1] < planarEigenRatio*eigenvals[0] {
		// All points nearly collinear: no usable pose.
		return Solution{}, ErrDegenerate
	}

	var sol Solution
	if eigenvals[2] < planarEigenRatio*eigenvals[0] {
		sol, err = solvePlanarPool(cam, object, normalized, centroid, basis)
	} else {
		sol, err = solveDLT(cam, object, normalized, centroid)
	}
	if err != nil {
		return Solution{}, err
	}
	return refinePose(cam, sol, object, normalized), nil
}

// principalAxes runs the PCA of the pooled object points: centroid, a
// right-handed eigenbasis ordered by descending eigenvalue, and the
// eigenvalues themselves.
func principalAxes(points []r3.Vector) (r3.Vector, rmat, [3]float64, error) {
	n := float64(len(points))
	var centroid r3.Vector
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / n)

	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			var sum float64
			for _, p := range points {
				d := p.Sub(centroid)
				di := [3]float64{d.X, d.Y, d.Z}
				sum += di[i] * di[j]
			}
			cov.SetSym(i, j, sum/n)
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return r3.Vector{}, identity, [3]float64{}, ErrDegenerate
	}
	vals := eig.Values(nil)
	vecs := mat.NewDense(3, 3, nil)
	eig.VectorsTo(vecs)

	// EigenSym sorts ascending; reorder to descending.
	order := [3]int{2, 1, 0}
	var basis rmat
	var sorted [3]float64
	for k, idx := range order {
		sorted[k] = math.Max(vals[idx], 0)
		for row := 0; row < 3; row++ {
			basis[3*row+k] = vecs.At(row, idx)
		}
	}
	// Force a right-handed basis so it can be used as a rotation.
	if basis.det() < 0 {
		for row := 0; row < 3; row++ {
			basis[3*row+2] = -basis[3*row+2]
		}
	}
	return centroid, basis, sorted, nil
}

// solvePlanarPool handles a coplanar pool: express the points in their
// plane basis and run the planar solver, keeping the lower-error branch.
func solvePlanarPool(cam *Camera, object []r3.Vector, normalized []Point2, centroid r3.Vector, basis rmat) (Solution, error) {
	basisT := basis.transpose()
	plane := make([]Point2, len(object))
	for i, p := range object {
		local := basisT.apply(p.Sub(centroid))
		plane[i] = Point2{X: local.X, Y: local.Y}
	}

	h, err := homographyDLT(plane, normalized)
	if err != nil {
		return Solution{}, err
	}
	r1, r2, err := ippeRotations(h)
	if err != nil {
		return Solution{}, err
	}

	best := Solution{ReprojErr: math.Inf(1)}
	planeObject := make([]r3.Vector, len(plane))
	for i, p := range plane {
		planeObject[i] = r3.Vector{X: p.X, Y: p.Y}
	}
	for _, rp := range []rmat{r1, r2} {
		tp, err := solveTranslation(rp, planeObject, normalized)
		if err != nil {
			continue
		}
		full := rp.mul(basisT)
		trans := tp.Sub(full.apply(centroid))
		rms, ok := reprojErrRMS(cam, full, trans, object, normalized)
		if !ok {
			continue
		}
		if rms < best.ReprojErr {
			best = Solution{Rotation: full.angleAxis(), Translation: trans, ReprojErr: rms}
		}
	}
	if math.IsInf(best.ReprojErr, 1) {
		return Solution{}, ErrDegenerate
	}
	return best, nil
}

// solveDLT recovers an initial pose for a non-coplanar pool with the
// 12-parameter direct linear transform, then orthonormalizes the rotation.
// Needs at least six correspondences; two targets already provide eight.
func solveDLT(cam *Camera, object []r3.Vector, normalized []Point2, centroid r3.Vector) (Solution, error) {
	if len(object) < 6 {
		return Solution{}, ErrDegenerate
	}

	// Center and scale the object points for conditioning.
	var rms float64
	for _, p := range object {
		d := p.Sub(centroid)
		rms += d.Norm2()
	}
	scale := math.Sqrt(rms / float64(len(object)))
	if scale < 1e-12 {
		return Solution{}, ErrDegenerate
	}

	a := mat.NewDense(2*len(object), 12, nil)
	for i, p := range object {
		d := p.Sub(centroid).Mul(1 / scale)
		u, v := normalized[i].X, normalized[i].Y
		a.SetRow(2*i, []float64{d.X, d.Y, d.Z, 1, 0, 0, 0, 0, -u * d.X, -u * d.Y, -u * d.Z, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, d.X, d.Y, d.Z, 1, -v * d.X, -v * d.Y, -v * d.Z, -v})
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Solution{}, ErrDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)
	var p [12]float64
	for i := 0; i < 12; i++ {
		p[i] = v.At(i, 11)
	}

	// Fix the projective sign so the centroid sits in front of the camera:
	// in centered coordinates the centroid maps through the last column.
	if p[11] < 0 {
		for i := range p {
			p[i] = -p[i]
		}
	}

	m := rmat{p[0], p[1], p[2], p[4], p[5], p[6], p[8], p[9], p[10]}
	rot, sigma, err := orthonormalize(m)
	if err != nil {
		return Solution{}, err
	}
	// Undo the object normalization: X' = (X - c)/s.
	trans := r3.Vector{X: p[3], Y: p[7], Z: p[11]}.Mul(1 / sigma).Sub(rot.apply(centroid.Mul(1 / scale))).Mul(scale)

	reproj, ok := reprojErrRMS(cam, rot, trans, object, normalized)
	if !ok {
		return Solution{}, ErrDegenerate
	}
	return Solution{Rotation: rot.angleAxis(), Translation: trans, ReprojErr: reproj}, nil
}

// orthonormalize projects a 3x3 matrix onto the rotation group and returns
// the mean singular value, the scale the matrix carried.
func orthonormalize(m rmat) (rmat, float64, error) {
	dense := mat.NewDense(3, 3, m[:])
	var svd mat.SVD
	if !svd.Factorize(dense, mat.SVDFull) {
		return identity, 0, ErrDegenerate
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	vals := svd.Values(nil)
	sigma := (vals[0] + vals[1] + vals[2]) / 3
	if sigma < 1e-12 {
		return identity, 0, ErrDegenerate
	}

	var uvT mat.Dense
	uvT.Mul(&u, v.T())
	var rot rmat
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[3*i+j] = uvT.At(i, j)
		}
	}
	if rot.det() < 0 {
		// Flip the weakest direction to stay in SO(3).
		var d mat.Dense
		d.Mul(&u, mat.NewDiagDense(3, []float64{1, 1, -1}))
		d.Mul(&d, v.T())
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				rot[3*i+j] = d.At(i, j)
			}
		}
	}
	return rot, sigma, nil
}

// refinePose polishes a pose estimate by minimizing the squared
// reprojection residual over the six pose parameters with Nelder-Mead,
// keeping the better of the input and refined poses.
func refinePose(cam *Camera, init Solution, object []r3.Vector, normalized []Point2) Solution {
	cost := func(x []float64) float64 {
		rot := rodrigues(r3.Vector{X: x[0], Y: x[1], Z: x[2]})
		trans := r3.Vector{X: x[3], Y: x[4], Z: x[5]}
		rms, ok := reprojErrRMS(cam, rot, trans, object, normalized)
		if !ok {
			return math.Inf(1)
		}
		return rms * rms
	}

	x0 := []float64{
		init.Rotation.X, init.Rotation.Y, init.Rotation.Z,
		init.Translation.X, init.Translation.Y, init.Translation.Z,
	}
	problem := optimize.Problem{Func: cost}
	settings := &optimize.Settings{
		FuncEvaluations: 10000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 50,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return init
	}

	rot := rodrigues(r3.Vector{X: result.X[0], Y: result.X[1], Z: result.X[2]})
	trans := r3.Vector{X: result.X[3], Y: result.X[4], Z: result.X[5]}
	rms, ok := reprojErrRMS(cam, rot, trans, object, normalized)
	if !ok || rms >= init.ReprojErr {
		return init
	}
	return Solution{Rotation: rot.angleAxis(), Translation: trans, ReprojErr: rms}
}
