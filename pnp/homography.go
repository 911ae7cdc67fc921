package pnp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when a point configuration is numerically
// unusable (collinear corners, ill-conditioned homography, points behind
// the camera).
var ErrDegenerate = errors.New("degenerate point configuration")

// quadArea returns the absolute shoelace area of four points in order.
func quadArea(p [4]Point2) float64 {
	var area float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		area += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(area) / 2
}

// normalizePoints computes a Hartley similarity normalization: points are
// translated to their centroid and scaled so the mean distance from the
// origin is sqrt(2). Returns the transformed points and the 3x3 transform.
func normalizePoints(pts []Point2) ([]Point2, rmat) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n
	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	scale := 1.0
	if meanDist > 1e-12 {
		scale = math.Sqrt2 / meanDist
	}
	out := make([]Point2, len(pts))
	for i, p := range pts {
		out[i] = Point2{X: (p.X - cx) * scale, Y: (p.Y - cy) * scale}
	}
	t := rmat{
		scale, 0, -scale * cx,
		0, scale, -scale * cy,
		0, 0, 1,
	}
	return out, t
}

// invertSimilarity inverts a normalization transform produced by
// normalizePoints.
func invertSimilarity(t rmat) rmat {
	s := t[0]
	return rmat{
		1 / s, 0, -t[2] / s,
		0, 1 / s, -t[5] / s,
		0, 0, 1,
	}
}

// homographyDLT estimates the homography mapping src to dst using the
// normalized direct linear transform. Exact for four correspondences.
// The result is scaled so its lower-right element is 1.
func homographyDLT(src, dst []Point2) (rmat, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return identity, ErrDegenerate
	}
	srcN, tSrc := normalizePoints(src)
	dstN, tDst := normalizePoints(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	// Full SVD: with exactly four correspondences A is 8x9 and the null
	// vector lives in the column the thin factorization drops.
	if !svd.Factorize(a, mat.SVDFull) {
		return identity, ErrDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)
	// Null space of A: the right singular vector of the smallest value.
	var h rmat
	for i := 0; i < 9; i++ {
		h[i] = v.At(i, 8)
	}

	// Undo the normalization: H = Tdst^-1 * Hn * Tsrc.
	h = invertSimilarity(tDst).mul(h).mul(tSrc)

	// Scale-invariant conditioning checks before fixing h33 = 1.
	var fro float64
	for _, e := range h {
		fro += e * e
	}
	fro = math.Sqrt(fro)
	if fro < 1e-12 || math.Abs(h[8])/fro < 1e-9 || math.Abs(h.det())/(fro*fro*fro) < 1e-9 {
		return identity, ErrDegenerate
	}
	for i := range h {
		h[i] /= h[8]
	}
	return h, nil
}
