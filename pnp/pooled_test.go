package pnp

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
)

// projectObject renders arbitrary object points through a known pose.
func projectObject(t *testing.T, cam *Camera, rvec, tvec r3.Vector, object []r3.Vector) []Point2 {
	t.Helper()
	rot := rodrigues(rvec)
	out := make([]Point2, len(object))
	for i, p := range object {
		px, ok := cam.Project(rot.apply(p).Add(tvec))
		if !ok {
			t.Fatalf("object point %d did not project for pose r=%v t=%v", i, rvec, tvec)
		}
		out[i] = px
	}
	return out
}

func checkPooledSolution(t *testing.T, sol Solution, rvec, tvec r3.Vector) {
	t.Helper()
	if sol.ReprojErr > 1e-6 {
		t.Fatalf("reprojection error %v, want ~0", sol.ReprojErr)
	}
	if d := sol.Translation.Sub(tvec).Norm(); d > 1e-4 {
		t.Fatalf("translation off by %v: got %v want %v", d, sol.Translation, tvec)
	}
	if d := rotDiff(rodrigues(sol.Rotation), rodrigues(rvec)); d > 1e-4 {
		t.Fatalf("rotation off by %v: got %v want %v", d, sol.Rotation, rvec)
	}
}

func TestSolvePooledNonPlanar(t *testing.T) {
	cam := testCamera(t)
	object := []r3.Vector{
		{X: -0.5, Y: -0.5}, {X: 0.5, Y: -0.5}, {X: 0.5, Y: 0.5}, {X: -0.5, Y: 0.5},
		{X: -0.3, Y: -0.2, Z: 0.4}, {X: 0.3, Y: -0.2, Z: 0.4},
		{X: 0.2, Y: 0.3, Z: -0.3}, {X: -0.2, Y: 0.3, Z: -0.3},
	}
	rvec := r3.Vector{X: 0.3, Y: -0.2, Z: 0.1}
	tvec := r3.Vector{X: 0.2, Y: -0.1, Z: 3.0}
	image := projectObject(t, cam, rvec, tvec, object)

	sol, err := SolvePooled(cam, object, image)
	if err != nil {
		t.Fatalf("pooled solve failed: %v", err)
	}
	checkPooledSolution(t, sol, rvec, tvec)
}

func TestSolvePooledPlanar(t *testing.T) {
	cam := testCamera(t)
	// Coplanar pool on a tilted plane, the way two coplanar wall targets
	// pool together.
	base := []Point2{
		{X: -0.4, Y: -0.4}, {X: 0.4, Y: -0.4}, {X: 0.4, Y: 0.4}, {X: -0.4, Y: 0.4},
		{X: 0.8, Y: -0.4}, {X: 1.6, Y: -0.4}, {X: 1.6, Y: 0.4}, {X: 0.8, Y: 0.4},
	}
	object := make([]r3.Vector, len(base))
	for i, p := range base {
		object[i] = r3.Vector{X: p.X, Y: p.Y, Z: 0.3*p.X + 0.1}
	}
	rvec := r3.Vector{X: 0.2, Y: 0.15, Z: -0.1}
	tvec := r3.Vector{X: -0.3, Y: 0.1, Z: 4.0}
	image := projectObject(t, cam, rvec, tvec, object)

	sol, err := SolvePooled(cam, object, image)
	if err != nil {
		t.Fatalf("planar pooled solve failed: %v", err)
	}
	checkPooledSolution(t, sol, rvec, tvec)
}

func TestSolvePooledDegenerate(t *testing.T) {
	cam := testCamera(t)

	// Collinear object points carry no orientation information.
	line := []r3.Vector{
		{X: 0}, {X: 0.1}, {X: 0.2}, {X: 0.3}, {X: 0.4}, {X: 0.5},
	}
	image := projectObject(t, cam, r3.Vector{}, r3.Vector{Z: 2}, line)
	if _, err := SolvePooled(cam, line, image); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("collinear pool: got %v, want ErrDegenerate", err)
	}

	// Mismatched or short input is rejected before any math runs.
	if _, err := SolvePooled(cam, line[:3], image[:3]); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("short pool: got %v, want ErrDegenerate", err)
	}
	if _, err := SolvePooled(cam, line, image[:4]); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("mismatched pool: got %v, want ErrDegenerate", err)
	}
}
