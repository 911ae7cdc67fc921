package pipeline

import (
	"image"
	"testing"

	"github.com/SimonPBoeckner/Vision/pnp"
)

func TestAnnotateFrameDrawsCorners(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	obs := []FrameObservation{{
		TagID: 1,
		Corners: [4]pnp.Point2{
			{X: 20, Y: 20}, {X: 80, Y: 20}, {X: 80, Y: 80}, {X: 20, Y: 80},
		},
	}}

	annotated := AnnotateFrame(frame, obs)
	rgba, ok := annotated.(*image.RGBA)
	if !ok {
		t.Fatalf("annotated frame has type %T", annotated)
	}
	if rgba == frame {
		t.Fatal("annotation must not modify the capture frame")
	}

	// Corner pixels and edge midpoints sit on the drawn polygon.
	for _, p := range []image.Point{{20, 20}, {80, 20}, {50, 20}, {80, 50}} {
		if got := rgba.RGBAAt(p.X, p.Y); got != overlayColor {
			t.Errorf("pixel %v = %v, want the overlay color", p, got)
		}
	}
	// The interior stays untouched.
	if got := rgba.RGBAAt(50, 50); got == overlayColor {
		t.Error("interior pixel should not be drawn")
	}
	// The source frame stays black.
	if got := frame.RGBAAt(20, 20); got == overlayColor {
		t.Error("source frame was mutated")
	}
}
