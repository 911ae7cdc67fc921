package pipeline

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

var overlayColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// AnnotateFrame returns a copy of the frame with each observed tag's
// corner polygon drawn on it. The input frame is never modified.
func AnnotateFrame(frame image.Image, observations []FrameObservation) image.Image {
	bounds := frame.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, frame, bounds.Min, draw.Src)
	for _, obs := range observations {
		for i := range obs.Corners {
			a := obs.Corners[i]
			b := obs.Corners[(i+1)%len(obs.Corners)]
			drawLine(rgba, int(a.X), int(a.Y), int(b.X), int(b.Y))
		}
	}
	return rgba
}

// drawLine rasterizes a segment by stepping along its longer axis.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int) {
	bounds := img.Bounds()
	steps := int(math.Max(math.Abs(float64(x1-x0)), math.Abs(float64(y1-y0))))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(t*float64(x1-x0))
		y := y0 + int(t*float64(y1-y0))
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, overlayColor)
		}
	}
}
