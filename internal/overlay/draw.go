package overlay

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Draw renders the overlay onto img in place. The image is expected to already
// be in display space (mirrored and scaled to match the Mapper).
func Draw(img *gocv.Mat, o Overlay) {
	if img == nil || img.Empty() {
		return
	}

	for _, s := range o.Segments {
		gocv.Line(img, toImagePoint(s.From), toImagePoint(s.To), ColorHigh, 2)
	}

	for _, m := range o.Markers {
		center := toImagePoint(m.Point)
		// Halo, then filled marker with a white outline.
		gocv.Circle(img, center, m.Radius+4, m.Color, 1)
		gocv.Circle(img, center, m.Radius, m.Color, -1)
		gocv.Circle(img, center, m.Radius, white, 2)
	}
}

// Mirror flips img horizontally in place so it matches mirrored overlay
// coordinates.
func Mirror(img *gocv.Mat) {
	if img == nil || img.Empty() {
		return
	}
	gocv.Flip(*img, img, 1)
}

func toImagePoint(p Point) image.Point {
	return image.Point{X: int(p.X + 0.5), Y: int(p.Y + 0.5)}
}
