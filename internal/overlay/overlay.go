// Package overlay renders pipeline intermediates as color images for
// inspection. Everything here is diagnostic output; nothing feeds back into
// processing.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"score-dewarp/internal/features"
	"score-dewarp/internal/segment"
	"score-dewarp/internal/warp"
	"score-dewarp/pkg/colorutil"
)

// labelColors maps each mask label to its overlay color.
var labelColors = map[segment.Label]color.RGBA{
	segment.Background: colorutil.White,
	segment.Staff:      colorutil.Blue,
	segment.Ink:        colorutil.Black,
	segment.Margin:     colorutil.Magenta,
}

// MaskImage renders a class mask with one color per label.
func MaskImage(mask *segment.ClassMask) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			out.SetRGBA(x, y, labelColors[mask.At(x, y)])
		}
	}
	return out
}

// CurveImage draws extracted curves over the page. Staff curves render green,
// boundary curves cyan.
func CurveImage(gray *image.Gray, set *features.CurveSet) *image.RGBA {
	b := gray.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), gray, b.Min, draw.Src)
	for _, c := range set.Staff {
		drawCurve(out, c, colorutil.Green)
	}
	for _, c := range set.Boundary {
		drawCurve(out, c, colorutil.Cyan)
	}
	return out
}

// FieldImage renders the displacement magnitude of a deformation field as a
// heat map, scaled so maxDisp pixels of displacement saturates the ramp.
func FieldImage(field *warp.Field, maxDisp float64) *image.RGBA {
	if maxDisp <= 0 {
		maxDisp = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, field.Width, field.Height))
	for y := 0; y < field.Height; y++ {
		for x := 0; x < field.Width; x++ {
			sx, sy := field.SourceCoord(float64(x), float64(y))
			d := math.Hypot(sx-float64(x), sy-float64(y))
			out.SetRGBA(x, y, colorutil.Heat(d/maxDisp))
		}
	}
	return out
}

// drawCurve connects consecutive curve points with thin line segments.
// The point order within a curve follows its primary axis, so segments
// never double back.
func drawCurve(out *image.RGBA, c features.Curve, col color.RGBA) {
	pts := c.Points
	for i := 1; i < len(pts); i++ {
		drawSegment(out, pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y, col)
	}
	if len(pts) == 1 {
		setPx(out, int(math.Round(pts[0].X)), int(math.Round(pts[0].Y)), col)
	}
}

func drawSegment(out *image.RGBA, x0, y0, x1, y1 float64, col color.RGBA) {
	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
	if steps < 1 {
		steps = 1
	}
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		setPx(out, int(math.Round(x0+t*(x1-x0))), int(math.Round(y0+t*(y1-y0))), col)
	}
}

func setPx(out *image.RGBA, x, y int, col color.RGBA) {
	if image.Pt(x, y).In(out.Bounds()) {
		out.SetRGBA(x, y, col)
	}
}
