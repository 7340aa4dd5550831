// Package imaging provides image loading, grayscale conversion, and
// conversions between image.Image and gocv.Mat.
package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// ToGray converts any image to 8-bit grayscale. If the input is already a
// *image.Gray anchored at the origin it is returned as-is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			gray.SetGray(x, y, c.(color.Gray))
		}
	}
	return gray
}

// GrayToMat converts a grayscale image to a single-channel 8-bit Mat.
// The caller owns the returned Mat and must Close it.
func GrayToMat(gray *image.Gray) gocv.Mat {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mat.SetUCharAt(y, x, gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
		}
	}
	return mat
}

// MatToGray converts a single-channel 8-bit Mat back to *image.Gray.
func MatToGray(mat gocv.Mat) (*image.Gray, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("mat is empty")
	}
	if mat.Channels() != 1 {
		return nil, fmt.Errorf("expected single-channel mat, got %d channels", mat.Channels())
	}
	h, w := mat.Rows(), mat.Cols()
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray.SetGray(x, y, color.Gray{Y: mat.GetUCharAt(y, x)})
		}
	}
	return gray, nil
}

// ImageToMat converts a Go image.Image to a gocv.Mat in BGR format.
func ImageToMat(img image.Image) gocv.Mat {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat
}

// ResizeGray resamples a grayscale image to the given extent using bilinear
// interpolation. Intended for feeding classifiers with fixed granularity.
func ResizeGray(gray *image.Gray, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid resize extent %dx%d", width, height)
	}
	src := GrayToMat(gray)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)
	return MatToGray(dst)
}
