// Package imaging provides the small set of grayscale raster operations the
// disparity refinement pipeline is built from: box blur, Sobel gradients, a
// hysteresis edge detector, a median filter and a preview colormap.
package imaging

import (
	"image"
)

// Luma converts an RGBA image to grayscale using Rec.601 weights.
func Luma(src *image.RGBA) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			i := x * 4
			Y := 0.299*float64(row[i+0]) + 0.587*float64(row[i+1]) + 0.114*float64(row[i+2])
			dst[x] = uint8(Y + 0.5)
		}
	}
	return out
}

// BoxBlur applies a separable box blur with the given radius. A radius below
// one returns the source unchanged. Samples outside the image are clamped to
// the nearest edge pixel.
func BoxBlur(src *image.Gray, radius int) *image.Gray {
	if radius < 1 {
		return src
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	tmp := image.NewGray(image.Rect(0, 0, w, h))
	dst := image.NewGray(image.Rect(0, 0, w, h))
	win := 2*radius + 1

	// Horizontal pass with a running sum.
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		out := tmp.Pix[y*tmp.Stride : y*tmp.Stride+w]
		sum := 0
		for x := -radius; x <= radius; x++ {
			sum += int(row[clampIndex(x, w)])
		}
		for x := 0; x < w; x++ {
			out[x] = uint8(sum / win)
			sum += int(row[clampIndex(x+radius+1, w)]) - int(row[clampIndex(x-radius, w)])
		}
	}

	// Vertical pass.
	for x := 0; x < w; x++ {
		sum := 0
		for y := -radius; y <= radius; y++ {
			sum += int(tmp.Pix[clampIndex(y, h)*tmp.Stride+x])
		}
		for y := 0; y < h; y++ {
			dst.Pix[y*dst.Stride+x] = uint8(sum / win)
			sum += int(tmp.Pix[clampIndex(y+radius+1, h)*tmp.Stride+x])
			sum -= int(tmp.Pix[clampIndex(y-radius, h)*tmp.Stride+x])
		}
	}
	return dst
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
