package imaging

import (
	"image"
	"math"
)

// Sobel computes per-pixel gradient magnitude and the quantized gradient
// direction (0..3: horizontal, diag up, vertical, diag down) for the given
// grayscale image. Border samples are edge-clamped.
func Sobel(src *image.Gray) (mag []float32, dir []uint8) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	mag = make([]float32, w*h)
	dir = make([]uint8, w*h)

	at := func(x, y int) int {
		return int(src.Pix[clampIndex(y, h)*src.Stride+clampIndex(x, w)])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)

			i := y*w + x
			mag[i] = float32(math.Hypot(float64(gx), float64(gy)))
			dir[i] = quantizeAngle(gx, gy)
		}
	}
	return mag, dir
}

// quantizeAngle buckets the gradient angle into one of four directions used
// by non-maximum suppression.
func quantizeAngle(gx, gy int) uint8 {
	if gx == 0 && gy == 0 {
		return 0
	}
	ang := math.Atan2(float64(gy), float64(gx)) * 180 / math.Pi
	if ang < 0 {
		ang += 180
	}
	switch {
	case ang < 22.5 || ang >= 157.5:
		return 0 // gradient points horizontally; edge runs vertically
	case ang < 67.5:
		return 1
	case ang < 112.5:
		return 2
	default:
		return 3
	}
}

// DetectEdges runs a Canny-style detector over the image: Sobel gradients,
// non-maximum suppression, then double-threshold hysteresis. Pixels with
// magnitude above high seed edges; pixels above low extend a seeded edge.
// The returned mask uses 255 for edge pixels and 0 elsewhere.
func DetectEdges(src *image.Gray, low, high float64) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	mag, dir := Sobel(src)

	// Non-maximum suppression: keep only local ridge maxima along the
	// gradient direction.
	thin := make([]float32, w*h)
	sample := func(x, y int) float32 {
		if x < 0 || x >= w || y < 0 || y >= h {
			return 0
		}
		return mag[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			var a, b float32
			switch dir[i] {
			case 0:
				a, b = sample(x-1, y), sample(x+1, y)
			case 1:
				a, b = sample(x+1, y-1), sample(x-1, y+1)
			case 2:
				a, b = sample(x, y-1), sample(x, y+1)
			default:
				a, b = sample(x-1, y-1), sample(x+1, y+1)
			}
			if mag[i] >= a && mag[i] >= b {
				thin[i] = mag[i]
			}
		}
	}

	// Hysteresis: seed from strong pixels, then flood into weak neighbors.
	const (
		weak   = 1
		strong = 2
	)
	state := make([]uint8, w*h)
	stack := make([]int, 0, w*h/8)
	for i, v := range thin {
		if float64(v) >= high {
			state[i] = strong
			stack = append(stack, i)
		} else if float64(v) >= low {
			state[i] = weak
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	for i, s := range state {
		if s == strong {
			out.Pix[(i/w)*out.Stride+i%w] = 255
		}
	}
	return out
}
