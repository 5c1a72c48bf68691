// Package disparity computes and refines per-pixel stereo disparity.
//
// Disparity values are stored as unsigned fixed point with 12 integer bits
// and 4 fractional bits: divide by 16 for the disparity in pixels. Each
// field designates its own "unknown" value, recomputed per frame as the
// field's global minimum. The minimum value is what the block matcher
// writes where no reliable match was found, so it doubles as the sentinel.
package disparity

import "math"

// FractionalBits is the number of fractional bits in a stored disparity.
const FractionalBits = 4

// One is the fixed-point representation of a disparity of one pixel.
const One = 1 << FractionalBits

// Map is a per-pixel fixed-point disparity field.
type Map struct {
	W, H int
	Pix  []uint16
}

// NewMap returns a zeroed disparity field of the given dimensions.
func NewMap(w, h int) *Map {
	return &Map{W: w, H: h, Pix: make([]uint16, w*h)}
}

// Clone returns a deep copy of the field.
func (m *Map) Clone() *Map {
	out := &Map{W: m.W, H: m.H, Pix: make([]uint16, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// MinMax scans the whole field and returns its minimum and maximum values.
// The minimum is the field's unknown sentinel. The values hold for this
// frame only and must not be reused across frames.
func (m *Map) MinMax() (lo, hi uint16) {
	if len(m.Pix) == 0 {
		return 0, 0
	}
	lo, hi = m.Pix[0], m.Pix[0]
	for _, v := range m.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Fill sets every pixel to v.
func (m *Map) Fill(v uint16) {
	for i := range m.Pix {
		m.Pix[i] = v
	}
}

// Pixels converts a raw fixed-point value to a disparity in pixels.
func Pixels(raw uint16) float64 {
	return float64(raw) / float64(One)
}

// FromPixels converts a disparity in pixels to the fixed-point encoding,
// rounding to the nearest representable value.
func FromPixels(d float64) uint16 {
	raw := math.Round(d * One)
	if raw < 0 {
		return 0
	}
	if raw > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(raw)
}
