package imaging

import "sort"

// MedianFilterU16 applies a window x window median filter to a w x h field
// of uint16 samples and returns the filtered copy. The window must be odd.
// Samples outside the field are clamped to the nearest edge, so border
// pixels still see a full window. Median, not mean: erroneous values are
// outliers to reject, not samples to blend.
func MedianFilterU16(pix []uint16, w, h, window int) []uint16 {
	if window < 1 || window%2 == 0 {
		panic("imaging: median window must be odd")
	}
	out := make([]uint16, len(pix))
	if window == 1 || w == 0 || h == 0 {
		copy(out, pix)
		return out
	}

	r := window / 2
	buf := make([]uint16, 0, window*window)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf = buf[:0]
			for dy := -r; dy <= r; dy++ {
				yy := clampIndex(y+dy, h)
				for dx := -r; dx <= r; dx++ {
					xx := clampIndex(x+dx, w)
					buf = append(buf, pix[yy*w+xx])
				}
			}
			sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
			out[y*w+x] = buf[len(buf)/2]
		}
	}
	return out
}
