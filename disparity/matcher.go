package disparity

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"

	"n3dsdepth/appconfig"
)

// Matcher finds, for each pixel in the left image, the horizontal offset of
// the best-matching block in the right image. Different eras of this tool
// used different matching strategies, so the matcher is a swappable value
// selected by configuration rather than a compiled-in algorithm.
type Matcher interface {
	Match(left, right *image.Gray) (*Map, error)
}

// NewMatcher builds the matcher selected by cfg. The configuration should
// already have passed appconfig validation.
func NewMatcher(cfg appconfig.MatcherConfig) (Matcher, error) {
	block := func(bs int) *BlockMatcher {
		return &BlockMatcher{
			BlockSize:        bs,
			MinDisparity:     cfg.MinDisparity,
			NumDisparities:   cfg.NumDisparities,
			TextureThreshold: cfg.TextureThreshold,
			PreFilterCap:     cfg.PreFilterCap,
		}
	}

	switch cfg.Algorithm {
	case "block":
		return block(cfg.BlockSizes[0]), nil
	case "multiblock":
		mb := &MultiBlock{}
		for _, bs := range cfg.BlockSizes {
			mb.Matchers = append(mb.Matchers, block(bs))
		}
		return mb, nil
	case "pyramid":
		return &Pyramid{Full: block(cfg.BlockSizes[0])}, nil
	default:
		return nil, fmt.Errorf("unknown matcher algorithm %q", cfg.Algorithm)
	}
}

const invalidCost = math.MaxUint32

// BlockMatcher is a sum-of-absolute-differences block matcher with a
// horizontal-Sobel prefilter, subpixel interpolation and a texture
// threshold, matching the tuning of the original rig: the input images are
// noisy, so weak matches are dropped rather than kept.
type BlockMatcher struct {
	// BlockSize is the matching window; must be odd. A larger block gets
	// more information but loses fine detail.
	BlockSize int

	// MinDisparity shifts the search window, pushing the images closer
	// together. Objects closer than the equivalent distance won't match.
	MinDisparity int

	// NumDisparities is the search range beyond MinDisparity.
	NumDisparities int

	// TextureThreshold drops matches whose window carries too little
	// gradient energy to be trustworthy.
	TextureThreshold int

	// PreFilterCap clamps the prefilter response to +/-cap.
	PreFilterCap int
}

// Unknown returns the sentinel this matcher writes where no reliable match
// was found. It is one full pixel below the search floor, so it is always
// the minimum value of any field the matcher produces.
func (bm *BlockMatcher) Unknown() uint16 {
	return uint16((bm.MinDisparity - 1) * One)
}

// Match computes the disparity field for a rectified stereo pair. Both
// images must have identical dimensions.
func (bm *BlockMatcher) Match(left, right *image.Gray) (*Map, error) {
	w, h := left.Bounds().Dx(), left.Bounds().Dy()
	if rw, rh := right.Bounds().Dx(), right.Bounds().Dy(); rw != w || rh != h {
		return nil, fmt.Errorf("stereo pair dimensions differ: %dx%d vs %dx%d", w, h, rw, rh)
	}
	if bm.BlockSize < 5 || bm.BlockSize%2 == 0 {
		return nil, fmt.Errorf("block size must be odd and >= 5; got %d", bm.BlockSize)
	}

	unknown := bm.Unknown()
	m := NewMap(w, h)
	m.Fill(unknown)

	r := bm.BlockSize / 2
	if w < bm.BlockSize || h < bm.BlockSize {
		return m, nil
	}

	pl := prefilterXSobel(left, bm.PreFilterCap)
	pr := prefilterXSobel(right, bm.PreFilterCap)

	// Texture energy per window: sum of absolute prefilter deviations.
	absDev := make([]uint8, w*h)
	cap8 := uint8(bm.PreFilterCap)
	for i, v := range pl {
		if v >= cap8 {
			absDev[i] = v - cap8
		} else {
			absDev[i] = cap8 - v
		}
	}
	sat := make([]uint32, (w+1)*(h+1))
	texture := make([]uint32, w*h)
	integrate(absDev, w, h, sat)
	windowSums(sat, w, h, r, texture)

	bestCost := make([]uint32, w*h)
	cLo := make([]uint32, w*h)
	cHi := make([]uint32, w*h)
	bestD := make([]int32, w*h)
	for i := range bestCost {
		bestCost[i] = invalidCost
		cLo[i] = invalidCost
		cHi[i] = invalidCost
		bestD[i] = -1
	}

	diff := make([]uint8, w*h)
	cost := make([]uint32, w*h)
	prev := make([]uint32, w*h)

	for d := bm.MinDisparity; d < bm.MinDisparity+bm.NumDisparities; d++ {
		if d >= w {
			break
		}
		// Absolute prefiltered difference at this shift; undefined left of
		// the shift.
		for y := 0; y < h; y++ {
			row := y * w
			for x := 0; x < d; x++ {
				diff[row+x] = 0
			}
			for x := d; x < w; x++ {
				a, b := pl[row+x], pr[row+x-d]
				if a >= b {
					diff[row+x] = a - b
				} else {
					diff[row+x] = b - a
				}
			}
		}
		integrate(diff, w, h, sat)
		windowSums(sat, w, h, r, cost)

		for y := r; y < h-r; y++ {
			for x := r + d; x < w-r; x++ {
				i := y*w + x
				c := cost[i]
				switch {
				case c < bestCost[i]:
					bestCost[i] = c
					bestD[i] = int32(d)
					if d > bm.MinDisparity && x-r >= d-1 {
						cLo[i] = prev[i]
					} else {
						cLo[i] = invalidCost
					}
					cHi[i] = invalidCost
				case bestD[i] == int32(d-1):
					cHi[i] = c
				}
			}
		}
		prev, cost = cost, prev
	}

	for i := range m.Pix {
		d := bestD[i]
		if d < 0 || texture[i] < uint32(bm.TextureThreshold) {
			continue
		}
		raw := int32(d) * One

		// Subpixel refinement: fit a parabola through the costs at d-1, d
		// and d+1 and take its vertex.
		lo, hi, best := cLo[i], cHi[i], bestCost[i]
		if lo != invalidCost && hi != invalidCost {
			denom := int64(lo) + int64(hi) - 2*int64(best)
			if denom > 0 {
				delta := float64(int64(lo)-int64(hi)) / (2 * float64(denom))
				if delta > 0.5 {
					delta = 0.5
				} else if delta < -0.5 {
					delta = -0.5
				}
				raw += int32(math.Round(delta * One))
			}
		}
		m.Pix[i] = uint16(raw)
	}
	return m, nil
}

// prefilterXSobel runs a horizontal Sobel over the image, clamps the
// response to +/-cap and recenters it at cap, mirroring the prefilter the
// original matcher was tuned with.
func prefilterXSobel(src *image.Gray, cap int) []uint8 {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := make([]uint8, w*h)

	at := func(x, y int) int {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return int(src.Pix[y*src.Stride+x])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := at(x+1, y-1) - at(x-1, y-1) +
				2*(at(x+1, y)-at(x-1, y)) +
				at(x+1, y+1) - at(x-1, y+1)
			if gx < -cap {
				gx = -cap
			} else if gx > cap {
				gx = cap
			}
			out[y*w+x] = uint8(gx + cap)
		}
	}
	return out
}

// integrate fills sat with the summed-area table of a w x h byte field.
// sat has (w+1) x (h+1) entries with a zero top row and left column.
func integrate(src []uint8, w, h int, sat []uint32) {
	for x := 0; x <= w; x++ {
		sat[x] = 0
	}
	for y := 1; y <= h; y++ {
		row := y * (w + 1)
		prev := row - (w + 1)
		sat[row] = 0
		var lineSum uint32
		for x := 1; x <= w; x++ {
			lineSum += uint32(src[(y-1)*w+x-1])
			sat[row+x] = sat[prev+x] + lineSum
		}
	}
}

// windowSums writes, for every pixel whose (2r+1)-square window lies fully
// inside the field, the window sum from the summed-area table. Pixels whose
// window falls off the field get zero.
func windowSums(sat []uint32, w, h, r int, out []uint32) {
	for i := range out {
		out[i] = 0
	}
	stride := w + 1
	for y := r; y < h-r; y++ {
		y0 := (y - r) * stride
		y1 := (y + r + 1) * stride
		for x := r; x < w-r; x++ {
			x0 := x - r
			x1 := x + r + 1
			out[y*w+x] = sat[y1+x1] - sat[y1+x0] - sat[y0+x1] + sat[y0+x0]
		}
	}
}

// MultiBlock runs block matchers with progressively larger block sizes and
// combines them: the result from the smallest block is kept wherever it
// gives information, and larger blocks fill in the pixels it left unknown.
// Smaller blocks capture fine edge detail but fail on low-texture surfaces;
// larger blocks handle low texture but have poor resolution.
type MultiBlock struct {
	Matchers []*BlockMatcher
}

// Match merges the per-block-size fields, preferring the finer result.
func (mb *MultiBlock) Match(left, right *image.Gray) (*Map, error) {
	if len(mb.Matchers) == 0 {
		return nil, fmt.Errorf("multiblock matcher has no block sizes")
	}
	out, err := mb.Matchers[0].Match(left, right)
	if err != nil {
		return nil, err
	}
	outUnknown, _ := out.MinMax()

	for _, bm := range mb.Matchers[1:] {
		tmp, err := bm.Match(left, right)
		if err != nil {
			return nil, err
		}
		tmpUnknown, _ := tmp.MinMax()
		// Merge only where the finer matcher had nothing.
		for i, v := range tmp.Pix {
			if out.Pix[i] == outUnknown && v != tmpUnknown {
				out.Pix[i] = v
			}
		}
	}
	return out, nil
}

// Pyramid matches at full resolution, then fills the pixels left unknown
// from a half-resolution pass. The coarse pass sees twice the effective
// block size, so it behaves like a cheap low-texture fallback.
type Pyramid struct {
	Full *BlockMatcher
}

// Match runs the full-resolution pass and the half-resolution fill.
func (p *Pyramid) Match(left, right *image.Gray) (*Map, error) {
	out, err := p.Full.Match(left, right)
	if err != nil {
		return nil, err
	}
	w, h := out.W, out.H
	hw, hh := w/2, h/2
	if hw < p.Full.BlockSize || hh < p.Full.BlockSize {
		return out, nil
	}
	outUnknown, _ := out.MinMax()

	halfL := toGray(resize.Resize(uint(hw), uint(hh), left, resize.Bilinear))
	halfR := toGray(resize.Resize(uint(hw), uint(hh), right, resize.Bilinear))

	coarse := &BlockMatcher{
		BlockSize:        halveOdd(p.Full.BlockSize),
		MinDisparity:     maxInt(1, p.Full.MinDisparity/2),
		NumDisparities:   maxInt(1, (p.Full.NumDisparities+1)/2),
		TextureThreshold: p.Full.TextureThreshold / 4,
		PreFilterCap:     p.Full.PreFilterCap,
	}
	half, err := coarse.Match(halfL, halfR)
	if err != nil {
		return nil, err
	}
	halfUnknown, _ := half.MinMax()

	for y := 0; y < h; y++ {
		hy := minInt(y/2, hh-1)
		for x := 0; x < w; x++ {
			i := y*w + x
			if out.Pix[i] != outUnknown {
				continue
			}
			hv := half.Pix[hy*hw+minInt(x/2, hw-1)]
			if hv == halfUnknown {
				continue
			}
			// Disparity scales with resolution.
			v := uint32(hv) * 2
			if v > math.MaxUint16 {
				v = math.MaxUint16
			}
			out.Pix[i] = uint16(v)
		}
	}
	return out, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

func halveOdd(n int) int {
	n = n / 2
	if n%2 == 0 {
		n++
	}
	if n < 5 {
		n = 5
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
