package disparity

import (
	"fmt"
	"image"

	"n3dsdepth/appconfig"
	"n3dsdepth/imaging"
	"n3dsdepth/video"
)

// Engine runs the block matcher and then cleans the raw field up. Raw
// block-matching output suffers from "ballooning": a foreground object's
// disparity bleeds past its true silhouette into the background. A genuine
// object-boundary disparity jump coincides with a color edge, so disparity
// edges with no color-edge support mark over-extension, and the region they
// bound is filled with the unknown value and left for the median cleanup.
type Engine struct {
	matcher Matcher

	medianWindow int
	colorLow     float64
	dispLow      float64
}

// NewEngine builds an engine around the given matcher, taking the
// refinement tuning from cfg.
func NewEngine(m Matcher, cfg appconfig.OutputConfig) *Engine {
	return &Engine{
		matcher:      m,
		medianWindow: cfg.MedianWindow,
		colorLow:     cfg.ColorEdgeThreshold,
		dispLow:      cfg.DisparityEdgeThreshold,
	}
}

// Compute matches the stereo pair and returns the corrected disparity
// field. The left frame is the reference: output disparities are in left
// image coordinates, and the left color image supplies the trusted edge
// signal for artifact removal.
func (e *Engine) Compute(left, right *video.Frame) (*Map, error) {
	m, err := e.matcher.Match(left.Gray, right.Gray)
	if err != nil {
		return nil, fmt.Errorf("block matching failed: %w", err)
	}

	// Both extremes are per-frame values; the minimum doubles as the
	// unknown sentinel.
	lo, hi := m.MinMax()

	// Color edges: blur away sensor noise first, then detect with low
	// thresholds. Color edges are the trusted signal, so the detector is
	// deliberately sensitive.
	colorEdges := imaging.DetectEdges(
		imaging.BoxBlur(imaging.Luma(left.Color), 1),
		e.colorLow, 3*e.colorLow)

	// Disparity edges: rescale into 8 bits, blur lightly, detect with high
	// thresholds. The raw field is noisy; a low threshold here produces
	// unusable results.
	dispEdges := imaging.DetectEdges(
		imaging.BoxBlur(rescale8(m, lo, hi), 1),
		e.dispLow, 3*e.dispLow)

	deflate(m, dispEdges, colorEdges, lo)

	// The row-wise scan leaves thin one-pixel artifact lines; a median
	// rejects them outright where a mean would blend them in.
	m.Pix = imaging.MedianFilterU16(m.Pix, m.W, m.H, e.medianWindow)
	return m, nil
}

// rescale8 maps the field affinely into an 8-bit image: sentinel at zero,
// maximum near 255.
func rescale8(m *Map, lo, hi uint16) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.W, m.H))
	scale := 255.0 / (float64(hi) - float64(lo) + 1)
	for y := 0; y < m.H; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+m.W]
		for x := 0; x < m.W; x++ {
			row[x] = uint8(float64(m.Pix[y*m.W+x]-lo) * scale)
		}
	}
	return out
}

// deflate removes unsupported disparity edges row by row. Each row is
// scanned left to right with an on-edge flag:
//
//   - entering a disparity edge without color-edge support marks the edge
//     pixel unknown and walks leftward, un-knowing pixels until the
//     previous disparity or color edge;
//   - leaving a disparity edge walks rightward, un-knowing pixels up to
//     (not including) the next disparity or color edge.
//
// The fill removes the matcher's over-extension on both sides of the
// unsupported edge. Edge pixels themselves are never overwritten by the
// walks.
func deflate(m *Map, dispEdges, colorEdges *image.Gray, unknown uint16) {
	w, h := m.W, m.H
	for y := 0; y < h; y++ {
		dRow := dispEdges.Pix[y*dispEdges.Stride : y*dispEdges.Stride+w]
		cRow := colorEdges.Pix[y*colorEdges.Stride : y*colorEdges.Stride+w]
		pix := m.Pix[y*w : y*w+w]

		onEdge := false
		for x := 0; x < w; x++ {
			switch {
			case dRow[x] != 0 && !onEdge:
				if cRow[x] == 0 {
					pix[x] = unknown
				}
				for j := x - 1; j >= 0; j-- {
					if dRow[j] != 0 || cRow[j] != 0 {
						break
					}
					pix[j] = unknown
				}
				onEdge = true

			case dRow[x] == 0 && onEdge:
				for j := x; j < w; j++ {
					if dRow[j] != 0 || cRow[j] != 0 {
						break
					}
					pix[j] = unknown
				}
				onEdge = false
			}
		}
	}
}
