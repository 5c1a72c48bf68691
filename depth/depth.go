// Package depth converts corrected disparity fields into metric depth maps
// for a converging (toed-in) stereo rig.
package depth

import (
	"image"
	"image/color"
	"math"

	"n3dsdepth/appconfig"
	"n3dsdepth/disparity"
)

// Converter maps disparity to depth using the fixed rig geometry. For a
// toed-in rig the optical axes cross at the convergence distance, so
// baseline/convergence is the disparity-equivalent correction for the
// vergence angle:
//
//	depth_mm = 1000 * | baseline / (baseline/convergence - d/focal) |
//
// Depth is written as unsigned 16-bit millimeters with 0 meaning unknown.
type Converter struct {
	baseline    float64
	focal       float64
	convergence float64
}

// NewConverter builds a converter for the given rig geometry.
func NewConverter(rig appconfig.RigConfig) *Converter {
	return &Converter{
		baseline:    rig.BaselineM,
		focal:       rig.FocalPx,
		convergence: rig.ConvergenceM,
	}
}

// ToDepth converts a disparity field to a depth map. Pixels holding the
// field's per-frame sentinel map to 0. Depths that diverge (the denominator
// vanishes near the convergence-equivalent disparity) or exceed 65535 mm
// also map to 0: out-of-range means unknown, never a wrapped or clamped
// value.
func (c *Converter) ToDepth(m *disparity.Map) *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, m.W, m.H))
	sentinel, _ := m.MinMax()
	vergence := c.baseline / c.convergence

	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			raw := m.Pix[y*m.W+x]
			if raw == sentinel {
				continue
			}
			d := disparity.Pixels(raw)
			mm := 1000 * math.Abs(c.baseline/(vergence-d/c.focal))
			if math.IsNaN(mm) || math.IsInf(mm, 0) || mm >= math.MaxUint16 {
				continue
			}
			out.SetGray16(x, y, color.Gray16{Y: uint16(mm + 0.5)})
		}
	}
	return out
}

// DepthAt returns the depth in millimeters for a single raw disparity value
// given the field's sentinel. Exposed for callers that need spot values
// without building a full map.
func (c *Converter) DepthAt(raw, sentinel uint16) uint16 {
	if raw == sentinel {
		return 0
	}
	d := disparity.Pixels(raw)
	mm := 1000 * math.Abs(c.baseline/(c.baseline/c.convergence-d/c.focal))
	if math.IsNaN(mm) || math.IsInf(mm, 0) || mm >= math.MaxUint16 {
		return 0
	}
	return uint16(mm + 0.5)
}
