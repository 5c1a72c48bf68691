package depth

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"n3dsdepth/appconfig"
	"n3dsdepth/disparity"
)

// TestToDepthMapping verifies sentinel, in-range and diverging disparities
// all land where they should in one small field.
func TestToDepthMapping(t *testing.T) {
	c := NewConverter(appconfig.Default().Rig)

	m := disparity.NewMap(2, 2)
	// Minimum value 16 is this frame's sentinel.
	m.Pix[0] = 16   // sentinel
	m.Pix[1] = 56   // 3.5 px, a normal scene disparity
	m.Pix[2] = 1265 // ~79 px, right at the vergence singularity
	m.Pix[3] = 16   // sentinel again

	out := c.ToDepth(m)

	if got := out.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("sentinel depth = %d, want 0", got)
	}
	if got := out.Gray16At(1, 1).Y; got != 0 {
		t.Errorf("sentinel depth = %d, want 0", got)
	}

	// 1000 * |0.035 / (0.035/0.25 - 3.5/565)| = 261.6 mm.
	got := out.Gray16At(1, 0).Y
	if got < 261 || got > 263 {
		t.Errorf("depth for 3.5 px = %d, want ~262", got)
	}

	// The denominator vanishes near 79.1 px; the result blows past the
	// 16-bit range and must come back as unknown.
	if got := out.Gray16At(0, 1).Y; got != 0 {
		t.Errorf("diverging depth = %d, want 0", got)
	}
}

// TestDepthAtNegativeDenominator verifies objects closer than the
// convergence distance still produce a positive depth.
func TestDepthAtNegativeDenominator(t *testing.T) {
	c := NewConverter(appconfig.Default().Rig)

	// 100 px disparity puts the denominator well below zero.
	got := c.DepthAt(1600, 0)
	if got < 945 || got > 947 {
		t.Errorf("depth for 100 px = %d, want ~946", got)
	}
}

// TestDepthAtSentinel verifies the sentinel lookup shortcut.
func TestDepthAtSentinel(t *testing.T) {
	c := NewConverter(appconfig.Default().Rig)
	if got := c.DepthAt(752, 752); got != 0 {
		t.Errorf("DepthAt(sentinel) = %d, want 0", got)
	}
}

// TestToDepthUniformField verifies the known limitation that a uniform
// field is all sentinel: every pixel equals the minimum, so everything maps
// to unknown.
func TestToDepthUniformField(t *testing.T) {
	c := NewConverter(appconfig.Default().Rig)
	m := disparity.NewMap(4, 4)
	m.Fill(800)

	out := c.ToDepth(m)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got := out.Gray16At(x, y).Y; got != 0 {
				t.Fatalf("depth at (%d,%d) = %d, want 0", x, y, got)
			}
		}
	}
}

// TestToDepthFullFrame verifies the conversion over a full 640x480 field:
// a uniform interior disparity with a sentinel border must produce the
// exact formula value at every interior pixel and zero on the border.
func TestToDepthFullFrame(t *testing.T) {
	rig := appconfig.Default().Rig
	c := NewConverter(rig)

	const w, h = 640, 480
	const sentinel = 752 // (48-1) px in fixed point, the matcher's unknown
	const interior = 800 // 50 px

	m := disparity.NewMap(w, h)
	m.Fill(sentinel)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			m.Pix[y*w+x] = interior
		}
	}

	d := disparity.Pixels(interior)
	mm := 1000 * math.Abs(rig.BaselineM/(rig.BaselineM/rig.ConvergenceM-d/rig.FocalPx))
	want := uint16(mm + 0.5)
	if want < 679 || want > 681 {
		t.Fatalf("scenario expectation drifted: formula gives %d mm, want ~680", want)
	}

	out := c.ToDepth(m)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			got := out.Gray16At(x, y).Y
			border := x == 0 || y == 0 || x == w-1 || y == h-1
			if border {
				if got != 0 {
					t.Fatalf("border depth at (%d,%d) = %d, want 0", x, y, got)
				}
				continue
			}
			if got != want {
				t.Fatalf("depth at (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

// TestWriteIntrinsics verifies the matrix layout and the focal rescale from
// the native to the actual output width.
func TestWriteIntrinsics(t *testing.T) {
	rig := appconfig.Default().Rig
	path := filepath.Join(t.TempDir(), "intrinsics.txt")

	if err := WriteIntrinsics(path, rig, 640, 480); err != nil {
		t.Fatalf("WriteIntrinsics failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read intrinsics: %v", err)
	}
	want := "565 0 320\n0 565 240\n0 0 1\n"
	if string(data) != want {
		t.Errorf("intrinsics = %q, want %q", string(data), want)
	}

	// Half-width output halves the focal length.
	if err := WriteIntrinsics(path, rig, 320, 240); err != nil {
		t.Fatalf("WriteIntrinsics failed: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read intrinsics: %v", err)
	}
	want = "282.5 0 160\n0 282.5 120\n0 0 1\n"
	if string(data) != want {
		t.Errorf("intrinsics = %q, want %q", string(data), want)
	}
}
