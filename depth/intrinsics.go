package depth

import (
	"fmt"
	"os"

	"n3dsdepth/appconfig"
)

// WriteIntrinsics writes the pinhole camera matrix for depth consumers as
// three text lines, one matrix row per line:
//
//	f 0 cx
//	0 f cy
//	0 0 1
//
// The rig focal length is measured at the camera's native resolution, so it
// is rescaled to the actual output width; the principal point is taken as
// the output image center.
func WriteIntrinsics(path string, rig appconfig.RigConfig, width, height int) error {
	f := rig.FocalPx * float64(width) / float64(rig.NativeWidth)
	cx := float64(width) / 2
	cy := float64(height) / 2

	content := fmt.Sprintf("%g 0 %g\n0 %g %g\n0 0 1\n", f, cx, f, cy)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write intrinsics file: %v", err)
	}
	return nil
}
