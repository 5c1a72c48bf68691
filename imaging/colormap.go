package imaging

// Hot maps an 8-bit intensity to the classic black-red-yellow-white "hot"
// colormap. Used for the disparity preview composite.
func Hot(v uint8) (r, g, b uint8) {
	// Three ramps: red over [0,96), green over [96,192), blue over [192,256).
	switch {
	case v < 96:
		return uint8(int(v) * 255 / 95), 0, 0
	case v < 192:
		return 255, uint8(int(v-96) * 255 / 95), 0
	default:
		return 255, 255, uint8(int(v-192) * 255 / 63)
	}
}
