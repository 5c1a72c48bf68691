package video

import (
	"fmt"
	"image"
	"image/color"
)

// supportedPixFmt reports whether the converter understands the decoder's
// pixel format. Only planar 4:2:0 layouts are supported; yuvj420p is the
// full-range JPEG variant.
func supportedPixFmt(name string) bool {
	return name == "yuv420p" || name == "yuvj420p"
}

// validateFrame checks plane geometry before conversion. Conversion reads
// exactly Width samples per luma row, so a source with alignment padding in
// its strides is fine; short planes are not.
func validateFrame(f *RawFrame) error {
	if !supportedPixFmt(f.PixFmt) {
		return fmt.Errorf("%w: unsupported pixel format: %s", ErrDecode, f.PixFmt)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: bad frame dimensions %dx%d", ErrDecode, f.Width, f.Height)
	}
	cw, ch := (f.Width+1)/2, (f.Height+1)/2
	if f.Strides[0] < f.Width || len(f.Planes[0]) < f.Strides[0]*(f.Height-1)+f.Width {
		return fmt.Errorf("%w: luma plane too short", ErrDecode)
	}
	for p := 1; p <= 2; p++ {
		if f.Strides[p] < cw || len(f.Planes[p]) < f.Strides[p]*(ch-1)+cw {
			return fmt.Errorf("%w: chroma plane %d too short", ErrDecode, p)
		}
	}
	return nil
}

// ToGray extracts the luma plane as a full-resolution grayscale image.
func ToGray(f *RawFrame) (*image.Gray, error) {
	if err := validateFrame(f); err != nil {
		return nil, err
	}
	out := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Planes[0][y*f.Strides[0] : y*f.Strides[0]+f.Width]
		copy(out.Pix[y*out.Stride:y*out.Stride+f.Width], src)
	}
	return out, nil
}

// ToColor expands the subsampled frame to a full-resolution color image:
// each chroma sample pair is replicated across its 2x2 luma block, then the
// result is converted from the decoder's Y'CbCr encoding to RGB. Widths and
// heights that are not multiples of two are handled exactly; the trailing
// column or row reads the final chroma sample like any other pixel in its
// block.
func ToColor(f *RawFrame) (*image.RGBA, error) {
	if err := validateFrame(f); err != nil {
		return nil, err
	}
	out := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		ySrc := f.Planes[0][y*f.Strides[0]:]
		uSrc := f.Planes[1][(y/2)*f.Strides[1]:]
		vSrc := f.Planes[2][(y/2)*f.Strides[2]:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < f.Width; x++ {
			r, g, b := color.YCbCrToRGB(ySrc[x], uSrc[x/2], vSrc[x/2])
			i := x * 4
			dst[i+0] = r
			dst[i+1] = g
			dst[i+2] = b
			dst[i+3] = 255
		}
	}
	return out, nil
}

// ConvertFrame produces the working-format frame: full color for output and
// edge detection, plus the luma plane the matcher runs on.
func ConvertFrame(f *RawFrame) (*Frame, error) {
	gray, err := ToGray(f)
	if err != nil {
		return nil, err
	}
	colorImg, err := ToColor(f)
	if err != nil {
		return nil, err
	}
	return &Frame{Color: colorImg, Gray: gray}, nil
}
