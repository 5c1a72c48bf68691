// Package output owns the on-disk result tree: per-frame color, depth and
// raw images plus the disparity preview composite.
package output

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"n3dsdepth/disparity"
	"n3dsdepth/imaging"
)

// Writer creates the output directory tree once at startup and writes the
// per-frame artifacts. Files are named by zero-padded frame index and a
// running timestamp in milliseconds.
type Writer struct {
	base        string
	jpegQuality int
	saveRaw     bool
	preview     bool

	// Running disparity maximum across frames keeps the preview scaling
	// stable instead of flickering with each frame's own range.
	previewMax int
}

// NewWriter builds the directory tree under base. The raw and preview
// directories are only created when their outputs are enabled.
func NewWriter(base string, jpegQuality int, saveRaw, preview bool) (*Writer, error) {
	w := &Writer{
		base:        base,
		jpegQuality: jpegQuality,
		saveRaw:     saveRaw,
		preview:     preview,
		previewMax:  1,
	}

	dirs := []string{base, filepath.Join(base, "image"), filepath.Join(base, "depth")}
	if saveRaw {
		dirs = append(dirs, filepath.Join(base, "raw"))
	}
	if preview {
		dirs = append(dirs, filepath.Join(base, "preview"))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %v", dir, err)
		}
	}
	return w, nil
}

// Base returns the root of the output tree.
func (w *Writer) Base() string { return w.base }

// FrameName returns the per-frame base name: zero-padded frame index,
// dash, zero-padded running timestamp in milliseconds.
func FrameName(frame, timeMs int) string {
	return fmt.Sprintf("%06d-%06d", frame, timeMs)
}

// WriteColor writes the lossy-compressed color frame.
func (w *Writer) WriteColor(frame, timeMs int, img image.Image) error {
	path := filepath.Join(w.base, "image", FrameName(frame, timeMs)+".jpg")
	return saveJPEG(path, img, w.jpegQuality)
}

// WriteDepth writes the lossless 16-bit depth map.
func (w *Writer) WriteDepth(frame, timeMs int, img *image.Gray16) error {
	path := filepath.Join(w.base, "depth", FrameName(frame, timeMs)+".png")
	return savePNG(path, img)
}

// WriteRaw writes the unprocessed left and right images when raw-save mode
// is enabled.
func (w *Writer) WriteRaw(frame, timeMs int, left, right image.Image) error {
	if !w.saveRaw {
		return nil
	}
	name := FrameName(frame, timeMs)
	if err := saveJPEG(filepath.Join(w.base, "raw", name+"-l.jpg"), left, w.jpegQuality); err != nil {
		return err
	}
	return saveJPEG(filepath.Join(w.base, "raw", name+"-r.jpg"), right, w.jpegQuality)
}

// WritePreview writes the color frame blended with the hot-colormapped
// disparity field. The disparity image tends to be very dark, so it is
// rescaled against the running maximum before colorizing.
func (w *Writer) WritePreview(frame, timeMs int, colorImg *image.RGBA, m *disparity.Map) error {
	if !w.preview {
		return nil
	}

	lo, hi := m.MinMax()
	if int(hi) > w.previewMax {
		w.previewMax = int(hi)
	}
	scale := 255.0 / float64(w.previewMax)

	b := colorImg.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), colorImg, b.Min, draw.Src)

	for y := 0; y < m.H && y < b.Dy(); y++ {
		for x := 0; x < m.W && x < b.Dx(); x++ {
			v := float64(m.Pix[y*m.W+x]-lo) * scale
			if v > 255 {
				v = 255
			}
			r, g, bl := imaging.Hot(uint8(v))
			i := y*out.Stride + x*4
			out.Pix[i+0] = addClamp(out.Pix[i+0], r/2)
			out.Pix[i+1] = addClamp(out.Pix[i+1], g/2)
			out.Pix[i+2] = addClamp(out.Pix[i+2], bl/2)
		}
	}

	path := filepath.Join(w.base, "preview", FrameName(frame, timeMs)+".jpg")
	return saveJPEG(path, out, w.jpegQuality)
}

func addClamp(a, b uint8) uint8 {
	s := int(a) + int(b)
	if s > 255 {
		return 255
	}
	return uint8(s)
}

func saveJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(f, img)
}
