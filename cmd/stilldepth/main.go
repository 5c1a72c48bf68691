// stilldepth computes a depth map from a single left/right stereo image
// pair instead of a full video. Useful for tuning matcher settings on a
// captured frame before running a long conversion.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"

	"n3dsdepth/appconfig"
	"n3dsdepth/depth"
	"n3dsdepth/disparity"
	"n3dsdepth/imaging"
	"n3dsdepth/video"
)

func main() {
	leftPath := flag.String("left", "", "left eye image path (PNG/JPEG/WEBP)")
	rightPath := flag.String("right", "", "right eye image path")
	outPath := flag.String("out", "depth.png", "output 16-bit depth PNG path")
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	if *leftPath == "" || *rightPath == "" {
		fmt.Fprintln(os.Stderr, "usage: --left <image> --right <image> [--out depth.png]")
		os.Exit(2)
	}

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	left, err := loadFrame(*leftPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load left image: %v\n", err)
		os.Exit(1)
	}
	right, err := loadFrame(*rightPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load right image: %v\n", err)
		os.Exit(1)
	}

	lb, rb := left.Color.Bounds(), right.Color.Bounds()
	if rb.Dx() != lb.Dx() || rb.Dy() != lb.Dy() {
		// Resample the right eye onto the left eye's grid so the matcher
		// sees identical dimensions.
		resized := image.NewRGBA(image.Rect(0, 0, lb.Dx(), lb.Dy()))
		xdraw.ApproxBiLinear.Scale(resized, resized.Bounds(), right.Color, rb, draw.Src, nil)
		right = &video.Frame{Color: resized, Gray: imaging.Luma(resized)}
	}

	matcher, err := disparity.NewMatcher(cfg.Matcher)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	engine := disparity.NewEngine(matcher, cfg.Output)

	m, err := engine.Compute(left, right)
	if err != nil {
		fmt.Fprintf(os.Stderr, "disparity: %v\n", err)
		os.Exit(1)
	}
	depthImg := depth.NewConverter(cfg.Rig).ToDepth(m)

	if err := savePNG(*outPath, depthImg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save depth map: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%dx%d)\n", *outPath, m.W, m.H)
}

func loadFrame(path string) (*video.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	rgba := toRGBA(img)
	return &video.Frame{Color: rgba, Gray: imaging.Luma(rgba)}, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
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
