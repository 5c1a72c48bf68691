// Command n3dsdepth converts a stereo 3DS video recording into a sequence
// of color frames, metric depth maps and camera intrinsics suitable for
// RGB-D reconstruction tools.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"n3dsdepth/appconfig"
	"n3dsdepth/depth"
	"n3dsdepth/disparity"
	"n3dsdepth/output"
	"n3dsdepth/video"
)

func main() {
	noPreview := flag.Bool("no-preview", false, "skip writing disparity preview images")
	saveRaw := flag.Bool("save-raw", false, "also save the unprocessed left and right frames")
	noDepth := flag.Bool("no-depth", false, "skip disparity and depth computation entirely")
	configPath := flag.String("config", "", "path to a JSON config file (defaults apply when empty)")
	outDir := flag.String("out", "", "output directory (defaults to the input name without extension)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input video>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}
	input := flag.Arg(0)

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	base := *outDir
	if base == "" {
		base = strings.TrimSuffix(input, filepath.Ext(input))
	}

	dec, err := video.NewFFmpegDecoder(input)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer dec.Close()

	if err := run(dec, input, base, cfg, *noPreview, *saveRaw, *noDepth); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(dec video.Decoder, input, base string, cfg appconfig.Config, noPreview, saveRaw, noDepth bool) error {
	sync, err := video.NewSynchronizer(dec)
	if err != nil {
		return err
	}
	for _, st := range sync.Ignored() {
		log.Printf("ignoring extra video stream %d: only two streams are tracked", st.Index)
	}
	log.Printf("input %s: %dx%d stereo", input, sync.Width(), sync.Height())

	writer, err := output.NewWriter(base, cfg.Output.JPEGQuality, saveRaw, !noDepth && !noPreview)
	if err != nil {
		return err
	}

	var engine *disparity.Engine
	var conv *depth.Converter
	if !noDepth {
		matcher, err := disparity.NewMatcher(cfg.Matcher)
		if err != nil {
			return err
		}
		engine = disparity.NewEngine(matcher, cfg.Output)
		conv = depth.NewConverter(cfg.Rig)
	}

	frame := 0
	timeMs := 0
	wroteIntrinsics := false
	for {
		more, err := sync.ProcessStep()
		if err != nil {
			return err
		}
		if sync.HasNewPair() {
			// The intrinsics belong next to actual depth output: a session
			// that never produces a pair leaves no file behind.
			if conv != nil && !wroteIntrinsics {
				path := filepath.Join(base, "intrinsics.txt")
				if err := depth.WriteIntrinsics(path, cfg.Rig, sync.Width(), sync.Height()); err != nil {
					return err
				}
				wroteIntrinsics = true
			}
			if err := writeFrame(writer, engine, conv, sync, frame, timeMs); err != nil {
				return err
			}
			frame++
			timeMs += cfg.Output.FrameIntervalMs
		}
		if !more {
			break
		}
	}

	log.Printf("wrote %d frames to %s", frame, base)
	return nil
}

func writeFrame(w *output.Writer, engine *disparity.Engine, conv *depth.Converter, sync *video.Synchronizer, frame, timeMs int) error {
	left, right := sync.Left(), sync.Right()

	if err := w.WriteColor(frame, timeMs, left.Color); err != nil {
		return fmt.Errorf("failed to save color frame %d: %v", frame, err)
	}
	if err := w.WriteRaw(frame, timeMs, left.Color, right.Color); err != nil {
		return fmt.Errorf("failed to save raw frame %d: %v", frame, err)
	}
	if engine == nil {
		return nil
	}

	m, err := engine.Compute(left, right)
	if err != nil {
		return fmt.Errorf("disparity on frame %d: %v", frame, err)
	}
	if err := w.WriteDepth(frame, timeMs, conv.ToDepth(m)); err != nil {
		return fmt.Errorf("failed to save depth frame %d: %v", frame, err)
	}
	if err := w.WritePreview(frame, timeMs, left.Color, m); err != nil {
		return fmt.Errorf("failed to save preview frame %d: %v", frame, err)
	}
	return nil
}
