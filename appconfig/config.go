package appconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// RigConfig holds the fixed stereo rig geometry for the capture session.
// The values are set once at startup and never change afterwards.
type RigConfig struct {
	// Physical distance between the two camera centers, in meters.
	BaselineM float64 `json:"baselineM"`

	// Focal length in pixel units at the camera's native resolution.
	FocalPx float64 `json:"focalPx"`

	// Distance at which the two optical axes intersect (toed-in rig), in meters.
	ConvergenceM float64 `json:"convergenceM"`

	// Horizontal resolution the focal length was measured at. Used to
	// rescale the focal length when the output resolution differs.
	NativeWidth int `json:"nativeWidth"`
}

// MatcherConfig selects and tunes the block-matching strategy.
type MatcherConfig struct {
	// Algorithm selects the matcher implementation: "block", "multiblock"
	// or "pyramid".
	Algorithm string `json:"algorithm"`

	// BlockSizes are the matching window sizes. Each must be odd. For the
	// "multiblock" algorithm they must be sorted smallest to largest.
	BlockSizes []int `json:"blockSizes"`

	// MinDisparity shifts the search window. The rig cameras are a fair
	// distance apart, so the images are pushed closer together.
	MinDisparity int `json:"minDisparity"`

	// NumDisparities is the search range beyond MinDisparity.
	NumDisparities int `json:"numDisparities"`

	// TextureThreshold rejects matches in low-texture regions. It's better
	// to remove too much than keep inaccurate values.
	TextureThreshold int `json:"textureThreshold"`

	// PreFilterCap clamps the horizontal-Sobel prefilter response.
	PreFilterCap int `json:"preFilterCap"`
}

// OutputConfig tunes the refinement pipeline and the output encoders.
type OutputConfig struct {
	JPEGQuality     int `json:"jpegQuality"`
	FrameIntervalMs int `json:"frameIntervalMs"`

	// MedianWindow is the window size of the final median cleanup. Must be odd.
	MedianWindow int `json:"medianWindow"`

	// ColorEdgeThreshold is the lower hysteresis threshold for edges in the
	// color image. Kept low: color edges are the trusted signal. The upper
	// threshold is three times this value.
	ColorEdgeThreshold float64 `json:"colorEdgeThreshold"`

	// DisparityEdgeThreshold is the lower hysteresis threshold for edges in
	// the rescaled disparity field. Kept high so the detector only fires on
	// strong, confident disparity discontinuities. The upper threshold is
	// three times this value.
	DisparityEdgeThreshold float64 `json:"disparityEdgeThreshold"`
}

// Config holds the full tool configuration: rig geometry, matcher tuning
// and output settings.
type Config struct {
	Rig     RigConfig     `json:"rig"`
	Matcher MatcherConfig `json:"matcher"`
	Output  OutputConfig  `json:"output"`
}

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// defaultConfig returns a Config populated with the tuning that was worked
// out by trial and error against real 3DS recordings.
func defaultConfig() Config {
	return Config{
		Rig: RigConfig{
			BaselineM:    0.035,
			FocalPx:      565,
			ConvergenceM: 0.25,
			NativeWidth:  640,
		},
		Matcher: MatcherConfig{
			Algorithm:        "block",
			BlockSizes:       []int{33},
			MinDisparity:     48,
			NumDisparities:   32,
			TextureThreshold: 3000,
			PreFilterCap:     63,
		},
		Output: OutputConfig{
			JPEGQuality:            90,
			FrameIntervalMs:        50,
			MedianWindow:           5,
			ColorEdgeThreshold:     30,
			DisparityEdgeThreshold: 120,
		},
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

func init() {
	Set(defaultConfig())
}

// Load reads the config file at path, merges it over the defaults, and
// updates the in-memory config. An empty path or a missing file yields the
// defaults; a file that exists but doesn't parse is an error.
func Load(path string) (Config, error) {
	c := defaultConfig()
	if path == "" {
		Set(c)
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			Set(c)
			return c, nil
		}
		return Config{}, fmt.Errorf("failed to read config file at %s: %v", path, err)
	}

	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %v", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	Set(c)
	return c, nil
}

// Save writes the config as indented JSON to the given path.
func Save(path string, c Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Rig.BaselineM <= 0 {
		return fmt.Errorf("rig baseline must be positive; got %v", c.Rig.BaselineM)
	}
	if c.Rig.FocalPx <= 0 {
		return fmt.Errorf("rig focal length must be positive; got %v", c.Rig.FocalPx)
	}
	if c.Rig.ConvergenceM <= 0 {
		return fmt.Errorf("rig convergence distance must be positive; got %v", c.Rig.ConvergenceM)
	}
	if c.Rig.NativeWidth <= 0 {
		return fmt.Errorf("rig native width must be positive; got %d", c.Rig.NativeWidth)
	}

	switch c.Matcher.Algorithm {
	case "block", "multiblock", "pyramid":
	default:
		return fmt.Errorf("unknown matcher algorithm %q", c.Matcher.Algorithm)
	}
	if len(c.Matcher.BlockSizes) == 0 {
		return fmt.Errorf("at least one matcher block size is required")
	}
	prev := 0
	for _, bs := range c.Matcher.BlockSizes {
		if bs < 5 || bs%2 == 0 {
			return fmt.Errorf("matcher block sizes must be odd and >= 5; got %d", bs)
		}
		if bs < prev {
			return fmt.Errorf("matcher block sizes must be sorted smallest to largest")
		}
		prev = bs
	}
	if c.Matcher.MinDisparity < 1 {
		return fmt.Errorf("matcher min disparity must be >= 1; got %d", c.Matcher.MinDisparity)
	}
	if c.Matcher.NumDisparities < 1 {
		return fmt.Errorf("matcher disparity range must be >= 1; got %d", c.Matcher.NumDisparities)
	}

	if c.Output.MedianWindow < 1 || c.Output.MedianWindow%2 == 0 {
		return fmt.Errorf("median window must be odd; got %d", c.Output.MedianWindow)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be in 1..100; got %d", c.Output.JPEGQuality)
	}
	if c.Output.ColorEdgeThreshold <= 0 || c.Output.DisparityEdgeThreshold <= 0 {
		return fmt.Errorf("edge thresholds must be positive")
	}
	return nil
}
