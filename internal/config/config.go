package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DriverConfig selects the concrete camera driver implementation.
// Type selects a concrete implementation (e.g., "sim" for the simulated pair).
type DriverConfig struct {
	Type string `yaml:"type"` // e.g., "sim"
}

// CaptureConfig describes the per-device setup and the capture policy.
type CaptureConfig struct {
	ImageDir     string `yaml:"image_dir"`      // directory for encoded artifacts
	WidthPx      int    `yaml:"width_px"`       // native sensor width
	HeightPx     int    `yaml:"height_px"`      // native sensor height
	BitsPerPixel int    `yaml:"bits_per_pixel"` // frame buffer depth
	PixelFormat  int    `yaml:"pixel_format"`   // vendor pixel format code
	JPEGQuality  int    `yaml:"jpeg_quality"`   // encode quality (1-100)

	// Logical dimensions reported alongside the frame bytes. The encoded
	// image the SDK produces is slightly smaller than the raw sensor.
	ReplyWidthPx  int `yaml:"reply_width_px"`
	ReplyHeightPx int `yaml:"reply_height_px"`

	FreezeAttempts  int `yaml:"freeze_attempts"`   // bounded acquisition retries
	FreezeBackoffMs int `yaml:"freeze_backoff_ms"` // backoff unit between retries

	// EncodePolicy decides what a non-success encode outcome does:
	// "strict" fails the capture call, "tolerate" logs and returns the
	// bytes on disk (possibly stale, matching the legacy behavior).
	EncodePolicy string `yaml:"encode_policy"`
}

// AOIConfig is optional: restrict captures to a sensor sub-rectangle.
type AOIConfig struct {
	XPx      int `yaml:"x_px"`
	YPx      int `yaml:"y_px"`
	WidthPx  int `yaml:"width_px"`
	HeightPx int `yaml:"height_px"`
}

// ServerConfig describes the reply endpoint.
type ServerConfig struct {
	Bind     string `yaml:"bind"`     // ZeroMQ bind address, e.g. tcp://*:5555
	Envelope bool   `yaml:"envelope"` // wrap replies in (bytes, width, height)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	BatchCount int `yaml:"batch_count"` // iterations for the batch harness
}

// Config aggregates all application configuration.
type Config struct {
	Driver   DriverConfig   `yaml:"driver"`
	Capture  CaptureConfig  `yaml:"capture"`
	AOI      *AOIConfig     `yaml:"aoi,omitempty"` // optional
	Server   ServerConfig   `yaml:"server"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.Driver.Type == "" {
		return nil, fmt.Errorf("driver.type is required")
	}
	if cfg.Capture.ImageDir == "" {
		cfg.Capture.ImageDir = "images"
	}

	// Defaults match the UI-1495LE-C pair the rig is built around:
	// full 10MP frame buffers, vendor pixel format 21, JPEG quality 80.
	if cfg.Capture.WidthPx <= 0 {
		cfg.Capture.WidthPx = 3840
	}
	if cfg.Capture.HeightPx <= 0 {
		cfg.Capture.HeightPx = 2748
	}
	if cfg.Capture.BitsPerPixel <= 0 {
		cfg.Capture.BitsPerPixel = 24
	}
	if cfg.Capture.PixelFormat <= 0 {
		cfg.Capture.PixelFormat = 21
	}
	if cfg.Capture.JPEGQuality == 0 {
		cfg.Capture.JPEGQuality = 80
	}
	if cfg.Capture.JPEGQuality < 1 || cfg.Capture.JPEGQuality > 100 {
		return nil, fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", cfg.Capture.JPEGQuality)
	}
	if cfg.Capture.ReplyWidthPx <= 0 {
		cfg.Capture.ReplyWidthPx = 3648
	}
	if cfg.Capture.ReplyHeightPx <= 0 {
		cfg.Capture.ReplyHeightPx = 2736
	}

	if cfg.Capture.FreezeAttempts == 0 {
		cfg.Capture.FreezeAttempts = 25
	}
	if cfg.Capture.FreezeAttempts < 1 {
		return nil, fmt.Errorf("freeze_attempts must be >= 1, got %d", cfg.Capture.FreezeAttempts)
	}
	if cfg.Capture.FreezeBackoffMs < 0 {
		return nil, fmt.Errorf("freeze_backoff_ms must be >= 0, got %d", cfg.Capture.FreezeBackoffMs)
	}
	if cfg.Capture.FreezeBackoffMs == 0 {
		cfg.Capture.FreezeBackoffMs = 20
	}

	switch cfg.Capture.EncodePolicy {
	case "":
		cfg.Capture.EncodePolicy = "strict"
	case "strict", "tolerate":
	default:
		return nil, fmt.Errorf("encode_policy must be \"strict\" or \"tolerate\", got %q", cfg.Capture.EncodePolicy)
	}

	if cfg.AOI != nil {
		if cfg.AOI.WidthPx <= 0 || cfg.AOI.HeightPx <= 0 {
			return nil, fmt.Errorf("aoi width/height must be > 0, got %dx%d", cfg.AOI.WidthPx, cfg.AOI.HeightPx)
		}
		if cfg.AOI.XPx < 0 || cfg.AOI.YPx < 0 {
			return nil, fmt.Errorf("aoi x/y must be >= 0, got (%d,%d)", cfg.AOI.XPx, cfg.AOI.YPx)
		}
	}

	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "tcp://*:5555"
	}

	if cfg.Defaults.BatchCount <= 0 {
		cfg.Defaults.BatchCount = 10
	}

	return &cfg, nil
}

// FreezeBackoff returns the backoff unit between acquisition retries.
func (c *Config) FreezeBackoff() time.Duration {
	return time.Duration(c.Capture.FreezeBackoffMs) * time.Millisecond
}
