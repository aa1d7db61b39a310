// Package config provides configuration loading for EmojiSync.
package config

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/emojisync/emotion"
	"github.com/nvr-ai/emojisync/viewer"
	"gopkg.in/yaml.v3"
)

// Config is the complete EmojiSync configuration.
type Config struct {
	Camera     CameraConfig      `yaml:"camera"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Viewer     ViewerConfig      `yaml:"viewer"`
	Glyphs     map[string]string `yaml:"glyphs"`
	Status     StatusConfig      `yaml:"status"`
	Profiler   ProfilerConfig    `yaml:"profiler"`
	Log        LogConfig         `yaml:"log"`
}

// CameraConfig configures the capture device.
type CameraConfig struct {
	// Device is a device index or a video file path
	Device        string  `yaml:"device"`
	FPS           float64 `yaml:"fps"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	ResizeWidth   int     `yaml:"resize_width"`
	ResizeHeight  int     `yaml:"resize_height"`
	MaxEmptyReads int     `yaml:"max_empty_reads"`
}

// ClassifierConfig configures face detection and the emotion model.
type ClassifierConfig struct {
	Model          string  `yaml:"model"`
	Cascade        string  `yaml:"cascade"`
	SharedLib      string  `yaml:"shared_lib"`
	InputName      string  `yaml:"input_name"`
	OutputName     string  `yaml:"output_name"`
	MinFaceSize    int     `yaml:"min_face_size"`
	ScaleFactor    float64 `yaml:"scale_factor"`
	MinNeighbors   int     `yaml:"min_neighbors"`
	IntraOpThreads int     `yaml:"intra_op_threads"`
	InterOpThreads int     `yaml:"inter_op_threads"`
}

// ViewerConfig configures the display.
type ViewerConfig struct {
	// Backend is "window" (alias "tk") or "web"
	Backend    string `yaml:"backend"`
	Title      string `yaml:"title"`
	FontFamily string `yaml:"font_family"`
	FontPath   string `yaml:"font_path"`
	FontSize   int    `yaml:"font_size"`
	// TextColor and BackgroundColor are #rrggbb; empty selects the backend default
	TextColor       string        `yaml:"text_color"`
	BackgroundColor string        `yaml:"background_color"`
	Padding         int           `yaml:"padding"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Browser serves the web backend to an external browser instead of an
	// embedded window
	Browser bool `yaml:"browser"`
}

// StatusConfig configures the Bluesky live-status announcement. Credentials
// are read from BSKY_USER_NAME and BSKY_PASSWORD only.
type StatusConfig struct {
	Announce        bool   `yaml:"announce"`
	Host            string `yaml:"host"`
	TwitchUser      string `yaml:"twitch_user"`
	Title           string `yaml:"title"`
	Description     string `yaml:"description"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Thumbnail       string `yaml:"thumbnail"`
}

// ProfilerConfig configures runtime profiling and metrics.
type ProfilerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ReportInterval time.Duration `yaml:"report_interval"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	MaxSamples     int           `yaml:"max_samples"`
	// MetricsAddr serves /metrics when the viewer has no HTTP server of its own
	MetricsAddr string `yaml:"metrics_addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with the pipeline defaults.
func DefaultConfig() *Config {
	v := viewer.DefaultConfig()
	return &Config{
		Camera: CameraConfig{
			Device:        "0",
			FPS:           2,
			Width:         640,
			Height:        480,
			MaxEmptyReads: 10,
		},
		Classifier: ClassifierConfig{
			Model:        "models/emotion-ferplus-8.onnx",
			Cascade:      "models/haarcascade_frontalface_default.xml",
			InputName:    "Input3",
			OutputName:   "Plus692_Output_0",
			MinFaceSize:  48,
			ScaleFactor:  1.1,
			MinNeighbors: 5,
		},
		Viewer: ViewerConfig{
			Backend:         v.Backend,
			Title:           v.Title,
			FontSize:        v.FontSize,
			TextColor:       "#ffffff",
			Padding:         v.Padding,
			Width:           v.Width,
			Height:          v.Height,
			PollInterval:    v.PollInterval,
			Addr:            v.Addr,
			ShutdownTimeout: v.ShutdownTimeout,
		},
		Status: StatusConfig{
			Host:            "https://bsky.social",
			Title:           "Live now",
			DurationMinutes: 120,
		},
		Profiler: ProfilerConfig{
			Enabled:        true,
			ReportInterval: 10 * time.Second,
			SampleInterval: time.Second,
			MaxSamples:     600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is usable. File paths are checked
// by the components that open them.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Camera.Device) == "" {
		return fmt.Errorf("camera.device is required")
	}
	if c.Camera.FPS < 0 {
		return fmt.Errorf("camera.fps must not be negative")
	}
	if c.Classifier.Model == "" {
		return fmt.Errorf("classifier.model is required")
	}
	if c.Classifier.Cascade == "" {
		return fmt.Errorf("classifier.cascade is required")
	}
	switch strings.ToLower(c.Viewer.Backend) {
	case viewer.BackendWindow, viewer.BackendTk, viewer.BackendWeb:
	default:
		return fmt.Errorf("viewer.backend must be window, tk or web, got %q", c.Viewer.Backend)
	}
	if c.Viewer.PollInterval < 0 {
		return fmt.Errorf("viewer.poll_interval must not be negative")
	}
	if c.Viewer.FontSize < 0 {
		return fmt.Errorf("viewer.font_size must not be negative")
	}
	for name, value := range map[string]string{
		"viewer.text_color":       c.Viewer.TextColor,
		"viewer.background_color": c.Viewer.BackgroundColor,
	} {
		if value == "" {
			continue
		}
		if _, err := ParseHexColor(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := c.GlyphTable(); err != nil {
		return err
	}
	if c.Status.DurationMinutes < 0 {
		return fmt.Errorf("status.duration_minutes must not be negative")
	}
	if c.Profiler.Enabled && (c.Profiler.ReportInterval <= 0 || c.Profiler.SampleInterval <= 0) {
		return fmt.Errorf("profiler intervals must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides selected fields from EMOJISYNC_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("EMOJISYNC_VIEWER_BACKEND"); v != "" {
		c.Viewer.Backend = v
	}
	if v := getenv("EMOJISYNC_CAMERA_DEVICE"); v != "" {
		c.Camera.Device = v
	}
	if v := getenv("EMOJISYNC_CAMERA_FPS"); v != "" {
		fps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("EMOJISYNC_CAMERA_FPS: %w", err)
		}
		c.Camera.FPS = fps
	}
	if v := getenv("EMOJISYNC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); v != "" && c.Classifier.SharedLib == "" {
		c.Classifier.SharedLib = v
	}
	return nil
}

// GlyphTable returns the default emoji table with the configured overrides.
func (c *Config) GlyphTable() (emotion.Glyphs, error) {
	glyphs, err := emotion.DefaultGlyphs().WithOverrides(c.Glyphs)
	if err != nil {
		return nil, fmt.Errorf("glyphs: %w", err)
	}
	return glyphs, nil
}

// ViewerSettings converts the viewer section into a viewer.Config.
func (c *Config) ViewerSettings() (viewer.Config, error) {
	v := viewer.DefaultConfig()
	if strings.EqualFold(c.Viewer.Backend, viewer.BackendWeb) {
		v = viewer.DefaultWebConfig()
	}

	glyphs, err := c.GlyphTable()
	if err != nil {
		return viewer.Config{}, err
	}
	v.Backend = strings.ToLower(c.Viewer.Backend)
	v.Glyphs = glyphs
	setString(&v.Title, c.Viewer.Title)
	setString(&v.FontFamily, c.Viewer.FontFamily)
	setString(&v.FontPath, c.Viewer.FontPath)
	setString(&v.Addr, c.Viewer.Addr)
	v.Browser = c.Viewer.Browser
	setInt(&v.FontSize, c.Viewer.FontSize)
	setInt(&v.Width, c.Viewer.Width)
	setInt(&v.Height, c.Viewer.Height)
	if c.Viewer.Padding >= 0 {
		v.Padding = c.Viewer.Padding
	}
	if c.Viewer.PollInterval > 0 {
		v.PollInterval = c.Viewer.PollInterval
	}
	if c.Viewer.ShutdownTimeout > 0 {
		v.ShutdownTimeout = c.Viewer.ShutdownTimeout
	}
	if c.Viewer.TextColor != "" {
		if v.TextColor, err = ParseHexColor(c.Viewer.TextColor); err != nil {
			return viewer.Config{}, fmt.Errorf("viewer.text_color: %w", err)
		}
	}
	if c.Viewer.BackgroundColor != "" {
		if v.BackgroundColor, err = ParseHexColor(c.Viewer.BackgroundColor); err != nil {
			return viewer.Config{}, fmt.Errorf("viewer.background_color: %w", err)
		}
	}
	return v, nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// ParseHexColor parses #rgb or #rrggbb into an opaque colour.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
