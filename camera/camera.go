// Package camera reads frames from an OpenCV capture device or video file.
package camera

import (
	"context"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	// ErrReadFailed is returned when the device stops delivering frames.
	ErrReadFailed = errors.New("failed to read frame")
	// ErrEmptyFrames is returned after too many consecutive empty frames.
	ErrEmptyFrames = errors.New("too many consecutive empty frames")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("camera closed")
)

// Config describes the capture device.
type Config struct {
	// Device is a device index ("0") or a video file path or stream URL.
	Device string
	// FPS is the pacing rate of Next. Zero reads as fast as the device allows.
	FPS    float64
	Width  int
	Height int
	// ResizeWidth and ResizeHeight resize every frame when both are set.
	ResizeWidth  int
	ResizeHeight int
	// MaxEmptyReads is how many consecutive empty frames are skipped before
	// Next fails.
	MaxEmptyReads int
}

// DefaultConfig returns the settings of the emotion pipeline: device 0 at
// 2 frames per second, 640x480.
func DefaultConfig() Config {
	return Config{
		Device:        "0",
		FPS:           2,
		Width:         640,
		Height:        480,
		MaxEmptyReads: 10,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Device) == "" {
		return errors.New("camera device is required")
	}
	if c.FPS < 0 {
		return errors.Errorf("camera fps must not be negative, got %v", c.FPS)
	}
	if c.Width < 0 || c.Height < 0 {
		return errors.Errorf("camera frame size must not be negative, got %dx%d", c.Width, c.Height)
	}
	if (c.ResizeWidth > 0) != (c.ResizeHeight > 0) {
		return errors.New("camera resize needs both width and height")
	}
	if c.MaxEmptyReads < 0 {
		return errors.New("camera max empty reads must not be negative")
	}
	return nil
}

// Interval returns the time between frames, zero when unpaced.
func (c Config) Interval() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.FPS)
}

// reader is the part of gocv.VideoCapture a Source reads from.
type reader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Source is a paced frame source over gocv.VideoCapture. Frames returned by
// Next belong to the caller, who must Close them.
type Source struct {
	cfg    Config
	logger *slog.Logger
	mu     sync.Mutex
	reader reader
	ticker *time.Ticker
	closed bool
}

// Open opens the capture device described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	capture, err := gocv.OpenVideoCapture(parseDevice(cfg.Device))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open capture device %s", cfg.Device)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, errors.Errorf("capture device %s is not available", cfg.Device)
	}
	if cfg.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, cfg.FPS)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	s := newSource(cfg, capture, logger)
	logger.Info("capture device opened",
		slog.String("device", cfg.Device),
		slog.Float64("fps", cfg.FPS),
		slog.Int("width", int(capture.Get(gocv.VideoCaptureFrameWidth))),
		slog.Int("height", int(capture.Get(gocv.VideoCaptureFrameHeight))))
	return s, nil
}

func newSource(cfg Config, r reader, logger *slog.Logger) *Source {
	s := &Source{cfg: cfg, logger: logger, reader: r}
	if interval := cfg.Interval(); interval > 0 {
		s.ticker = time.NewTicker(interval)
	}
	return s
}

// Next waits for the next pacing tick and reads one frame. Empty frames are
// skipped up to MaxEmptyReads consecutive times.
func (s *Source) Next(ctx context.Context) (*gocv.Mat, error) {
	if s.ticker != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.ticker.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	for empty := 0; ; empty++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame := gocv.NewMat()
		if ok := s.reader.Read(&frame); !ok {
			_ = frame.Close()
			return nil, errors.Wrapf(ErrReadFailed, "device %s", s.cfg.Device)
		}
		if frame.Empty() {
			_ = frame.Close()
			if empty >= s.cfg.MaxEmptyReads {
				return nil, errors.Wrapf(ErrEmptyFrames, "device %s: %d in a row", s.cfg.Device, empty+1)
			}
			s.logger.Debug("skipping empty frame", slog.String("device", s.cfg.Device))
			continue
		}

		if s.cfg.ResizeWidth > 0 && s.cfg.ResizeHeight > 0 {
			resized := gocv.NewMat()
			gocv.Resize(frame, &resized, image.Pt(s.cfg.ResizeWidth, s.cfg.ResizeHeight), 0, 0, gocv.InterpolationLinear)
			_ = frame.Close()
			frame = resized
		}
		return &frame, nil
	}
}

// Close releases the device. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if err := s.reader.Close(); err != nil {
		return errors.Wrapf(err, "failed to close capture device %s", s.cfg.Device)
	}
	s.logger.Info("capture device closed", slog.String("device", s.cfg.Device))
	return nil
}

// parseDevice returns an int for numeric device IDs and the string otherwise,
// as gocv.OpenVideoCapture accepts both.
func parseDevice(device string) any {
	device = strings.TrimSpace(device)
	if id, err := strconv.Atoi(device); err == nil {
		return id
	}
	return device
}
