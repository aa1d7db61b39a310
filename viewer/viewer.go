// Package viewer displays the most recently resolved emotion as a glyph.
//
// Two backends are provided. Window draws into a native window through a
// Surface (an OpenCV HighGUI window in production). Web serves a page whose
// script polls the current glyph over HTTP. Both implement Viewer and share
// the same lifecycle: Created, then Running, then Closed.
package viewer

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/emojisync/emotion"
	"github.com/prometheus/client_golang/prometheus"
)

// Viewer is the display side of the pipeline.
type Viewer interface {
	// Push makes the glyph for label the next value to display. Safe for
	// concurrent use; dropped after Close.
	Push(label emotion.Emotion)
	// Run blocks in the backend loop until Close.
	Run() error
	// Close stops the viewer. Idempotent.
	Close()
}

// ErrAlreadyRunning is returned by a second concurrent Run.
var ErrAlreadyRunning = errors.New("viewer: already running")

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("viewer: unknown backend")

// Backend names accepted by New.
const (
	BackendWindow = "window"
	BackendTk     = "tk"
	BackendWeb    = "web"
)

// State is the lifecycle state of a viewer.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds the presentation settings shared by all backends.
type Config struct {
	Backend string
	Title   string

	// FontFamily is a CSS font list for the web backend.
	FontFamily string
	// FontPath is a TrueType font file for the window backend. Empty selects
	// the built-in Hershey font, which cannot draw emoji; the label text is
	// drawn instead.
	FontPath string
	FontSize int

	TextColor       color.RGBA
	BackgroundColor color.RGBA
	Padding         int
	Width           int
	Height          int
	PollInterval    time.Duration

	// Addr is the listen address of the web backend.
	Addr string
	// Browser serves the web backend to an external browser instead of an
	// embedded webview window.
	Browser         bool
	ShutdownTimeout time.Duration

	Glyphs emotion.Glyphs
}

// DefaultConfig returns the window backend defaults: white on black, 96 px.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendWindow,
		Title:           "EmojiSync",
		FontFamily:      "Noto Color Emoji, Noto Emoji, Segoe UI Emoji, Apple Color Emoji, system-ui, sans-serif",
		FontSize:        96,
		TextColor:       color.RGBA{R: 255, G: 255, B: 255, A: 255},
		BackgroundColor: color.RGBA{A: 255},
		Padding:         12,
		Width:           320,
		Height:          240,
		PollInterval:    50 * time.Millisecond,
		Addr:            "127.0.0.1:8765",
		ShutdownTimeout: 5 * time.Second,
		Glyphs:          emotion.DefaultGlyphs(),
	}
}

// DefaultWebConfig returns the web backend defaults: white on blue.
func DefaultWebConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendWeb
	cfg.BackgroundColor = color.RGBA{B: 255, A: 255}
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Title == "" {
		c.Title = d.Title
	}
	if c.FontFamily == "" {
		c.FontFamily = d.FontFamily
	}
	if c.FontSize <= 0 {
		c.FontSize = d.FontSize
	}
	if c.TextColor.A == 0 {
		c.TextColor = d.TextColor
	}
	if c.BackgroundColor.A == 0 {
		c.BackgroundColor = d.BackgroundColor
		if strings.EqualFold(c.Backend, BackendWeb) {
			c.BackgroundColor = DefaultWebConfig().BackgroundColor
		}
	}
	if c.Padding < 0 {
		c.Padding = 0
	}
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.Glyphs == nil {
		c.Glyphs = d.Glyphs
	}
	return c
}

// Option configures a viewer.
type Option func(*settings)

type settings struct {
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	handlers map[string]http.Handler
	host     HostFactory
}

// WithLogger sets the logger used by the viewer.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithGatherer exposes the gatherer on /metrics of the web backend.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *settings) { s.gatherer = g }
}

// WithHost makes the web backend open its page in an embedded window.
func WithHost(newHost HostFactory) Option {
	return func(s *settings) { s.host = newHost }
}

// WithHandler mounts an extra handler on the web backend.
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *settings) {
		if s.handlers == nil {
			s.handlers = make(map[string]http.Handler)
		}
		s.handlers[pattern] = h
	}
}

func newSettings(opts []Option) settings {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// New builds the viewer selected by cfg.Backend. newSurface is only used by
// the window backend and may be nil for the web backend.
func New(cfg Config, newSurface SurfaceFactory, opts ...Option) (Viewer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendWindow, BackendTk:
		if newSurface == nil {
			return nil, errors.New("viewer: window backend needs a surface factory")
		}
		return NewWindow(cfg, newSurface, opts...), nil
	case BackendWeb:
		return NewWeb(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// lifecycle tracks Created → Running → Closed. Closed is terminal and
// reachable from any state.
type lifecycle struct {
	state  atomic.Int32
	closed chan struct{}
	once   sync.Once
}

func newLifecycle() *lifecycle {
	return &lifecycle{closed: make(chan struct{})}
}

// start moves Created to Running. It reports false with a nil error when the
// viewer is already closed.
func (l *lifecycle) start() (bool, error) {
	if l.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return true, nil
	}
	if State(l.state.Load()) == StateRunning {
		return false, ErrAlreadyRunning
	}
	return false, nil
}

// close reports whether this call performed the transition to Closed.
func (l *lifecycle) close() bool {
	first := false
	l.once.Do(func() {
		l.state.Store(int32(StateClosed))
		close(l.closed)
		first = true
	})
	return first
}

func (l *lifecycle) current() State {
	return State(l.state.Load())
}

func (l *lifecycle) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}
