package viewer

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/nvr-ai/emojisync/emotion"
	"github.com/nvr-ai/emojisync/mailbox"
)

// Display is one value drawn by a Surface.
type Display struct {
	Label emotion.Emotion
	Glyph string
}

// Surface is a native drawing target. All methods are called from the
// goroutine running Window.Run, which is locked to its OS thread.
type Surface interface {
	// Show draws d, replacing whatever was shown before.
	Show(d Display) error
	// Wait processes window events for up to d. It returns false once the
	// user has closed the window.
	Wait(d time.Duration) bool
	Close() error
}

// SurfaceFactory opens a Surface for cfg.
type SurfaceFactory func(cfg Config) (Surface, error)

// Window renders glyphs into a native window. The producer side only touches
// the mailbox; the surface is owned by the goroutine inside Run.
type Window struct {
	cfg        Config
	logger     *slog.Logger
	newSurface SurfaceFactory
	box        *mailbox.Mailbox[Display]
	lc         *lifecycle
}

// NewWindow builds a window viewer. Nothing is opened until Run.
func NewWindow(cfg Config, newSurface SurfaceFactory, opts ...Option) *Window {
	s := newSettings(opts)
	return &Window{
		cfg:        cfg.withDefaults(),
		logger:     s.logger.With(slog.String("viewer", BackendWindow)),
		newSurface: newSurface,
		box:        mailbox.New[Display](),
		lc:         newLifecycle(),
	}
}

func (w *Window) Push(label emotion.Emotion) {
	if w.lc.isClosed() {
		return
	}
	w.box.Push(Display{Label: label, Glyph: w.cfg.Glyphs.Lookup(label)})
}

// Run opens the surface and polls the mailbox every PollInterval until Close
// is called or the user closes the window.
func (w *Window) Run() error {
	ok, err := w.lc.start()
	if !ok {
		return err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	surface, err := w.newSurface(w.cfg)
	if err != nil {
		w.Close()
		return fmt.Errorf("open window %q: %w", w.cfg.Title, err)
	}
	defer w.teardown(surface)

	w.logger.Info("window opened", slog.String("title", w.cfg.Title),
		slog.Duration("poll", w.cfg.PollInterval))

	if err := surface.Show(Display{}); err != nil {
		w.logger.Warn("initial draw failed", slog.String("error", err.Error()))
	}
	for {
		if w.lc.isClosed() {
			return nil
		}
		if d, ok := w.box.PopLatest(); ok {
			if err := surface.Show(d); err != nil {
				w.logger.Warn("draw failed", slog.String("label", string(d.Label)), slog.String("error", err.Error()))
			}
		}
		if !surface.Wait(w.cfg.PollInterval) {
			w.logger.Info("window closed by user")
			w.Close()
			return nil
		}
	}
}

// Close stops Run. The surface is released by the Run goroutine, since
// HighGUI windows must be destroyed on the thread that created them.
func (w *Window) Close() {
	if w.lc.close() {
		w.logger.Debug("window close requested", slog.Uint64("mailbox_drops", w.box.Drops()))
	}
}

func (w *Window) teardown(surface Surface) {
	if err := surface.Close(); err != nil {
		w.logger.Warn("viewer teardown failed", slog.String("error", err.Error()))
	}
}

// State returns the lifecycle state.
func (w *Window) State() State {
	return w.lc.current()
}

// Drops returns how many pushed glyphs were overwritten before being drawn.
func (w *Window) Drops() uint64 {
	return w.box.Drops()
}

// CollectMetrics reports mailbox drops to a profiler.
func (w *Window) CollectMetrics() map[string]float64 {
	return map[string]float64{"viewer_drops": float64(w.Drops())}
}
