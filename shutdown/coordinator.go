package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Producer is the capture side of the pipeline. Run blocks until the producer
// stops; a non-nil error is a fatal failure.
type Producer interface {
	Run(ctx context.Context) error
}

// Viewer is the display side of the pipeline as seen by the coordinator.
type Viewer interface {
	Run() error
	Close()
}

// Coordinator runs one producer and one viewer and guarantees that, on every
// termination path, the shared Signal is set and the viewer is closed exactly once.
type Coordinator struct {
	signal *Signal
	logger *slog.Logger
}

// NewCoordinator returns a coordinator bound to signal. A nil logger uses slog.Default().
func NewCoordinator(signal *Signal, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{signal: signal, logger: logger}
}

// Signal returns the shutdown signal shared by both sides.
func (c *Coordinator) Signal() *Signal {
	return c.signal
}

// Run starts the producer on its own goroutine and the viewer's event loop on the
// calling goroutine, then blocks until both have stopped.
//
// Termination is triggered by any of: the viewer returning (user closed the
// window), the producer setting the signal after a fatal error, or ctx being
// cancelled. The producer's error takes precedence over the viewer's.
func (c *Coordinator) Run(ctx context.Context, p Producer, v Viewer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closeOnce sync.Once
	closeViewer := func(reason string) {
		closeOnce.Do(func() {
			c.logger.Info("closing viewer", slog.String("reason", reason))
			v.Close()
		})
	}

	producerErr := make(chan error, 1)
	go func() {
		producerErr <- p.Run(ctx)
	}()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-c.signal.Done():
			closeViewer("shutdown signal")
		case <-ctx.Done():
			c.signal.Set()
			closeViewer("context cancelled")
		}
	}()

	viewErr := v.Run()

	c.signal.Set()
	closeViewer("viewer stopped")
	cancel()
	<-watcherDone

	pErr := <-producerErr
	if pErr != nil {
		return pErr
	}
	if viewErr != nil {
		return fmt.Errorf("viewer: %w", viewErr)
	}
	return nil
}
