package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockViewer blocks in Run until Close is called.
type mockViewer struct {
	closeCalls atomic.Int32
	runErr     error
	once       sync.Once
	closed     chan struct{}
	started    chan struct{}
}

func newMockViewer() *mockViewer {
	return &mockViewer{closed: make(chan struct{}), started: make(chan struct{})}
}

func (m *mockViewer) Run() error {
	close(m.started)
	<-m.closed
	return m.runErr
}

func (m *mockViewer) Close() {
	m.closeCalls.Add(1)
	m.once.Do(func() { close(m.closed) })
}

// mockProducer runs fn, or blocks until the signal or ctx ends when fn is nil.
type mockProducer struct {
	signal *Signal
	fn     func(ctx context.Context) error
}

func (m *mockProducer) Run(ctx context.Context) error {
	if m.fn != nil {
		return m.fn(ctx)
	}
	select {
	case <-m.signal.Done():
	case <-ctx.Done():
	}
	return nil
}

func runWithTimeout(t *testing.T, fn func() error) error {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- fn() }()
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not return")
		return nil
	}
}

func TestSignalIsOneWay(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.IsSet())

	assert.True(t, s.Set())
	assert.False(t, s.Set(), "second Set is a no-op")
	assert.True(t, s.IsSet())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Set")
	}
}

func TestSignalConcurrentSet(t *testing.T) {
	s := NewSignal()
	var transitions atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Set() {
				transitions.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), transitions.Load())
}

func TestCoordinatorViewerClosedByUser(t *testing.T) {
	signal := NewSignal()
	viewer := newMockViewer()
	producer := &mockProducer{signal: signal}

	go func() {
		<-viewer.started
		viewer.Close()
	}()

	err := runWithTimeout(t, func() error {
		return NewCoordinator(signal, nil).Run(context.Background(), producer, viewer)
	})
	require.NoError(t, err)
	assert.True(t, signal.IsSet())
}

func TestCoordinatorProducerFatalError(t *testing.T) {
	signal := NewSignal()
	viewer := newMockViewer()
	deviceErr := errors.New("device disconnected")
	producer := &mockProducer{signal: signal, fn: func(ctx context.Context) error {
		signal.Set()
		return deviceErr
	}}

	err := runWithTimeout(t, func() error {
		return NewCoordinator(signal, nil).Run(context.Background(), producer, viewer)
	})
	require.ErrorIs(t, err, deviceErr)
	assert.True(t, signal.IsSet())
	assert.GreaterOrEqual(t, viewer.closeCalls.Load(), int32(1))
}

func TestCoordinatorContextCancelled(t *testing.T) {
	signal := NewSignal()
	viewer := newMockViewer()
	producer := &mockProducer{signal: signal}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-viewer.started
		cancel()
	}()

	err := runWithTimeout(t, func() error {
		return NewCoordinator(signal, nil).Run(ctx, producer, viewer)
	})
	require.NoError(t, err)
	assert.True(t, signal.IsSet())
}

func TestCoordinatorClosesViewerExactlyOnce(t *testing.T) {
	signal := NewSignal()
	viewer := newMockViewer()
	producer := &mockProducer{signal: signal, fn: func(ctx context.Context) error {
		signal.Set()
		<-ctx.Done()
		return nil
	}}

	err := runWithTimeout(t, func() error {
		return NewCoordinator(signal, nil).Run(context.Background(), producer, viewer)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), viewer.closeCalls.Load())
}

func TestCoordinatorReportsViewerError(t *testing.T) {
	signal := NewSignal()
	viewer := newMockViewer()
	viewer.runErr = errors.New("listen failed")
	producer := &mockProducer{signal: signal}

	go func() {
		<-viewer.started
		viewer.Close()
	}()

	err := runWithTimeout(t, func() error {
		return NewCoordinator(signal, nil).Run(context.Background(), producer, viewer)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen failed")
}
