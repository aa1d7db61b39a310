package camera

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// frame kinds scripted for fakeReader.
const (
	good = iota
	empty
	broken
)

// fakeReader plays back a script of frame kinds and then reports a broken device.
type fakeReader struct {
	mu     sync.Mutex
	script []int
	reads  int
	closed bool
}

func (r *fakeReader) Read(m *gocv.Mat) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind := broken
	if r.reads < len(r.script) {
		kind = r.script[r.reads]
	}
	r.reads++

	switch kind {
	case good:
		src := gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8UC3)
		defer src.Close()
		src.CopyTo(m)
		return true
	case empty:
		return true
	default:
		return false
	}
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func repeat(kind, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = kind
	}
	return out
}

func testSource(cfg Config, r *fakeReader) *Source {
	if cfg.Device == "" {
		cfg.Device = "0"
	}
	return newSource(cfg, r, slog.New(slog.DiscardHandler))
}

func TestNextReturnsFrame(t *testing.T) {
	src := testSource(Config{MaxEmptyReads: 10}, &fakeReader{script: []int{good}})
	defer src.Close()

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	defer frame.Close()
	assert.Equal(t, 4, frame.Rows())
	assert.Equal(t, 6, frame.Cols())
}

func TestNextSkipsEmptyFrames(t *testing.T) {
	r := &fakeReader{script: []int{empty, good}}
	src := testSource(Config{MaxEmptyReads: 10}, r)
	defer src.Close()

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	defer frame.Close()
	assert.False(t, frame.Empty())
	assert.Equal(t, 2, r.Reads())
}

func TestNextFailsAfterTooManyEmptyFrames(t *testing.T) {
	r := &fakeReader{script: append(repeat(empty, 11), good)}
	src := testSource(Config{MaxEmptyReads: 10}, r)
	defer src.Close()

	frame, err := src.Next(context.Background())
	assert.Nil(t, frame)
	assert.True(t, errors.Is(err, ErrEmptyFrames), "got %v", err)
	assert.Equal(t, 11, r.Reads())
}

func TestNextToleratesEmptyFramesUpToLimit(t *testing.T) {
	r := &fakeReader{script: append(repeat(empty, 10), good)}
	src := testSource(Config{MaxEmptyReads: 10}, r)
	defer src.Close()

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	defer frame.Close()
	assert.Equal(t, 11, r.Reads())
}

func TestNextReadFailure(t *testing.T) {
	src := testSource(Config{}, &fakeReader{script: []int{broken}})
	defer src.Close()

	_, err := src.Next(context.Background())
	assert.True(t, errors.Is(err, ErrReadFailed), "got %v", err)
}

func TestNextCancelledWhileWaitingForTick(t *testing.T) {
	r := &fakeReader{script: []int{good}}
	src := testSource(Config{FPS: 0.1}, r)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	start := time.Now()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, r.Reads(), "no frame is read before the tick")
}

func TestNextAfterClose(t *testing.T) {
	r := &fakeReader{script: []int{good}}
	src := testSource(Config{}, r)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, r.closed)
}

func TestNextResizes(t *testing.T) {
	src := testSource(Config{ResizeWidth: 3, ResizeHeight: 2}, &fakeReader{script: []int{good}})
	defer src.Close()

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	defer frame.Close()
	assert.Equal(t, 2, frame.Rows())
	assert.Equal(t, 3, frame.Cols())
}

func TestParseDevice(t *testing.T) {
	assert.Equal(t, 0, parseDevice("0"))
	assert.Equal(t, 2, parseDevice(" 2 "))
	assert.Equal(t, "/videos/face.mp4", parseDevice("/videos/face.mp4"))
	assert.Equal(t, "rtsp://cam.local/stream", parseDevice("rtsp://cam.local/stream"))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing device", mutate: func(c *Config) { c.Device = " " }, wantErr: true},
		{name: "negative fps", mutate: func(c *Config) { c.FPS = -1 }, wantErr: true},
		{name: "unpaced", mutate: func(c *Config) { c.FPS = 0 }},
		{name: "half resize", mutate: func(c *Config) { c.ResizeWidth = 320 }, wantErr: true},
		{name: "full resize", mutate: func(c *Config) { c.ResizeWidth, c.ResizeHeight = 320, 240 }},
		{name: "negative size", mutate: func(c *Config) { c.Width = -640 }, wantErr: true},
		{name: "negative empty reads", mutate: func(c *Config) { c.MaxEmptyReads = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestInterval(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, Config{FPS: 2}.Interval())
	assert.Equal(t, time.Second, Config{FPS: 1}.Interval())
	assert.Zero(t, Config{}.Interval())
}
