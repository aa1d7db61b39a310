// Package producer runs the capture side of the pipeline: it pulls frames from a
// frame source, classifies them, resolves a label and pushes it to the viewer.
package producer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/nvr-ai/emojisync/emotion"
	"github.com/nvr-ai/emojisync/shutdown"
)

// Frame is a decoded image owned by the loop for one iteration.
type Frame interface {
	Close() error
}

// Source yields frames at the device cadence.
type Source[F Frame] interface {
	Next(ctx context.Context) (F, error)
}

// Classifier scores the emotions of the dominant face in a frame. It returns an
// error wrapping emotion.ErrNoFace when the frame has no face.
type Classifier[F Frame] interface {
	Classify(ctx context.Context, frame F) (emotion.Scores, error)
}

// Pusher receives resolved labels. viewer.Viewer satisfies it.
type Pusher interface {
	Push(label emotion.Emotion)
}

// Recorder receives timings, label counts and per-frame values.
// *profiler.RuntimeProfiler satisfies it.
type Recorder interface {
	StartOperation(name string) func()
	CountLabel(label string)
	RecordMetric(name string, value float64)
}

// ConfidenceMetric is the score of the resolved label, recorded for frames
// with a face.
const ConfidenceMetric = "label_confidence"

// Option configures a Loop.
type Option func(*settings)

type settings struct {
	logger   *slog.Logger
	recorder Recorder
}

// WithLogger sets the logger used by the loop.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithRecorder sets where operation timings and label counts are recorded.
func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

// Loop is the producer loop. It is driven by a single goroutine calling Run.
type Loop[F Frame] struct {
	source     Source[F]
	classifier Classifier[F]
	viewer     Pusher
	signal     *shutdown.Signal
	logger     *slog.Logger
	recorder   Recorder

	iterations atomic.Uint64
	last       emotion.Emotion
}

// New builds a producer loop.
func New[F Frame](source Source[F], classifier Classifier[F], viewer Pusher, signal *shutdown.Signal, opts ...Option) *Loop[F] {
	s := settings{logger: slog.Default(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&s)
	}
	return &Loop[F]{
		source:     source,
		classifier: classifier,
		viewer:     viewer,
		signal:     signal,
		logger:     s.logger,
		recorder:   s.recorder,
	}
}

// Run repeats capture → classify → resolve → push until the shutdown signal is
// set or ctx is cancelled, in which case it returns nil.
//
// The signal is checked once per iteration, so after it is set the loop performs
// at most the frame read already in flight. A frame source failure or an
// unexpected classifier failure sets the signal and is returned as a
// *DeviceError or *ClassificationError.
func (l *Loop[F]) Run(ctx context.Context) error {
	l.logger.Info("producer loop started")
	for {
		if l.signal.IsSet() {
			l.logger.Info("producer loop stopped", slog.Uint64("iterations", l.iterations.Load()))
			return nil
		}
		if ctx.Err() != nil {
			l.signal.Set()
			continue
		}

		if err := l.step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				l.signal.Set()
				continue
			}
			l.signal.Set()
			l.logger.Error("producer loop failed", slog.String("error", err.Error()),
				slog.Uint64("iterations", l.iterations.Load()))
			return err
		}
	}
}

// step runs one iteration. The frame never outlives it.
func (l *Loop[F]) step(ctx context.Context) error {
	stop := l.recorder.StartOperation("capture")
	frame, err := l.source.Next(ctx)
	stop()
	if err != nil {
		return &DeviceError{Err: err}
	}
	defer func() {
		if err := frame.Close(); err != nil {
			l.logger.Debug("frame release failed", slog.String("error", err.Error()))
		}
	}()

	stop = l.recorder.StartOperation("classify")
	scores, err := l.classifier.Classify(ctx, frame)
	stop()
	switch {
	case errors.Is(err, emotion.ErrNoFace):
		scores = emotion.NoFace()
	case err != nil:
		return &ClassificationError{Err: err}
	}

	label := emotion.Resolve(scores)
	l.viewer.Push(label)
	l.recorder.CountLabel(string(label))
	if !scores.IsNoFace() {
		l.recorder.RecordMetric(ConfidenceMetric, scores[label])
	}

	n := l.iterations.Add(1)
	if label != l.last {
		l.logger.Info("emotion changed", slog.String("from", string(l.last)), slog.String("to", string(label)),
			slog.Uint64("iteration", n))
		l.last = label
	} else {
		l.logger.Debug("emotion resolved", slog.String("label", string(label)), slog.Uint64("iteration", n))
	}
	return nil
}

// Iterations returns the number of completed iterations.
func (l *Loop[F]) Iterations() uint64 {
	return l.iterations.Load()
}

// CollectMetrics reports the iteration count to a profiler.
func (l *Loop[F]) CollectMetrics() map[string]float64 {
	return map[string]float64{"loop_iterations": float64(l.iterations.Load())}
}

type nopRecorder struct{}

func (nopRecorder) StartOperation(string) func() { return func() {} }
func (nopRecorder) CountLabel(string)            {}
func (nopRecorder) RecordMetric(string, float64) {}
