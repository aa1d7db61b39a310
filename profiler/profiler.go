// Package profiler tracks pipeline timings and counters, emits periodic status
// reports through slog, and exports the same figures to Prometheus.
package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler provides runtime profiling and monitoring for the pipeline.
//
// Operation timings and label counts are kept in memory for the periodic report
// and mirrored into Prometheus collectors when a Registerer is configured. All
// methods are safe for concurrent use.
type RuntimeProfiler struct {
	// Configuration
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         *slog.Logger

	// State management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	// System metrics
	memStats    runtime.MemStats
	lastGCCount uint32

	// Custom metrics
	customMetrics map[string]*MetricTracker
	collectors    []MetricsCollector
	labelCounts   map[string]uint64

	// Performance tracking
	operationTimes map[string]*TimeTracker

	// Prometheus export
	registerer prometheus.Registerer
	opSeconds  *prometheus.HistogramVec
	labels     *prometheus.CounterVec
	frames     prometheus.Counter
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 10s).
	ReportInterval time.Duration
	// SampleInterval specifies how often registered collectors are sampled (default: 1s).
	SampleInterval time.Duration
	// MaxSamples specifies the maximum number of samples kept per metric (default: 600).
	MaxSamples int
	// Registerer receives the Prometheus collectors. Nil disables export.
	Registerer prometheus.Registerer
	// Logger receives the status reports. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
// - An error if the Prometheus collectors could not be registered
func NewRuntimeProfiler(opts ProfilingOptions) (*RuntimeProfiler, error) {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	rp := &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		labelCounts:    make(map[string]uint64),
		operationTimes: make(map[string]*TimeTracker),
		registerer:     opts.Registerer,
		opSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "emojisync",
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline operations such as frame capture and classification.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		labels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emojisync",
			Name:      "labels_total",
			Help:      "Resolved emotion labels pushed to the viewer.",
		}, []string{"label"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emojisync",
			Name:      "frames_total",
			Help:      "Frames captured and classified.",
		}),
	}

	if rp.registerer != nil {
		for _, c := range []prometheus.Collector{rp.opSeconds, rp.labels, rp.frames} {
			if err := rp.registerer.Register(c); err != nil {
				cancel()
				return nil, err
			}
		}
	}

	return rp, nil
}

// Start begins the sampling and reporting goroutines. Calling Start on a running
// profiler is a no-op.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}

	rp.running = true
	rp.startTime = time.Now()

	rp.wg.Add(2)
	go rp.loop(rp.sampleInterval, rp.sample)
	go rp.loop(rp.reportInterval, rp.emitStatusReport)
}

// Stop stops the profiler and waits for its goroutines to complete.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

func (rp *RuntimeProfiler) loop(interval time.Duration, tick func()) {
	defer rp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// AddMetricsCollector registers a custom metrics collector to be sampled
// periodically.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RegisterGauge exports fn as a Prometheus gauge named emojisync_<name>.
// Without a Registerer it does nothing.
func (rp *RuntimeProfiler) RegisterGauge(name, help string, fn func() float64) error {
	if rp.registerer == nil {
		return nil
	}
	return rp.registerer.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "emojisync",
		Name:      name,
		Help:      help,
	}, fn))
}

// RecordMetric records a custom metric value.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, exists := rp.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{
			values: make([]float64, 0, rp.maxSamples),
			min:    value,
			max:    value,
		}
		rp.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	if len(tracker.values) > rp.maxSamples {
		// Remove oldest sample
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}

	tracker.sum += value
	tracker.count++
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// CountLabel records one resolved label pushed to the viewer.
func (rp *RuntimeProfiler) CountLabel(label string) {
	rp.mu.Lock()
	rp.labelCounts[label]++
	rp.mu.Unlock()

	rp.frames.Inc()
	rp.labels.WithLabelValues(label).Inc()
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start)
		rp.recordOperationTime(name, duration)
		rp.opSeconds.WithLabelValues(name).Observe(duration.Seconds())
	}
}

// recordOperationTime records the completion time of an operation.
func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			minTime: duration,
			maxTime: duration,
		}
		rp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > rp.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++
	tracker.minTime = min(tracker.minTime, duration)
	tracker.maxTime = max(tracker.maxTime, duration)
}

// sample collects memory statistics and values from registered collectors.
func (rp *RuntimeProfiler) sample() {
	rp.mu.RLock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.RUnlock()

	// Collectors run outside the lock; they may call back into the profiler.
	collected := make(map[string]float64)
	for _, collector := range collectors {
		for name, value := range collector.CollectMetrics() {
			collected[name] = value
		}
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	runtime.ReadMemStats(&rp.memStats)
	for name, value := range collected {
		rp.recordMetricLocked(name, value)
	}
}

// emitStatusReport logs a status report of memory, custom metrics and timings.
func (rp *RuntimeProfiler) emitStatusReport() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	attrs := []any{
		slog.Duration("uptime", time.Since(rp.startTime).Truncate(time.Millisecond)),
		slog.Int("goroutines", runtime.NumGoroutine()),
		slog.String("heap_alloc", formatBytes(rp.memStats.HeapAlloc)),
	}
	if rp.memStats.NumGC > rp.lastGCCount {
		attrs = append(attrs, slog.Uint64("gc_new", uint64(rp.memStats.NumGC-rp.lastGCCount)))
		rp.lastGCCount = rp.memStats.NumGC
	}

	for _, name := range sortedKeys(rp.operationTimes) {
		tracker := rp.operationTimes[name]
		if len(tracker.durations) == 0 {
			continue
		}
		avg := tracker.totalTime / time.Duration(len(tracker.durations))
		attrs = append(attrs, slog.Group(name,
			slog.Duration("avg", avg.Truncate(time.Microsecond)),
			slog.Duration("min", tracker.minTime.Truncate(time.Microsecond)),
			slog.Duration("max", tracker.maxTime.Truncate(time.Microsecond)),
			slog.Int64("count", tracker.count),
		))
	}

	for _, name := range sortedKeys(rp.customMetrics) {
		tracker := rp.customMetrics[name]
		if len(tracker.values) == 0 {
			continue
		}
		attrs = append(attrs, slog.Group(name,
			slog.Float64("avg", tracker.sum/float64(len(tracker.values))),
			slog.Float64("min", tracker.min),
			slog.Float64("max", tracker.max),
		))
	}

	if len(rp.labelCounts) > 0 {
		labels := make([]any, 0, len(rp.labelCounts))
		for _, name := range sortedKeys(rp.labelCounts) {
			labels = append(labels, slog.Uint64(name, rp.labelCounts[name]))
		}
		attrs = append(attrs, slog.Group("labels", labels...))
	}

	rp.logger.Info("profiler status", attrs...)
}

// Snapshot returns the current operation counts and average durations.
func (rp *RuntimeProfiler) Snapshot() map[string]OperationStats {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	out := make(map[string]OperationStats, len(rp.operationTimes))
	for name, tracker := range rp.operationTimes {
		stats := OperationStats{Count: tracker.count, Min: tracker.minTime, Max: tracker.maxTime}
		if n := len(tracker.durations); n > 0 {
			stats.Avg = tracker.totalTime / time.Duration(n)
		}
		out[name] = stats
	}
	return out
}

// LabelCounts returns how many times each label was recorded.
func (rp *RuntimeProfiler) LabelCounts() map[string]uint64 {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	out := make(map[string]uint64, len(rp.labelCounts))
	for k, v := range rp.labelCounts {
		out[k] = v
	}
	return out
}

// OperationStats summarises the timings of one operation.
type OperationStats struct {
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
