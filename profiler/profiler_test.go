package profiler

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCollector map[string]float64

func (s staticCollector) CollectMetrics() map[string]float64 { return s }

func TestOperationTimings(t *testing.T) {
	rp, err := NewRuntimeProfiler(ProfilingOptions{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		stop := rp.StartOperation("classify")
		time.Sleep(time.Millisecond)
		stop()
	}

	stats := rp.Snapshot()
	require.Contains(t, stats, "classify")
	assert.Equal(t, int64(3), stats["classify"].Count)
	assert.GreaterOrEqual(t, stats["classify"].Min, time.Millisecond)
	assert.LessOrEqual(t, stats["classify"].Min, stats["classify"].Max)
}

func TestPrometheusExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	rp, err := NewRuntimeProfiler(ProfilingOptions{Registerer: reg})
	require.NoError(t, err)

	rp.CountLabel("happiness")
	rp.CountLabel("happiness")
	rp.CountLabel("neutral")
	rp.StartOperation("capture")()

	assert.Equal(t, 3.0, testutil.ToFloat64(rp.frames))
	assert.Equal(t, 2.0, testutil.ToFloat64(rp.labels.WithLabelValues("happiness")))
	assert.Equal(t, map[string]uint64{"happiness": 2, "neutral": 1}, rp.LabelCounts())

	drops := 7.0
	require.NoError(t, rp.RegisterGauge("mailbox_drops_total", "drops", func() float64 { return drops }))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "emojisync_operation_duration_seconds")
	assert.Contains(t, names, "emojisync_labels_total")
	assert.Contains(t, names, "emojisync_mailbox_drops_total")
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRuntimeProfiler(ProfilingOptions{Registerer: reg})
	require.NoError(t, err)

	_, err = NewRuntimeProfiler(ProfilingOptions{Registerer: reg})
	assert.Error(t, err)
}

func TestStartStopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rp, err := NewRuntimeProfiler(ProfilingOptions{
		ReportInterval: 5 * time.Millisecond,
		SampleInterval: time.Millisecond,
		Logger:         logger,
	})
	require.NoError(t, err)
	rp.AddMetricsCollector(staticCollector{"viewer_drops": 4})
	rp.StartOperation("capture")()

	rp.Start()
	rp.Start()
	time.Sleep(30 * time.Millisecond)
	rp.Stop()
	rp.Stop()

	assert.Contains(t, buf.String(), "profiler status")
	assert.Contains(t, buf.String(), "viewer_drops")
}

func TestRecordedMetricsAppearInReport(t *testing.T) {
	var buf bytes.Buffer
	rp, err := NewRuntimeProfiler(ProfilingOptions{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	require.NoError(t, err)

	rp.RecordMetric("label_confidence", 0.5)
	rp.RecordMetric("label_confidence", 0.9)
	rp.AddMetricsCollector(staticCollector{"loop_iterations": 12})
	rp.sample()
	rp.emitStatusReport()

	out := buf.String()
	assert.Contains(t, out, "label_confidence.min=0.5")
	assert.Contains(t, out, "label_confidence.max=0.9")
	assert.Contains(t, out, "loop_iterations.avg=12")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
