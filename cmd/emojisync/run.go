package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nvr-ai/emojisync/camera"
	"github.com/nvr-ai/emojisync/classifier"
	"github.com/nvr-ai/emojisync/producer"
	"github.com/nvr-ai/emojisync/profiler"
	"github.com/nvr-ai/emojisync/shutdown"
	"github.com/nvr-ai/emojisync/viewer"
	"github.com/nvr-ai/emojisync/viewer/highgui"
	"github.com/nvr-ai/emojisync/viewer/webview"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

func runCmd(a *app) *cobra.Command {
	var (
		backend  string
		device   string
		fps      float64
		announce bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture the camera and show the dominant emotion as an emoji",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("backend") {
				a.cfg.Viewer.Backend = backend
			}
			if flags.Changed("device") {
				a.cfg.Camera.Device = device
			}
			if flags.Changed("fps") {
				a.cfg.Camera.FPS = fps
			}
			if flags.Changed("announce") {
				a.cfg.Status.Announce = announce
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "", "Viewer backend (window, tk, web)")
	cmd.Flags().StringVarP(&device, "device", "d", "", "Camera device index or video path")
	cmd.Flags().Float64Var(&fps, "fps", 0, "Frames classified per second")
	cmd.Flags().BoolVar(&announce, "announce", false, "Set the Bluesky live status before starting")
	return cmd
}

func runPipeline(ctx context.Context, a *app) error {
	logger := a.logger
	fmt.Println("🎭 EmojiSync")
	fmt.Println("============")

	vcfg, err := a.cfg.ViewerSettings()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var prof *profiler.RuntimeProfiler
	if a.cfg.Profiler.Enabled {
		prof, err = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
			ReportInterval: a.cfg.Profiler.ReportInterval,
			SampleInterval: a.cfg.Profiler.SampleInterval,
			MaxSamples:     a.cfg.Profiler.MaxSamples,
			Registerer:     registry,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create profiler: %w", err)
		}
		prof.Start()
		defer prof.Stop()
	}

	clf, err := classifier.New(classifierConfig(a.cfg.Classifier), logger)
	if err != nil {
		return err
	}
	defer clf.Close()
	fmt.Printf("✅ Model loaded: %s\n", a.cfg.Classifier.Model)

	src, err := camera.Open(cameraConfig(a.cfg.Camera), logger)
	if err != nil {
		return err
	}
	defer src.Close()
	fmt.Printf("📷 Camera %s at %.1f fps\n", a.cfg.Camera.Device, a.cfg.Camera.FPS)

	v, err := viewer.New(vcfg, highgui.Open,
		viewer.WithHost(webview.Open),
		viewer.WithLogger(logger),
		viewer.WithGatherer(registry),
	)
	if err != nil {
		return err
	}

	if w, ok := v.(*viewer.Window); ok {
		if prof != nil {
			err := prof.RegisterGauge("mailbox_drops_total", "Labels replaced before the viewer displayed them.",
				func() float64 { return float64(w.Drops()) })
			if err != nil {
				return fmt.Errorf("failed to register mailbox gauge: %w", err)
			}
		}
		if addr := a.cfg.Profiler.MetricsAddr; addr != "" {
			stop, err := serveMetrics(addr, registry, logger)
			if err != nil {
				return err
			}
			defer stop()
		}
	}
	if web, ok := v.(*viewer.Web); ok && vcfg.Browser {
		go func() {
			select {
			case <-web.Ready():
				fmt.Printf("🌐 Viewer at %s\n", web.URL())
			case <-ctx.Done():
			}
		}()
	}

	if a.cfg.Status.Announce {
		ref, err := announce(ctx, a.cfg.Status, logger)
		switch {
		case err != nil:
			logger.Warn("live status announcement failed", slog.String("error", err.Error()))
		case ref != nil:
			fmt.Printf("📣 Live status set: %s\n", ref.URI)
		}
	}

	signal := shutdown.NewSignal()
	opts := []producer.Option{producer.WithLogger(logger)}
	if prof != nil {
		opts = append(opts, producer.WithRecorder(prof))
	}
	loop := producer.New[*gocv.Mat](src, clf, v, signal, opts...)
	if prof != nil {
		prof.AddMetricsCollector(loop)
		if c, ok := v.(profiler.MetricsCollector); ok {
			prof.AddMetricsCollector(c)
		}
	}

	fmt.Println("▶️  Running, close the viewer or press Ctrl+C to stop")
	start := time.Now()
	err = shutdown.NewCoordinator(signal, logger).Run(ctx, loop, v)

	fmt.Printf("⏹️  Stopped after %s, %d frames\n", time.Since(start).Round(time.Second), loop.Iterations())
	if prof != nil {
		for label, n := range prof.LabelCounts() {
			fmt.Printf("   %-10s %d\n", label, n)
		}
	}

	var deviceErr *producer.DeviceError
	if errors.As(err, &deviceErr) {
		fmt.Println("❌ Camera failed, check the device and try again")
	}
	return err
}

// serveMetrics exposes the registry on addr and returns a function that stops the server.
func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
