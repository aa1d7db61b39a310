package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image/color"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"

	"github.com/nvr-ai/emojisync/emotion"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>{{.Title}}</title>
<style>
  html, body { height: 100%; margin: 0; background: {{.Background}}; color: {{.Foreground}}; }
  #wrap { height: 100%; display: flex; align-items: center; justify-content: center; padding: {{.Padding}}px; box-sizing: border-box; }
  #emoji { font-family: {{.FontFamily}}; font-size: {{.FontSize}}px; line-height: 1; user-select: none; white-space: pre; }
</style>
</head>
<body>
  <div id="wrap"><div id="emoji">{{.Text}}</div></div>
<script>
  (function() {
    const el = document.getElementById('emoji');
    const embedded = typeof window.emojisyncText === 'function';
    let seq = {{.Seq}};
    async function latest() {
      if (embedded) {
        return window.emojisyncText();
      }
      const res = await fetch('/api/text', { cache: 'no-store' });
      return res.json();
    }
    function requestClose() {
      if (embedded) {
        window.emojisyncClose();
      } else {
        navigator.sendBeacon('/api/close');
      }
    }
    setInterval(async function() {
      try {
        const body = await latest();
        if (body.seq !== seq) {
          el.textContent = body.text;
          seq = body.seq;
        }
      } catch (e) {}
    }, {{.PollMillis}});
    document.addEventListener('keydown', function(ev) {
      if (ev.key === 'Escape') {
        requestClose();
      }
    });
    // Closing the tab stops the viewer.
    window.addEventListener('pagehide', function() {
      if (!embedded) {
        navigator.sendBeacon('/api/close');
      }
    });
  })();
</script>
</body>
</html>`))

type pageData struct {
	Title      string
	Background string
	Foreground string
	FontFamily string
	FontSize   int
	Padding    int
	PollMillis int64
	Text       string
	Seq        uint64
}

// TextResponse is the body of GET /api/text.
type TextResponse struct {
	Text  string          `json:"text"`
	Label emotion.Emotion `json:"label"`
	Seq   uint64          `json:"seq"`
}

// Host is a native window embedding web content. webview_go's WebView
// satisfies it. All methods except Terminate and Dispatch are called from the
// goroutine running Web.Run, which is locked to its OS thread.
type Host interface {
	// Bind exposes fn to the page as a global JavaScript function.
	Bind(name string, fn any) error
	Navigate(url string)
	// Run blocks in the event loop until Terminate or the user closes the window.
	Run()
	// Terminate stops Run. Safe from any goroutine.
	Terminate()
	// Dispatch queues fn on the event loop. Safe from any goroutine.
	Dispatch(fn func())
	Destroy()
}

// HostFactory opens a Host for cfg.
type HostFactory func(cfg Config) (Host, error)

// Names of the functions bound into the embedded page.
const (
	bindText  = "emojisyncText"
	bindClose = "emojisyncClose"
)

// Web renders the glyph page. With a HostFactory the page runs in an embedded
// webview window and reads glyphs through bound functions; otherwise it is
// served to an external browser that polls /api/text. Both modes keep the
// HTTP server for /healthz, /metrics and /api/close.
type Web struct {
	cfg     Config
	logger  *slog.Logger
	lc      *lifecycle
	mux     *http.ServeMux
	newHost HostFactory

	mu       sync.RWMutex
	current  TextResponse
	addr     string
	host     Host
	serveErr error

	ready     chan struct{}
	readyOnce sync.Once
}

// NewWeb builds a web viewer. The listener and the webview are opened by Run.
func NewWeb(cfg Config, opts ...Option) *Web {
	s := newSettings(opts)
	if cfg.Backend == "" {
		cfg.Backend = BackendWeb
	}
	w := &Web{
		cfg:     cfg.withDefaults(),
		logger:  s.logger.With(slog.String("viewer", BackendWeb)),
		lc:      newLifecycle(),
		mux:     http.NewServeMux(),
		newHost: s.host,
		ready:   make(chan struct{}),
	}
	if w.cfg.Browser {
		w.newHost = nil
	}

	w.mux.HandleFunc("GET /{$}", w.handlePage)
	w.mux.Handle("GET /api/text", cors(http.HandlerFunc(w.handleText)))
	w.mux.Handle("/api/close", cors(http.HandlerFunc(w.handleClose)))
	w.mux.HandleFunc("GET /healthz", w.handleHealth)
	if s.gatherer != nil {
		w.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	for pattern, h := range s.handlers {
		w.mux.Handle(pattern, h)
	}
	return w
}

func (w *Web) Push(label emotion.Emotion) {
	if w.lc.isClosed() {
		return
	}
	glyph := w.cfg.Glyphs.Lookup(label)
	w.mu.Lock()
	w.current = TextResponse{Text: glyph, Label: label, Seq: w.current.Seq + 1}
	w.mu.Unlock()
}

// CollectMetrics reports how many labels were pushed to a profiler.
func (w *Web) CollectMetrics() map[string]float64 {
	return map[string]float64{"viewer_updates": float64(w.snapshot().Seq)}
}

// Run listens on cfg.Addr, then either runs the embedded window on the
// calling goroutine or serves until Close.
func (w *Web) Run() error {
	ok, err := w.lc.start()
	if !ok {
		if err == nil {
			w.markReady()
		}
		return err
	}

	ln, err := net.Listen("tcp", w.cfg.Addr)
	if err != nil {
		w.Close()
		w.markReady()
		return fmt.Errorf("listen %s: %w", w.cfg.Addr, err)
	}
	srv := &http.Server{Handler: w.mux, ReadHeaderTimeout: w.cfg.ShutdownTimeout}

	w.mu.Lock()
	w.addr = ln.Addr().String()
	w.mu.Unlock()
	w.markReady()

	w.logger.Info("web viewer listening", slog.String("url", w.URL()), slog.Bool("embedded", w.newHost != nil))

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.mu.Lock()
			w.serveErr = fmt.Errorf("serve: %w", err)
			w.mu.Unlock()
			w.Close()
		}
	}()

	var runErr error
	if w.newHost != nil {
		runErr = w.runEmbedded()
	} else {
		<-w.lc.closed
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		w.logger.Warn("viewer teardown failed", slog.String("error", err.Error()))
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if runErr != nil {
		return runErr
	}
	return w.serveErr
}

// runEmbedded opens the webview, blocks in its event loop and closes the
// viewer when the window goes away.
func (w *Web) runEmbedded() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	host, err := w.newHost(w.cfg)
	if err != nil {
		w.Close()
		return fmt.Errorf("open webview %q: %w", w.cfg.Title, err)
	}
	defer host.Destroy()

	if err := host.Bind(bindText, w.snapshot); err != nil {
		w.Close()
		return fmt.Errorf("bind %s: %w", bindText, err)
	}
	if err := host.Bind(bindClose, w.Close); err != nil {
		w.Close()
		return fmt.Errorf("bind %s: %w", bindClose, err)
	}

	w.mu.Lock()
	w.host = host
	w.mu.Unlock()

	host.Navigate(w.URL())
	// Covers a Close that raced with opening the window.
	host.Dispatch(func() {
		if w.lc.isClosed() {
			host.Terminate()
		}
	})
	host.Run()

	w.mu.Lock()
	w.host = nil
	w.mu.Unlock()

	if !w.lc.isClosed() {
		w.logger.Info("webview closed by user")
	}
	w.Close()
	return nil
}

// Close stops Run, terminating the embedded window if one is open.
func (w *Web) Close() {
	if !w.lc.close() {
		return
	}
	w.logger.Debug("web viewer close requested")
	w.mu.RLock()
	host := w.host
	w.mu.RUnlock()
	if host != nil {
		host.Terminate()
	}
}

// State returns the lifecycle state.
func (w *Web) State() State {
	return w.lc.current()
}

func (w *Web) markReady() {
	w.readyOnce.Do(func() { close(w.ready) })
}

// Ready is closed once Run is listening, or has failed to. Addr is empty
// after a failure.
func (w *Web) Ready() <-chan struct{} {
	return w.ready
}

// Addr returns the bound listen address, empty before Ready.
func (w *Web) Addr() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.addr
}

// URL returns the page URL, empty before Ready.
func (w *Web) URL() string {
	addr := w.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr + "/"
}

// Handler exposes the routes without a listener.
func (w *Web) Handler() http.Handler {
	return w.mux
}

func (w *Web) snapshot() TextResponse {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Web) handlePage(rw http.ResponseWriter, r *http.Request) {
	cur := w.snapshot()
	data := pageData{
		Title:      w.cfg.Title,
		Background: hexColor(w.cfg.BackgroundColor),
		Foreground: hexColor(w.cfg.TextColor),
		FontFamily: w.cfg.FontFamily,
		FontSize:   w.cfg.FontSize,
		Padding:    w.cfg.Padding,
		PollMillis: w.cfg.PollInterval.Milliseconds(),
		Text:       cur.Text,
		Seq:        cur.Seq,
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(rw, data); err != nil {
		w.logger.Error("render page", slog.String("error", err.Error()))
	}
}

func (w *Web) handleText(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(rw).Encode(w.snapshot()); err != nil {
		w.logger.Debug("write text response", slog.String("error", err.Error()))
	}
}

func (w *Web) handleClose(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.logger.Info("close requested by page", slog.String("remote", r.RemoteAddr))
	w.Close()
	rw.WriteHeader(http.StatusNoContent)
}

func (w *Web) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if w.lc.isClosed() {
		status = http.StatusServiceUnavailable
	}
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(map[string]string{"state": w.State().String()})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
