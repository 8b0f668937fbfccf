package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/switchyard/pkg/server"
)

// Options configures the admin surface.
type Options struct {
	// Gatherer is the metrics source for /metrics.
	// Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	// TailBuffer is the number of events queued per tail client.
	TailBuffer int

	// Logger defaults to slog.Default() with component=admin.
	Logger *slog.Logger
}

// Admin serves operational endpoints for a server:
//
//	GET /healthz       liveness
//	GET /metrics       Prometheus exposition
//	GET /debug/info    routes, handler names, after listeners, in-flight count
//	GET /debug/routes  registered routes
//	GET /debug/tail    websocket stream of retired requests
type Admin struct {
	srv    *server.Server
	tail   *Tail
	router chi.Router
	logger *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New builds the admin surface for srv.
func New(srv *server.Server, opts Options) *Admin {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "admin")
	}

	a := &Admin{
		srv:    srv,
		tail:   NewTail(srv, opts.TailBuffer, opts.Logger),
		logger: opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Route("/debug", func(r chi.Router) {
		r.Get("/info", a.handleInfo)
		r.Get("/routes", a.handleRoutes)
		r.Method(http.MethodGet, "/tail", a.tail)
	})
	a.router = r
	return a
}

// Handler returns the admin HTTP handler.
func (a *Admin) Handler() http.Handler {
	return a.router
}

// Tail returns the after-event tail.
func (a *Admin) Tail() *Tail {
	return a.tail
}

func (a *Admin) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.srv.DebugInfo())
}

func (a *Admin) handleRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.srv.Routes())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Listen binds addr and serves the admin surface in the background.
func (a *Admin) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "admin: listen %s", addr)
	}

	hs := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelError),
	}
	a.mu.Lock()
	a.httpServer = hs
	a.listener = ln
	a.mu.Unlock()

	a.logger.Info("admin listening", "address", ln.Addr().String())
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin serve error", "error", err)
		}
	}()
	return nil
}

// Address returns the bound admin address, or "" before Listen.
func (a *Admin) Address() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Shutdown disconnects tail clients and stops the admin listener.
func (a *Admin) Shutdown(ctx context.Context) error {
	a.tail.Close()

	a.mu.Lock()
	hs := a.httpServer
	a.mu.Unlock()
	if hs == nil {
		return nil
	}
	return errors.WithStack(hs.Shutdown(ctx))
}
