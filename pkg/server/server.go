package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/vango-dev/switchyard/pkg/httperr"
	"github.com/vango-dev/switchyard/pkg/router"
)

// Server routes requests through handler chains.
type Server struct {
	config *Config
	logger *slog.Logger
	clock  clock.Clock

	routes *router.Table[Handler]
	events *eventBus

	// Handler lists, guarded by mu.
	mu     sync.RWMutex
	first  []AdmissionFunc
	pre    []Handler
	use    []Handler
	params []*paramChain

	handlerSeq atomic.Uint64

	// admitMu makes admission and the in-flight increment one step.
	admitMu  sync.Mutex
	inflight atomic.Int64

	// Live requests by sequence number.
	arenaMu sync.Mutex
	arena   map[uint64]*run
	reqSeq  atomic.Uint64

	// HTTP server
	httpServer *http.Server
	listener   net.Listener
	closing    atomic.Bool
	closeOnce  sync.Once
}

type paramChain struct {
	name     string
	handlers []Handler
}

// RouteSpec describes a route beyond its method and handlers.
type RouteSpec struct {
	// Path is the route pattern, e.g. "/users/:id([0-9]+)".
	Path string

	// Name identifies the route. Derived from method and path when empty.
	Name string

	// Version is an optional semantic-version constraint.
	Version string
}

// New creates a new Server with the given configuration.
func New(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	} else {
		config = config.Clone()
	}
	config.fillDefaults()

	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}

	return &Server{
		config: config,
		logger: logger,
		clock:  config.Clock,
		routes: router.NewTable[Handler](
			router.WithIgnoreTrailingSlash(config.IgnoreTrailingSlash),
			router.WithMaxParamLength(config.MaxParamLength),
		),
		events: newEventBus(),
		arena:  make(map[uint64]*run),
	}
}

func (s *Server) nextHandlerSeq() uint64 {
	return s.handlerSeq.Add(1)
}

// First registers admission handlers. They run in registration order
// before the request is counted in-flight; the first to return false
// rejects the request, and later ones do not run.
func (s *Server) First(fns ...AdmissionFunc) {
	for i, fn := range fns {
		if fn == nil {
			panic(programmerError("First", "handler %d is nil", i))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.first = append(s.first, fns...)
}

// Pre registers handlers that run before routing.
func (s *Server) Pre(handlers ...any) {
	hs := toHandlers("Pre", s.nextHandlerSeq, handlers...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre = append(s.pre, hs...)
}

// Use registers handlers that run for every routed request, before the
// route's own handlers.
func (s *Server) Use(handlers ...any) {
	hs := toHandlers("Use", s.nextHandlerSeq, handlers...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.use = append(s.use, hs...)
}

// Param registers handlers that run, once per request, when the matched
// route declares the named parameter. They run before Use handlers.
func (s *Server) Param(name string, handlers ...any) {
	hs := toHandlers("Param", s.nextHandlerSeq, handlers...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.params {
		if p.name == name {
			p.handlers = append(p.handlers, hs...)
			return
		}
	}
	s.params = append(s.params, &paramChain{name: name, handlers: hs})
}

// Route registers handlers for method and spec and returns the route name.
func (s *Server) Route(method string, spec RouteSpec, handlers ...any) (string, error) {
	hs := toHandlers("Route", s.nextHandlerSeq, handlers...)
	if len(hs) == 0 {
		panic(programmerError("Route", "%s %s has no handlers", method, spec.Path))
	}
	name, err := s.routes.Add(router.Spec[Handler]{
		Method:       method,
		Path:         spec.Path,
		Name:         spec.Name,
		Version:      spec.Version,
		Handlers:     hs,
		HandlerNames: handlerNames(hs),
	})
	if err != nil {
		return "", errors.Wrap(err, "server: register route")
	}
	s.logger.Debug("route registered", "name", name, "method", method, "path", spec.Path)
	return name, nil
}

// Get registers a GET route.
func (s *Server) Get(path string, handlers ...any) (string, error) {
	return s.Route(http.MethodGet, RouteSpec{Path: path}, handlers...)
}

// Head registers a HEAD route.
func (s *Server) Head(path string, handlers ...any) (string, error) {
	return s.Route(http.MethodHead, RouteSpec{Path: path}, handlers...)
}

// Post registers a POST route.
func (s *Server) Post(path string, handlers ...any) (string, error) {
	return s.Route(http.MethodPost, RouteSpec{Path: path}, handlers...)
}

// Put registers a PUT route.
func (s *Server) Put(path string, handlers ...any) (string, error) {
	return s.Route(http.MethodPut, RouteSpec{Path: path}, handlers...)
}

// Patch registers a PATCH route.
func (s *Server) Patch(path string, handlers ...any) (string, error) {
	return s.Route(http.MethodPatch, RouteSpec{Path: path}, handlers...)
}

// Del registers a DELETE route.
func (s *Server) Del(path string, handlers ...any) (string, error) {
	return s.Route(http.MethodDelete, RouteSpec{Path: path}, handlers...)
}

// Opts registers an OPTIONS route.
func (s *Server) Opts(path string, handlers ...any) (string, error) {
	return s.Route(http.MethodOptions, RouteSpec{Path: path}, handlers...)
}

// Remove unregisters the named route. It reports whether the route existed.
func (s *Server) Remove(name string) bool {
	return s.routes.Remove(name)
}

func (s *Server) firstHandlers() []AdmissionFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AdmissionFunc(nil), s.first...)
}

func (s *Server) preHandlers() []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Handler(nil), s.pre...)
}

// routeChain assembles param handlers for the parameters route declares,
// then Use handlers, then the route's handlers.
func (s *Server) routeChain(route *Route) []Handler {
	declared := make(map[string]bool)
	for _, name := range route.ParamNames() {
		declared[name] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var chain []Handler
	for _, p := range s.params {
		if declared[p.name] {
			chain = append(chain, p.handlers...)
		}
	}
	chain = append(chain, s.use...)
	return append(chain, route.Handlers...)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, hr *http.Request) {
	seq := s.reqSeq.Add(1)
	req := newRequest(s, hr, seq)
	res := newResponse(w, hr.Method)
	res.setServerHeader(s.config.Name)
	if s.closing.Load() {
		req.setState(ConnClosing)
	}

	r := newRun(s, req, res)
	if !s.admit(r) {
		if !res.HeadersSent() {
			_ = res.SendError(httperr.New(httperr.KindServiceUnavailable, ""))
		}
		_ = res.End()
		return
	}

	go r.drive()

	var timeout <-chan time.Time
	if d := s.config.RequestTimeout; d > 0 {
		t := s.clock.Timer(d)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-r.done:
	case <-hr.Context().Done():
		select {
		case <-r.done:
			return
		default:
		}
		r.close(httperr.RequestClose())
	case <-timeout:
		r.logger.Warn("request timed out", "method", hr.Method, "path", hr.URL.Path)
		r.close(httperr.RequestTimeout())
		panic(http.ErrAbortHandler)
	}
}

// admit runs admission handlers and, if they accept, counts the request
// in-flight, all under one lock.
func (s *Server) admit(r *run) bool {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	for _, fn := range s.firstHandlers() {
		if !fn(r.req, r.res) {
			return false
		}
	}
	s.inflight.Add(1)
	s.arenaMu.Lock()
	s.arena[r.req.seq] = r
	s.arenaMu.Unlock()
	return true
}

func (s *Server) forget(r *run) {
	s.arenaMu.Lock()
	defer s.arenaMu.Unlock()
	delete(s.arena, r.req.seq)
}

// Inflight returns the number of admitted requests not yet retired.
func (s *Server) Inflight() int64 {
	return s.inflight.Load()
}

// Listen binds addr and serves in the background. Use Shutdown or Close
// to stop.
func (s *Server) Listen(addr string) error {
	if s.closing.Load() {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "server: listen on %s", addr)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, ErrServerClosed) {
			s.logger.Error("serve failed", "error", err)
		}
	}()
	return nil
}

// Serve accepts connections on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		MaxHeaderBytes:    s.config.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("server listening", "address", ln.Addr().String())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return ErrServerClosed
	}
	return err
}

// Run listens on Config.Address and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return errors.Wrapf(err, "server: listen on %s", s.config.Address)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, ErrServerClosed) {
			return nil
		}
		return err
	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting connections, marks live requests as closing and
// waits for them to finish, up to Config.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.closing.Store(true)
	s.arenaMu.Lock()
	for _, r := range s.arena {
		r.req.setState(ConnClosing)
	}
	s.arenaMu.Unlock()

	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}
	s.fireClose()
	s.logger.Info("server shutdown complete")
	return err
}

// Close stops the server immediately.
func (s *Server) Close() error {
	s.closing.Store(true)
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	var err error
	if srv != nil {
		err = srv.Close()
	}
	s.fireClose()
	return err
}

func (s *Server) fireClose() {
	s.closeOnce.Do(func() {
		for _, l := range s.events.close.snapshot() {
			l.fn()
		}
	})
}

// Address returns the address the server listens on, or "" before Listen.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the port the server listens on, or 0 before Listen.
func (s *Server) Port() int {
	addr := s.Address()
	if addr == "" {
		return 0
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger sets the server's logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}
