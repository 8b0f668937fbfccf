package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vango-dev/switchyard/internal/admin"
	"github.com/vango-dev/switchyard/internal/config"
	"github.com/vango-dev/switchyard/pkg/middleware"
	"github.com/vango-dev/switchyard/pkg/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// app is a server assembled from switchyard.json.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	srv      *server.Server
	registry *prometheus.Registry
	admin    *admin.Admin
	tracer   *sdktrace.TracerProvider
}

// loadConfig reads path, or searches from the working directory when path
// is empty. A missing file yields the defaults.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadFromWorkingDir()
	}
	if errors.Is(err, config.ErrNotFound) && path == "" {
		return config.New(), nil
	}
	return cfg, err
}

// newApp wires the server, its plugins and the admin surface.
func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := cfg.Logger(logOut)
	a := &app{
		cfg:      cfg,
		logger:   logger,
		srv:      server.New(cfg.ServerConfig(logger.With("component", "server"))),
		registry: prometheus.NewRegistry(),
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Throttle.Limit > 0 {
		a.srv.First(middleware.InflightThrottle(a.srv, middleware.ThrottleConfig{
			Limit:      cfg.Throttle.Limit,
			RetryAfter: time.Duration(cfg.Throttle.RetryAfter),
		}))
	}
	if cfg.Canonical.Enabled {
		a.srv.Pre(middleware.CanonicalPath(cfg.Canonical.KeepTrailingSlash))
	}
	if cfg.Metrics.Enabled {
		middleware.Prometheus(a.srv,
			middleware.WithRegistry(a.registry),
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithSubsystem(cfg.Metrics.Subsystem),
		)
	}
	if cfg.Tracing.Enabled {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(logOut))
		if err != nil {
			return nil, errors.Wrap(err, "trace exporter")
		}
		a.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
			sdktrace.WithResource(sdkresource.NewSchemaless(
				attribute.String("service.name", serviceName(cfg)),
			)),
		)
		middleware.OpenTelemetry(a.srv,
			middleware.WithTracerProvider(a.tracer),
			middleware.WithTracerName(cfg.Tracing.TracerName),
		)
	}

	a.srv.OnAfter(accessLog(logger.With("component", "access")))

	for _, rc := range cfg.Routes {
		name, err := a.srv.Route(rc.Method, server.RouteSpec{
			Path:    rc.Path,
			Name:    rc.Name,
			Version: rc.Version,
		}, staticHandler(rc))
		if err != nil {
			return nil, errors.Wrapf(err, "route %s", rc)
		}
		logger.Debug("route registered", "name", name, "route", rc.String())
	}

	if cfg.Admin.Enabled {
		a.admin = admin.New(a.srv, admin.Options{
			Gatherer:   a.registry,
			TailBuffer: cfg.Admin.TailBuffer,
			Logger:     logger.With("component", "admin"),
		})
	}

	a.srv.OnClose(a.closeAuxiliary)
	return a, nil
}

// run serves until SIGINT/SIGTERM.
func (a *app) run() error {
	if a.admin != nil {
		if err := a.admin.Listen(a.cfg.Admin.Address); err != nil {
			return err
		}
	}
	return a.srv.Run()
}

// closeAuxiliary stops the admin listener and flushes traces once the
// server has shut down.
func (a *app) closeAuxiliary() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.admin != nil {
		if err := a.admin.Shutdown(ctx); err != nil {
			a.logger.Error("admin shutdown error", "error", err)
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", "error", err)
		}
	}
}

func serviceName(cfg *config.Config) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return "switchyard"
}

// staticHandler answers with the configured response. "{param}" in the
// body is replaced with the matched parameter value.
func staticHandler(rc config.RouteConfig) server.Handler {
	name := rc.Name
	if name == "" {
		name = "static"
	}
	return server.Named(name, func(req *server.Request, res *server.Response) error {
		for k, v := range rc.Headers {
			if err := res.SetHeader(k, v); err != nil {
				return err
			}
		}
		body := rc.Body
		if strings.Contains(body, "{") {
			params := req.Params()
			pairs := make([]string, 0, 2*len(params))
			for k, v := range params {
				pairs = append(pairs, "{"+k+"}", v)
			}
			body = strings.NewReplacer(pairs...).Replace(body)
		}
		return res.Send(rc.Status, body)
	})
}

// accessLog logs every retired request.
func accessLog(logger *slog.Logger) server.AfterListener {
	return func(req *server.Request, res *server.Response, route *server.Route, err error) {
		attrs := []any{
			"request_id", req.ID(),
			"method", req.Method(),
			"path", req.Path(),
			"status", res.StatusCode(),
			"bytes", res.BytesWritten(),
		}
		if route != nil {
			attrs = append(attrs, "route", route.Name)
		}
		if err != nil {
			attrs = append(attrs, "error", err)
			logger.Warn("request", attrs...)
			return
		}
		logger.Info("request", attrs...)
	}
}
