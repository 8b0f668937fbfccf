// Package middleware provides observability and traffic plugins for
// switchyard servers.
//
// This package includes:
//   - Prometheus request metrics recorded from the after event
//   - OpenTelemetry tracing with one span per admitted request
//   - An admission handler throttling on the in-flight count
//   - A pre handler redirecting non-canonical paths
//
// # Prometheus Metrics
//
//	srv := server.New(nil)
//	middleware.Prometheus(srv, middleware.WithNamespace("api"))
//
// Then expose metrics, for example on the admin listener:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry
//
// The span starts before routing, so requests that fail to route are
// traced too. Inbound trace context is extracted from the request headers.
//
//	middleware.OpenTelemetry(srv,
//	    middleware.WithTracerName("edge"),
//	    middleware.WithRequestFilter(func(req *server.Request) bool {
//	        return req.Path() != "/healthz"
//	    }),
//	)
//
// Handlers reach the span through SpanFromRequest and propagate it with
// TraceContext.
//
// # Admission and Pre Handlers
//
//	srv.First(middleware.InflightThrottle(srv, middleware.ThrottleConfig{Limit: 512}))
//	srv.Pre(middleware.CanonicalPath(false))
package middleware
