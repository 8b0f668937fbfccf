package middleware

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vango-dev/switchyard/pkg/httperr"
	"github.com/vango-dev/switchyard/pkg/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for switchyard servers.
const defaultTracerName = "switchyard"

// spanKey is the request value key holding the span context.
const spanKey = "middleware.otel.span"

// OTelConfig configures the OpenTelemetry tracing plugin.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "switchyard").
	TracerName string

	// TracerProvider supplies the tracer. Defaults to the global provider.
	TracerProvider trace.TracerProvider

	// Propagator extracts inbound trace context from request headers.
	// Defaults to the global text map propagator.
	Propagator propagation.TextMapPropagator

	// Filter determines which requests to trace.
	// Return true to trace the request, false to skip.
	// If nil, all requests are traced.
	Filter func(req *server.Request) bool

	// AttributeExtractor extracts custom attributes from the request.
	// Called once when the span starts.
	AttributeExtractor func(req *server.Request) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry tracing plugin.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithPropagator sets the inbound trace context propagator.
func WithPropagator(p propagation.TextMapPropagator) OTelOption {
	return func(c *OTelConfig) {
		c.Propagator = p
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(req *server.Request) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(req *server.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// OpenTelemetry traces every admitted request on srv.
//
// A span starts in a pre handler, is renamed once the route resolves, and
// ends when the request retires. The span records the status code, the
// route name, the handler timers as events and the error the request
// ended with, if any.
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given. Configure it in main() before starting the
// server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	middleware.OpenTelemetry(srv)
func OpenTelemetry(srv *server.Server, opts ...OTelOption) {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	if config.Propagator == nil {
		config.Propagator = otel.GetTextMapPropagator()
	}
	tracer := config.TracerProvider.Tracer(config.TracerName)

	srv.Pre(server.Named("otel", func(req *server.Request, res *server.Response, next server.Next) {
		if config.Filter != nil && !config.Filter(req) {
			next(nil)
			return
		}

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", req.Method()),
			attribute.String("url.path", req.Path()),
			attribute.String("switchyard.request_id", req.ID()),
		}
		if v := req.Version(); v != "" {
			attrs = append(attrs, attribute.String("switchyard.requested_version", v))
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(req)...)
		}

		parent := config.Propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header()))
		spanCtx, _ := tracer.Start(
			parent,
			formatSpanName(req.Method(), req.Path()),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(req.Time()),
		)
		req.Set(spanKey, spanCtx)
		next(nil)
	}))

	srv.OnRouted(func(req *server.Request, res *server.Response, route *server.Route) {
		span := SpanFromRequest(req)
		if span == nil {
			return
		}
		span.SetName(formatSpanName(req.Method(), route.Path))
		span.SetAttributes(
			attribute.String("http.route", route.Path),
			attribute.String("switchyard.route", route.Name),
		)
		if v := req.MatchedVersion(); v != "" {
			span.SetAttributes(attribute.String("switchyard.route_version", v))
		}
	})

	srv.OnAfter(func(req *server.Request, res *server.Response, route *server.Route, err error) {
		span := SpanFromRequest(req)
		if span == nil {
			return
		}
		defer span.End()

		for _, t := range req.Timers() {
			span.AddEvent("handler", trace.WithTimestamp(t.End), trace.WithAttributes(
				attribute.String("switchyard.handler", t.Name),
				attribute.Int64("switchyard.handler_elapsed_us", t.Elapsed.Microseconds()),
			))
		}

		status := res.StatusCode()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", httperr.KindOf(err)))
			span.SetStatus(codes.Error, err.Error())
		case status >= 500:
			span.SetStatus(codes.Error, strconv.Itoa(status))
		default:
			span.SetStatus(codes.Ok, "")
		}
	})
}

// SpanFromRequest retrieves the request's trace span.
// Returns nil if the request is not traced.
//
// Example:
//
//	func MyHandler(req *server.Request, res *server.Response) error {
//	    if span := middleware.SpanFromRequest(req); span != nil {
//	        span.SetAttributes(attribute.Int("my.count", 42))
//	    }
//	    return res.Send(200, "ok")
//	}
func SpanFromRequest(req *server.Request) trace.Span {
	if spanCtx, ok := spanContext(req); ok {
		return trace.SpanFromContext(spanCtx)
	}
	return nil
}

// TraceContext returns the request's context carrying its trace span.
// Use this to propagate trace context to external services.
//
// Example:
//
//	func MyHandler(req *server.Request, res *server.Response) error {
//	    out, _ := http.NewRequestWithContext(middleware.TraceContext(req), "GET", url, nil)
//	    ...
//	}
func TraceContext(req *server.Request) context.Context {
	if spanCtx, ok := spanContext(req); ok {
		return spanCtx
	}
	return req.Context()
}

func spanContext(req *server.Request) (context.Context, bool) {
	v, ok := req.Get(spanKey)
	if !ok {
		return nil, false
	}
	ctx, ok := v.(context.Context)
	return ctx, ok
}

func formatSpanName(method, path string) string {
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s %s", method, path)
}
