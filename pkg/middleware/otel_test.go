package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/switchyard/pkg/httperr"
	"github.com/vango-dev/switchyard/pkg/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTracedServer(t *testing.T, opts ...OTelOption) (*server.Server, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	srv := newTestServer(t)
	opts = append([]OTelOption{WithTracerProvider(tp)}, opts...)
	OpenTelemetry(srv, opts...)
	return srv, rec
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOpenTelemetry_SpanPerRequest(t *testing.T) {
	srv, rec := newTracedServer(t)
	name := mustRoute(t)(srv.Get("/users/:id", server.Named("show", ok)))

	resp := do(srv, http.MethodGet, "/users/42")
	require.Equal(t, http.StatusOK, resp.Code)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "GET /users/:id", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)

	route, ok := spanAttr(span, "switchyard.route")
	require.True(t, ok)
	assert.Equal(t, name, route.AsString())

	status, ok := spanAttr(span, "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())

	path, ok := spanAttr(span, "url.path")
	require.True(t, ok)
	assert.Equal(t, "/users/42", path.AsString())

	var handlers []string
	for _, ev := range span.Events() {
		require.Equal(t, "handler", ev.Name)
		for _, kv := range ev.Attributes {
			if kv.Key == "switchyard.handler" {
				handlers = append(handlers, kv.Value.AsString())
			}
		}
	}
	assert.Equal(t, []string{"otel", "show"}, handlers)
}

func TestOpenTelemetry_RecordsErrors(t *testing.T) {
	srv, rec := newTracedServer(t)
	mustRoute(t)(srv.Get("/teapot", func(req *server.Request, res *server.Response) error {
		return httperr.New(httperr.KindImATeapot, "short and stout")
	}))

	do(srv, http.MethodGet, "/teapot")
	do(srv, http.MethodGet, "/missing")

	spans := rec.Ended()
	require.Len(t, spans, 2)

	tests := []struct {
		span     sdktrace.ReadOnlySpan
		name     string
		kind     string
		wantCode int64
	}{
		{spans[0], "GET /teapot", httperr.KindImATeapot, http.StatusTeapot},
		{spans[1], "GET /missing", httperr.KindNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.span.Name())
		assert.Equal(t, codes.Error, tt.span.Status().Code)

		kind, ok := spanAttr(tt.span, "error.type")
		require.True(t, ok)
		assert.Equal(t, tt.kind, kind.AsString())

		status, _ := spanAttr(tt.span, "http.response.status_code")
		assert.Equal(t, tt.wantCode, status.AsInt64())

		var exception bool
		for _, ev := range tt.span.Events() {
			if ev.Name == "exception" {
				exception = true
			}
		}
		assert.True(t, exception, "span %s should record the error", tt.name)
	}
}

func TestOpenTelemetry_Filter(t *testing.T) {
	srv, rec := newTracedServer(t, WithRequestFilter(func(req *server.Request) bool {
		return req.Path() != "/healthz"
	}))
	mustRoute(t)(srv.Get("/healthz", ok))
	mustRoute(t)(srv.Get("/work", ok))

	do(srv, http.MethodGet, "/healthz")
	do(srv, http.MethodGet, "/work")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /work", spans[0].Name())
}

func TestOpenTelemetry_ExtractsParentAndExposesSpan(t *testing.T) {
	srv, rec := newTracedServer(t,
		WithPropagator(propagation.TraceContext{}),
		WithAttributeExtractor(func(req *server.Request) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("tenant", req.Header().Get("X-Tenant"))}
		}),
	)

	var inHandler trace.SpanContext
	mustRoute(t)(srv.Get("/work", func(req *server.Request, res *server.Response) error {
		require.NotNil(t, SpanFromRequest(req))
		inHandler = trace.SpanContextFromContext(TraceContext(req))
		return res.Send(http.StatusOK, "ok")
	}))

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	do(srv, http.MethodGet, "/work",
		"traceparent", "00-"+traceID+"-00f067aa0ba902b7-01",
		"X-Tenant", "acme")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, traceID, span.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent().SpanID().String())
	assert.Equal(t, span.SpanContext().SpanID(), inHandler.SpanID())

	tenant, ok := spanAttr(span, "tenant")
	require.True(t, ok)
	assert.Equal(t, "acme", tenant.AsString())
}

func TestOpenTelemetry_UntracedRequestHelpers(t *testing.T) {
	srv := newTestServer(t)

	var span trace.Span
	var ctxMatches bool
	mustRoute(t)(srv.Get("/plain", func(req *server.Request, res *server.Response) error {
		span = SpanFromRequest(req)
		ctxMatches = TraceContext(req) == req.Context()
		return res.Send(http.StatusOK, "ok")
	}))
	do(srv, http.MethodGet, "/plain")

	assert.Nil(t, span)
	assert.True(t, ctxMatches)
}
