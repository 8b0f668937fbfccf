package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-dev/switchyard/pkg/server"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig().
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return server.New(cfg)
}

func do(srv *server.Server, method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func mustRoute(t *testing.T) func(name string, err error) string {
	return func(name string, err error) string {
		t.Helper()
		if err != nil {
			t.Fatalf("route registration failed: %v", err)
		}
		return name
	}
}

func ok(req *server.Request, res *server.Response) error {
	return res.Send(http.StatusOK, "ok")
}
