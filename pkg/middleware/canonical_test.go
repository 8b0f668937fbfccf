package middleware

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/vango-dev/switchyard/pkg/httperr"
)

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		name         string
		keepTrailing bool
		target       string
		wantCode     int
		wantLocation string
	}{
		{"canonical passes", false, "/a/b", http.StatusOK, ""},
		{"double slash", false, "/a//b", http.StatusPermanentRedirect, "/a/b"},
		{"dot segments", false, "/a/./x/../b", http.StatusPermanentRedirect, "/a/b"},
		{"trailing slash removed", false, "/a/b/", http.StatusPermanentRedirect, "/a/b"},
		{"query preserved", false, "/a//b?x=1&y=2", http.StatusPermanentRedirect, "/a/b?x=1&y=2"},
		{"trailing slash kept", true, "/a/b/", http.StatusOK, ""},
		{"trailing slash kept after cleanup", true, "/a//b/", http.StatusPermanentRedirect, "/a/b/"},
		{"escapes root", false, "/a/../../b", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.Pre(CanonicalPath(tt.keepTrailing))
			mustRoute(t)(srv.Get("/a/b", ok))
			mustRoute(t)(srv.Get("/a/b/", ok))

			rec := do(srv, http.MethodGet, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("GET %s status=%d, want %d (body %q)", tt.target, rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := rec.Header().Get("Location"); got != tt.wantLocation {
				t.Fatalf("GET %s Location=%q, want %q", tt.target, got, tt.wantLocation)
			}
			if tt.wantCode == http.StatusBadRequest {
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body["code"] != httperr.KindBadRequest {
					t.Fatalf("code=%q, want %q", body["code"], httperr.KindBadRequest)
				}
			}
		})
	}
}
