package router

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

type testHandler string

func mustAdd(t *testing.T, tbl *Table[testHandler], spec Spec[testHandler]) string {
	t.Helper()
	name, err := tbl.Add(spec)
	if err != nil {
		t.Fatalf("Add(%s %s) error: %v", spec.Method, spec.Path, err)
	}
	return name
}

func TestResolveMatched(t *testing.T) {
	tbl := NewTable[testHandler]()
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/", Handlers: []testHandler{"index"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/foo/:id", Handlers: []testHandler{"show"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/foo/new", Handlers: []testHandler{"new"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/files/*path", Handlers: []testHandler{"files"}})

	tests := []struct {
		path    string
		handler testHandler
		params  map[string]string
	}{
		{"/", "index", map[string]string{}},
		{"/foo/bar", "show", map[string]string{"id": "bar"}},
		{"/foo/new", "new", map[string]string{}},
		{"/foo/hello%20world", "show", map[string]string{"id": "hello world"}},
		{"/files/a/b/c.txt", "files", map[string]string{"path": "a/b/c.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := tbl.Resolve("GET", tt.path, "")
			if res.Kind != Matched {
				t.Fatalf("Resolve(%q) kind = %v, want Matched", tt.path, res.Kind)
			}
			if got := res.Route.Handlers[0]; got != tt.handler {
				t.Errorf("handler = %q, want %q", got, tt.handler)
			}
			if !reflect.DeepEqual(map[string]string(res.Params), tt.params) {
				t.Errorf("params = %v, want %v", res.Params, tt.params)
			}
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	tbl := NewTable[testHandler]()
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/foo/:id"})

	for _, path := range []string{"/", "/bar", "/foo", "/foo/1/2", "/foo/"} {
		if res := tbl.Resolve("GET", path, ""); res.Kind != NotFound {
			t.Errorf("Resolve(%q) kind = %v, want NotFound", path, res.Kind)
		}
	}
}

func TestResolveWrongMethod(t *testing.T) {
	tbl := NewTable[testHandler]()
	mustAdd(t, tbl, Spec[testHandler]{Method: "put", Path: "/items/:id"})
	mustAdd(t, tbl, Spec[testHandler]{Method: "POST", Path: "/items/:id"})
	mustAdd(t, tbl, Spec[testHandler]{Method: "DELETE", Path: "/items/special"})

	res := tbl.Resolve("GET", "/items/7", "")
	if res.Kind != WrongMethod {
		t.Fatalf("kind = %v, want WrongMethod", res.Kind)
	}
	if want := []string{"POST", "PUT"}; !reflect.DeepEqual(res.Allowed, want) {
		t.Errorf("Allowed = %v, want %v", res.Allowed, want)
	}

	// Both the static and the param pattern match "special".
	res = tbl.Resolve("GET", "/items/special", "")
	if want := []string{"DELETE", "POST", "PUT"}; !reflect.DeepEqual(res.Allowed, want) {
		t.Errorf("Allowed = %v, want %v", res.Allowed, want)
	}
}

func TestResolvePriority(t *testing.T) {
	tbl := NewTable[testHandler]()
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/a/*rest", Handlers: []testHandler{"catch"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/a/:id([0-9]+)", Handlers: []testHandler{"digits"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/a/:name", Handlers: []testHandler{"name"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/a/static", Handlers: []testHandler{"static"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/a/:name/edit", Handlers: []testHandler{"edit"}})

	tests := []struct {
		path string
		want testHandler
	}{
		{"/a/static", "static"},
		{"/a/42", "digits"},
		{"/a/bob", "name"},
		{"/a/bob/edit", "edit"},
		{"/a/bob/other", "catch"},
		{"/a/static/edit", "edit"},
	}
	for _, tt := range tests {
		res := tbl.Resolve("GET", tt.path, "")
		if res.Kind != Matched {
			t.Errorf("Resolve(%q) kind = %v, want Matched", tt.path, res.Kind)
			continue
		}
		if got := res.Route.Handlers[0]; got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestResolveMaxParamLength(t *testing.T) {
	tbl := NewTable[testHandler](WithMaxParamLength(3))
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/u/:id"})

	if res := tbl.Resolve("GET", "/u/abc", ""); res.Kind != Matched {
		t.Errorf("short param kind = %v, want Matched", res.Kind)
	}
	if res := tbl.Resolve("GET", "/u/abcd", ""); res.Kind != NotFound {
		t.Errorf("long param kind = %v, want NotFound", res.Kind)
	}
}

func TestResolveTrailingSlash(t *testing.T) {
	strict := NewTable[testHandler]()
	mustAdd(t, strict, Spec[testHandler]{Method: "GET", Path: "/foo"})
	if res := strict.Resolve("GET", "/foo/", ""); res.Kind != NotFound {
		t.Errorf("strict /foo/ kind = %v, want NotFound", res.Kind)
	}

	lenient := NewTable[testHandler](WithIgnoreTrailingSlash(true))
	mustAdd(t, lenient, Spec[testHandler]{Method: "GET", Path: "/foo"})
	mustAdd(t, lenient, Spec[testHandler]{Method: "GET", Path: "/bar/"})
	for _, path := range []string{"/foo", "/foo/", "/bar", "/bar/"} {
		if res := lenient.Resolve("GET", path, ""); res.Kind != Matched {
			t.Errorf("lenient %s kind = %v, want Matched", path, res.Kind)
		}
	}
	if res := lenient.Resolve("POST", "/foo/", ""); res.Kind != WrongMethod {
		t.Errorf("lenient POST /foo/ kind = %v, want WrongMethod", res.Kind)
	}
}

func TestResolveVersion(t *testing.T) {
	tbl := NewTable[testHandler]()
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/v", Version: "1.1.3", Handlers: []testHandler{"v1"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/v", Version: "^2.0.0", Handlers: []testHandler{"v2"}})

	tests := []struct {
		token string
		kind  ResolutionKind
		want  testHandler
	}{
		{"", Matched, "v1"},
		{"1.1.3", Matched, "v1"},
		{"2.4.0", Matched, "v2"},
		{"3.0.0", WrongVersion, ""},
		{"not-a-version", WrongVersion, ""},
	}
	for _, tt := range tests {
		res := tbl.Resolve("GET", "/v", tt.token)
		if res.Kind != tt.kind {
			t.Errorf("token %q kind = %v, want %v", tt.token, res.Kind, tt.kind)
			continue
		}
		if tt.kind == Matched && res.Route.Handlers[0] != tt.want {
			t.Errorf("token %q handler = %q, want %q", tt.token, res.Route.Handlers[0], tt.want)
		}
	}

	res := tbl.Resolve("GET", "/v", "2.4.0")
	if res.Version != "^2.0.0" {
		t.Errorf("Version = %q, want %q", res.Version, "^2.0.0")
	}
}

func TestResolveInvalidTokenFallsBackToUnversioned(t *testing.T) {
	tbl := NewTable[testHandler]()
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/v", Version: "1.0.0", Handlers: []testHandler{"v1"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/v", Handlers: []testHandler{"any"}})

	res := tbl.Resolve("GET", "/v", "garbage")
	if res.Kind != Matched || res.Route.Handlers[0] != "any" {
		t.Errorf("Resolve = %v %v, want Matched any", res.Kind, res.Route)
	}
}

func TestAddInvalid(t *testing.T) {
	tbl := NewTable[testHandler]()
	tests := []Spec[testHandler]{
		{Method: "", Path: "/x"},
		{Method: "GET", Path: "x"},
		{Method: "GET", Path: "/:id([0-9)"},
		{Method: "GET", Path: "/*rest/more"},
		{Method: "GET", Path: "/x", Version: "not a constraint!"},
	}
	for _, spec := range tests {
		if _, err := tbl.Add(spec); err == nil {
			t.Errorf("Add(%+v) expected error", spec)
		}
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
}

func TestRouteNames(t *testing.T) {
	tbl := NewTable[testHandler]()

	if got := mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/foo/:id"}); got != "getfooid" {
		t.Errorf("derived name = %q, want getfooid", got)
	}
	if got := mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/foo/:id", Version: "2.0.0"}); got != "getfooid-2" {
		t.Errorf("second derived name = %q, want getfooid-2", got)
	}
	if got := mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/bar", Name: "bar"}); got != "bar" {
		t.Errorf("explicit name = %q, want bar", got)
	}

	_, err := tbl.Add(Spec[testHandler]{Method: "POST", Path: "/baz", Name: "bar"})
	if !errors.Is(err, ErrDuplicateRoute) {
		t.Errorf("duplicate name error = %v, want ErrDuplicateRoute", err)
	}
}

func TestRemove(t *testing.T) {
	tbl := NewTable[testHandler]()
	name := mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/foo/:id"})
	mustAdd(t, tbl, Spec[testHandler]{Method: "POST", Path: "/foo/:id"})

	if !tbl.Remove(name) {
		t.Fatal("Remove returned false for registered route")
	}
	if tbl.Remove(name) {
		t.Error("second Remove returned true")
	}
	if _, ok := tbl.Lookup(name); ok {
		t.Error("Lookup found removed route")
	}

	res := tbl.Resolve("GET", "/foo/1", "")
	if res.Kind != WrongMethod || !reflect.DeepEqual(res.Allowed, []string{"POST"}) {
		t.Errorf("after Remove: kind = %v allowed = %v", res.Kind, res.Allowed)
	}

	// The name is free again.
	if got := mustAdd(t, tbl, Spec[testHandler]{Method: "GET", Path: "/foo/:id"}); got != name {
		t.Errorf("re-added name = %q, want %q", got, name)
	}
	if res := tbl.Resolve("GET", "/foo/1", ""); res.Kind != Matched {
		t.Errorf("after re-add kind = %v, want Matched", res.Kind)
	}
}

func TestSnapshot(t *testing.T) {
	tbl := NewTable[testHandler]()
	mustAdd(t, tbl, Spec[testHandler]{Method: "get", Path: "/b", HandlerNames: []string{"b1", "b2"}})
	mustAdd(t, tbl, Spec[testHandler]{Method: "POST", Path: "/a", Version: "1.0.0", Name: "createA"})

	want := []RouteInfo{
		{Name: "getb", Method: "GET", Path: "/b", Handlers: []string{"b1", "b2"}},
		{Name: "createA", Method: "POST", Path: "/a", Version: "1.0.0", Handlers: []string{}},
	}
	if got := tbl.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestRouteAccessors(t *testing.T) {
	tbl := NewTable[testHandler]()
	name := mustAdd(t, tbl, Spec[testHandler]{Method: "PATCH", Path: "/u/:uid/posts/:pid"})
	r, ok := tbl.Lookup(name)
	if !ok {
		t.Fatal("Lookup failed")
	}
	if !r.IsUpload() {
		t.Error("PATCH route should be an upload route")
	}
	if got, want := r.ParamNames(), []string{"uid", "pid"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ParamNames() = %v, want %v", got, want)
	}
	if params, ok := r.Match("/u/1/posts/2"); !ok || params["pid"] != "2" {
		t.Errorf("Match = %v %v", params, ok)
	}
}
