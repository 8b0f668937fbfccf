package router

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/vango-dev/switchyard/pkg/routepath"
)

// ErrDuplicateRoute is returned when an explicit route name is already taken.
var ErrDuplicateRoute = errors.New("router: duplicate route name")

// Spec describes a route to register.
type Spec[H any] struct {
	// Method is the HTTP method. It is upper-cased on registration.
	Method string

	// Path is the route pattern (see routepath.ParseSegments).
	Path string

	// Name identifies the route. If empty, a name is derived from the
	// method and path.
	Name string

	// Version is an optional semantic-version constraint such as "1.2.3",
	// "^2.0.0" or ">=1.0.0, <3.0.0".
	Version string

	// Handlers run in order when the route matches.
	Handlers []H

	// HandlerNames identifies Handlers in debug snapshots.
	HandlerNames []string
}

// Route is a registered route. It is immutable once registered.
type Route[H any] struct {
	Name         string
	Method       string
	Path         string
	Version      string
	Handlers     []H
	HandlerNames []string

	matcher    *routepath.Matcher
	constraint *semver.Constraints
	seq        uint64
}

// ParamNames returns the names of the parameters the route declares, in
// pattern order.
func (r *Route[H]) ParamNames() []string {
	return r.matcher.ParamNames()
}

// IsUpload reports whether the route's method carries a request body.
func (r *Route[H]) IsUpload() bool {
	return isUploadMethod(r.Method)
}

// Match matches path against the route's own pattern.
func (r *Route[H]) Match(path string) (routepath.Params, bool) {
	return r.matcher.Match(path)
}

// accepts reports whether the route's version predicate accepts v. Routes
// without a predicate accept every token.
func (r *Route[H]) accepts(v *semver.Version, hasToken bool) bool {
	if r.constraint == nil || !hasToken {
		return true
	}
	if v == nil {
		return false
	}
	return r.constraint.Check(v)
}

func isUploadMethod(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// ResolutionKind is the outcome of Resolve.
type ResolutionKind int

const (
	NotFound ResolutionKind = iota
	Matched
	WrongMethod
	WrongVersion
)

func (k ResolutionKind) String() string {
	switch k {
	case Matched:
		return "Matched"
	case WrongMethod:
		return "WrongMethod"
	case WrongVersion:
		return "WrongVersion"
	default:
		return "NotFound"
	}
}

// Resolution is the result of resolving a request.
type Resolution[H any] struct {
	Kind ResolutionKind

	// Route and Params are set when Kind is Matched.
	Route  *Route[H]
	Params routepath.Params

	// Version is the version declared by the matched route, or "".
	Version string

	// Allowed lists, sorted and upper-cased, the methods that do have a
	// route for the path. Set when Kind is WrongMethod.
	Allowed []string
}

// RouteInfo is the debug view of a route.
type RouteInfo struct {
	Name     string   `json:"name"`
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Version  string   `json:"version,omitempty"`
	Handlers []string `json:"handlers"`
}

// deriveName builds a route name from the lowercase method and the path
// with non-alphanumerics removed: GET /foo/:id → getfooid.
func deriveName(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, c := range path {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}
