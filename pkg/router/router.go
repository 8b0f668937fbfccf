package router

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/vango-dev/switchyard/pkg/routepath"
)

// Option configures a Table.
type Option func(*options)

type options struct {
	ignoreTrailingSlash bool
	maxParamLength      int
}

// WithIgnoreTrailingSlash makes "/foo" and "/foo/" resolve to the same route.
func WithIgnoreTrailingSlash(ignore bool) Option {
	return func(o *options) {
		o.ignoreTrailingSlash = ignore
	}
}

// WithMaxParamLength limits how long a captured parameter may be.
// Zero or negative disables the limit.
func WithMaxParamLength(n int) Option {
	return func(o *options) {
		o.maxParamLength = n
	}
}

// Table is the route table.
type Table[H any] struct {
	mu     sync.RWMutex
	root   *node[H]
	byName map[string]*route[H]
	seq    uint64
	opts   options
}

// route pairs a registered route with the tree node holding it.
type route[H any] struct {
	*Route[H]
	leaf *node[H]
}

// NewTable creates an empty route table.
func NewTable[H any](opts ...Option) *Table[H] {
	o := options{maxParamLength: routepath.DefaultMaxParamLength}
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[H]{
		root:   newNode[H](routepath.Segment{}),
		byName: make(map[string]*route[H]),
		opts:   o,
	}
}

// Add registers a route and returns its name.
func (t *Table[H]) Add(spec Spec[H]) (string, error) {
	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		return "", errors.New("router: route method is required")
	}

	matcher, err := routepath.Compile(spec.Path,
		routepath.WithIgnoreTrailingSlash(t.opts.ignoreTrailingSlash),
		routepath.WithMaxParamLength(t.opts.maxParamLength),
	)
	if err != nil {
		return "", errors.Wrapf(err, "router: invalid path for %s %s", method, spec.Path)
	}

	var constraint *semver.Constraints
	if v := strings.TrimSpace(spec.Version); v != "" {
		constraint, err = semver.NewConstraint(v)
		if err != nil {
			return "", errors.Wrapf(err, "router: invalid version %q for %s %s", v, method, spec.Path)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	name := spec.Name
	if name != "" {
		if _, taken := t.byName[name]; taken {
			return "", errors.Wrapf(ErrDuplicateRoute, "%q", name)
		}
	} else {
		name = t.uniqueName(deriveName(method, spec.Path))
	}

	t.seq++
	r := &Route[H]{
		Name:         name,
		Method:       method,
		Path:         spec.Path,
		Version:      strings.TrimSpace(spec.Version),
		Handlers:     append([]H(nil), spec.Handlers...),
		HandlerNames: append([]string(nil), spec.HandlerNames...),
		matcher:      matcher,
		constraint:   constraint,
		seq:          t.seq,
	}

	leaf := t.root.insert(matcher.Segments())
	leaf.addRoute(r)
	t.byName[name] = &route[H]{Route: r, leaf: leaf}
	return name, nil
}

// uniqueName suffixes base with -2, -3, ... until it is unused.
// Caller holds t.mu.
func (t *Table[H]) uniqueName(base string) string {
	if _, taken := t.byName[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, taken := t.byName[candidate]; !taken {
			return candidate
		}
	}
}

// Remove unregisters the named route. It reports whether the route existed.
func (t *Table[H]) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.byName[name]
	if !ok {
		return false
	}
	r.leaf.removeRoute(r.Route)
	delete(t.byName, name)
	return true
}

// Lookup returns the named route.
func (t *Table[H]) Lookup(name string) (*Route[H], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return r.Route, true
}

// Len returns the number of registered routes.
func (t *Table[H]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byName)
}

// Routes returns the registered routes in registration order.
func (t *Table[H]) Routes() []*Route[H] {
	t.mu.RLock()
	routes := make([]*Route[H], 0, len(t.byName))
	for _, r := range t.byName {
		routes = append(routes, r.Route)
	}
	t.mu.RUnlock()

	sort.Slice(routes, func(i, j int) bool {
		return routes[i].seq < routes[j].seq
	})
	return routes
}

// Snapshot returns the debug view of every route, in registration order.
func (t *Table[H]) Snapshot() []RouteInfo {
	routes := t.Routes()
	infos := make([]RouteInfo, len(routes))
	for i, r := range routes {
		infos[i] = RouteInfo{
			Name:     r.Name,
			Method:   r.Method,
			Path:     r.Path,
			Version:  r.Version,
			Handlers: append([]string{}, r.HandlerNames...),
		}
	}
	return infos
}

// Resolve finds the route for method, path and version token. An empty
// token selects the first route registered for the method on the matching
// pattern. A token that is not a valid semantic version is accepted only
// by routes without a version predicate.
func (t *Table[H]) Resolve(method, path, version string) Resolution[H] {
	method = strings.ToUpper(method)
	if path == "" {
		path = "/"
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	res := t.resolve(method, path, version)
	if res.Kind == Matched || !t.opts.ignoreTrailingSlash {
		return res
	}

	toggled := routepath.ToggleTrailingSlash(path)
	if toggled == path {
		return res
	}
	alt := t.resolve(method, toggled, version)
	if alt.Kind == Matched || (res.Kind == NotFound && alt.Kind != NotFound) {
		return alt
	}
	return res
}

func (t *Table[H]) resolve(method, path, version string) Resolution[H] {
	hasToken := strings.TrimSpace(version) != ""
	var parsed *semver.Version
	if hasToken {
		// An unparsable token leaves parsed nil.
		parsed, _ = semver.NewVersion(strings.TrimSpace(version))
	}

	var (
		res          Resolution[H]
		wrongVersion bool
		allowed      = make(map[string]struct{})
	)

	t.root.walk(routepath.SplitPath(path), make(routepath.Params), t.opts.maxParamLength,
		func(n *node[H], params routepath.Params) bool {
			candidates := n.routes[method]
			if len(candidates) == 0 {
				for m, rs := range n.routes {
					if len(rs) > 0 {
						allowed[m] = struct{}{}
					}
				}
				return false
			}
			for _, r := range candidates {
				if !r.accepts(parsed, hasToken) {
					continue
				}
				res = Resolution[H]{
					Kind:    Matched,
					Route:   r,
					Params:  copyParams(params),
					Version: r.Version,
				}
				return true
			}
			wrongVersion = true
			return false
		})

	switch {
	case res.Kind == Matched:
		return res
	case wrongVersion:
		return Resolution[H]{Kind: WrongVersion}
	case len(allowed) > 0:
		methods := make([]string, 0, len(allowed))
		for m := range allowed {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		return Resolution[H]{Kind: WrongMethod, Allowed: methods}
	default:
		return Resolution[H]{Kind: NotFound}
	}
}

func copyParams(p routepath.Params) routepath.Params {
	out := make(routepath.Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
