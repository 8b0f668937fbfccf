package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vango-dev/switchyard/pkg/router"
	"github.com/vango-dev/switchyard/pkg/routepath"
)

// Route is a registered route.
type Route = router.Route[Handler]

// ConnState is the state of a request's client connection.
type ConnState string

const (
	// ConnOpen is the state of a healthy connection.
	ConnOpen ConnState = "open"
	// ConnClosing is set on live requests while the server shuts down.
	ConnClosing ConnState = "closing"
	// ConnClosed is set once the peer went away or the request timed out.
	ConnClosed ConnState = "close"
)

// HandlerTimer is a completed timing record for one handler.
type HandlerTimer struct {
	Name    string        `json:"name"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Elapsed time.Duration `json:"elapsed"`
}

type timerMark struct {
	name       string
	start, end time.Time
	ended      bool
}

// Request is the per-request context handed to handlers.
type Request struct {
	raw   *http.Request
	id    string
	seq   uint64
	clock interface{ Now() time.Time }

	// Set before handlers run, read-only afterwards.
	version string

	mu             sync.Mutex
	params         routepath.Params
	route          *Route
	matchedVersion string
	state          ConnState
	timers         []*timerMark
	values         map[string]any
	startedAt      time.Time
}

func newRequest(s *Server, r *http.Request, seq uint64) *Request {
	id := r.Header.Get(s.config.RequestIDHeader)
	if id == "" {
		if u, err := uuid.NewV7(); err == nil {
			id = u.String()
		} else {
			id = uuid.NewString()
		}
	}
	return &Request{
		raw:       r,
		id:        id,
		seq:       seq,
		clock:     s.clock,
		version:   r.Header.Get(s.config.VersionHeader),
		state:     ConnOpen,
		startedAt: s.clock.Now(),
	}
}

// ID returns the request ID, taken from the request ID header when present.
func (r *Request) ID() string { return r.id }

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request { return r.raw }

// Method returns the HTTP method.
func (r *Request) Method() string { return r.raw.Method }

// Path returns the request path.
func (r *Request) Path() string { return r.raw.URL.Path }

// Header returns the request headers.
func (r *Request) Header() http.Header { return r.raw.Header }

// Context returns the request's context. It is cancelled when the client
// connection closes.
func (r *Request) Context() context.Context { return r.raw.Context() }

// Time returns when the request arrived.
func (r *Request) Time() time.Time { return r.startedAt }

// Version returns the version token sent by the client, or "".
func (r *Request) Version() string { return r.version }

// MatchedVersion returns the version predicate of the matched route, or "".
func (r *Request) MatchedVersion() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchedVersion
}

// Params returns a copy of the extracted path parameters.
func (r *Request) Params() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

// Param returns the named path parameter, or "".
func (r *Request) Param(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params[name]
}

// Route returns the matched route, or nil before routing completes or when
// no route matched.
func (r *Request) Route() *Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.route
}

// IsUpload reports whether the request method carries a body.
func (r *Request) IsUpload() bool {
	switch r.raw.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// ConnectionState returns the state of the client connection.
func (r *Request) ConnectionState() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Closed reports whether the client connection is gone.
func (r *Request) Closed() bool {
	return r.ConnectionState() == ConnClosed
}

// Set stores a request-scoped value.
func (r *Request) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = make(map[string]any)
	}
	r.values[key] = value
}

// Get returns a request-scoped value.
func (r *Request) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	return v, ok
}

// StartHandlerTimer marks the start of the named timer. Only the first
// start of a name is kept.
func (r *Request) StartHandlerTimer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findTimer(name) != nil {
		return
	}
	r.timers = append(r.timers, &timerMark{name: name, start: r.clock.Now()})
}

// EndHandlerTimer marks the end of the named timer. It is ignored for
// timers that were never started or already ended.
func (r *Request) EndHandlerTimer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.findTimer(name)
	if t == nil || t.ended {
		return
	}
	t.end = r.clock.Now()
	t.ended = true
}

// Timers returns the timers that have both a start and an end, in the
// order they were first started.
func (r *Request) Timers() []HandlerTimer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HandlerTimer, 0, len(r.timers))
	for _, t := range r.timers {
		if !t.ended {
			continue
		}
		out = append(out, HandlerTimer{
			Name:    t.name,
			Start:   t.start,
			End:     t.end,
			Elapsed: t.end.Sub(t.start),
		})
	}
	return out
}

func (r *Request) findTimer(name string) *timerMark {
	for _, t := range r.timers {
		if t.name == name {
			return t
		}
	}
	return nil
}

func (r *Request) setRoute(route *Route, params routepath.Params, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.route = route
	r.params = params
	r.matchedVersion = version
}

// setState moves the connection state forward. A closed connection stays
// closed.
func (r *Request) setState(state ConnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ConnClosed {
		return
	}
	r.state = state
}
