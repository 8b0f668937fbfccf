package server

import (
	"sync"
	"sync/atomic"

	"github.com/vango-dev/switchyard/pkg/httperr"
)

// EventKind names an event listeners can subscribe to.
type EventKind string

// Events with a built-in meaning. Every error kind in the httperr catalog is
// also an event kind, e.g. EventKind(httperr.KindImATeapot).
const (
	EventNotFound          EventKind = httperr.KindNotFound
	EventMethodNotAllowed  EventKind = httperr.KindMethodNotAllowed
	EventVersionNotAllowed EventKind = "VersionNotAllowed"
	EventInternalServer    EventKind = httperr.KindInternalServer
	EventInternal          EventKind = httperr.KindInternal
	EventAsync             EventKind = httperr.KindAsync

	// EventRestifyError receives every dispatched error after the
	// kind-specific listeners.
	EventRestifyError EventKind = "restifyError"

	EventUncaughtException EventKind = "uncaughtException"
	EventAfter             EventKind = "after"
	EventRouted            EventKind = "routed"
	EventClose             EventKind = "close"
)

// ErrorListener handles a dispatched error. It must call done to let
// dispatch continue. An error passed to done is discarded.
type ErrorListener func(req *Request, res *Response, err error, done func(error))

// AfterListener observes a retired request. err is the error the request
// ended with, if any.
type AfterListener func(req *Request, res *Response, route *Route, err error)

// UncaughtListener handles a panic recovered from a callback handler.
type UncaughtListener func(req *Request, res *Response, route *Route, err error)

// RoutedListener observes a request once its route is resolved.
type RoutedListener func(req *Request, res *Response, route *Route)

// CloseListener observes server shutdown.
type CloseListener func()

// eventKindFor returns the event an error is dispatched under.
func eventKindFor(err error) EventKind {
	kind := httperr.KindOf(err)
	if kind == httperr.KindInvalidVersion {
		return EventVersionNotAllowed
	}
	return EventKind(kind)
}

type listener[F any] struct {
	fn    F
	name  string
	once  bool
	fired atomic.Bool
}

// take reports whether the listener should run. A once listener runs at
// most once.
func (l *listener[F]) take() bool {
	if !l.once {
		return true
	}
	return l.fired.CompareAndSwap(false, true)
}

// listeners is an ordered, concurrency-safe listener list.
type listeners[F any] struct {
	mu   sync.RWMutex
	list []*listener[F]
}

func (ls *listeners[F]) add(l *listener[F]) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.list = append(ls.list, l)
}

// snapshot returns the listeners to call now, dropping spent once
// listeners from the list.
func (ls *listeners[F]) snapshot() []*listener[F] {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]*listener[F], 0, len(ls.list))
	kept := ls.list[:0]
	for _, l := range ls.list {
		if !l.take() {
			continue
		}
		out = append(out, l)
		if !l.once {
			kept = append(kept, l)
		}
	}
	for i := len(kept); i < len(ls.list); i++ {
		ls.list[i] = nil
	}
	ls.list = kept
	return out
}

func (ls *listeners[F]) len() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return len(ls.list)
}

func (ls *listeners[F]) names() []string {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	names := make([]string, len(ls.list))
	for i, l := range ls.list {
		names[i] = l.name
	}
	return names
}

func (ls *listeners[F]) clear() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.list = nil
}

// eventBus holds a server's listeners.
type eventBus struct {
	mu       sync.RWMutex
	errors   map[EventKind]*listeners[ErrorListener]
	after    listeners[AfterListener]
	uncaught listeners[UncaughtListener]
	routed   listeners[RoutedListener]
	close    listeners[CloseListener]
}

func newEventBus() *eventBus {
	return &eventBus{errors: make(map[EventKind]*listeners[ErrorListener])}
}

func (b *eventBus) errorListeners(kind EventKind, create bool) *listeners[ErrorListener] {
	if !create {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.errors[kind]
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ls, ok := b.errors[kind]
	if !ok {
		ls = &listeners[ErrorListener]{}
		b.errors[kind] = ls
	}
	return ls
}

// OnError registers a listener for errors of kind. Use EventRestifyError
// to observe every dispatched error.
func (s *Server) OnError(kind EventKind, fn ErrorListener) {
	s.events.errorListeners(kind, true).add(&listener[ErrorListener]{fn: fn, name: funcName(fn)})
}

// OnceError registers a listener that runs for the next error of kind only.
func (s *Server) OnceError(kind EventKind, fn ErrorListener) {
	s.events.errorListeners(kind, true).add(&listener[ErrorListener]{fn: fn, name: funcName(fn), once: true})
}

// OnAfter registers a listener for retired requests.
func (s *Server) OnAfter(fn AfterListener) {
	s.events.after.add(&listener[AfterListener]{fn: fn, name: funcName(fn)})
}

// OnceAfter registers a listener for the next retired request only.
func (s *Server) OnceAfter(fn AfterListener) {
	s.events.after.add(&listener[AfterListener]{fn: fn, name: funcName(fn), once: true})
}

// OnUncaughtException registers a listener for recovered handler panics.
// It only has an effect when Config.HandleUncaughtExceptions is set.
func (s *Server) OnUncaughtException(fn UncaughtListener) {
	s.events.uncaught.add(&listener[UncaughtListener]{fn: fn, name: funcName(fn)})
}

// OnRouted registers a listener called once a request's route is resolved.
func (s *Server) OnRouted(fn RoutedListener) {
	s.events.routed.add(&listener[RoutedListener]{fn: fn, name: funcName(fn)})
}

// OnClose registers a listener called when the server shuts down.
func (s *Server) OnClose(fn CloseListener) {
	s.events.close.add(&listener[CloseListener]{fn: fn, name: funcName(fn)})
}

// RemoveAllListeners removes every listener registered for kind.
func (s *Server) RemoveAllListeners(kind EventKind) {
	switch kind {
	case EventAfter:
		s.events.after.clear()
	case EventUncaughtException:
		s.events.uncaught.clear()
	case EventRouted:
		s.events.routed.clear()
	case EventClose:
		s.events.close.clear()
	default:
		if ls := s.events.errorListeners(kind, false); ls != nil {
			ls.clear()
		}
	}
}

// ListenerCount returns the number of listeners registered for kind.
func (s *Server) ListenerCount(kind EventKind) int {
	switch kind {
	case EventAfter:
		return s.events.after.len()
	case EventUncaughtException:
		return s.events.uncaught.len()
	case EventRouted:
		return s.events.routed.len()
	case EventClose:
		return s.events.close.len()
	default:
		if ls := s.events.errorListeners(kind, false); ls != nil {
			return ls.len()
		}
		return 0
	}
}
