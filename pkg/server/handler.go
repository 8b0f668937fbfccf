package server

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Next continues a callback handler's chain.
//
//	next(nil)  advance to the next handler
//	next(err)  skip the remaining handlers and dispatch err
//	next(Stop) skip the remaining handlers silently
type Next func(err error)

// CallbackFunc is a handler that must call next to advance.
type CallbackFunc func(req *Request, res *Response, next Next)

// SuspendingFunc is a handler the chain waits on. Returning nil advances,
// Stop ends the chain early and any other error is dispatched.
type SuspendingFunc func(req *Request, res *Response) error

// AdmissionFunc runs before a request is counted in-flight. Returning false
// rejects the request.
type AdmissionFunc func(req *Request, res *Response) bool

type handlerKind int

const (
	kindCallback handlerKind = iota
	kindSuspending
)

// Handler is a named handler of either shape.
type Handler struct {
	name       string
	kind       handlerKind
	callback   CallbackFunc
	suspending SuspendingFunc
}

// Name returns the handler's identifier, used for timers and debug output.
func (h Handler) Name() string { return h.name }

// Suspends reports whether the handler is a suspending handler.
func (h Handler) Suspends() bool { return h.kind == kindSuspending }

// Callback wraps fn as a Handler.
func Callback(fn CallbackFunc) Handler {
	return Handler{name: funcName(fn), kind: kindCallback, callback: fn}
}

// Suspending wraps fn as a Handler.
func Suspending(fn SuspendingFunc) Handler {
	return Handler{name: funcName(fn), kind: kindSuspending, suspending: fn}
}

// Named gives h an explicit name. h may be any value accepted by handler
// registration that resolves to a single handler.
func Named(name string, h any) Handler {
	hs := toHandlers("Named", nil, h)
	if len(hs) != 1 {
		panic(programmerError("Named", "expected exactly one handler, got %d", len(hs)))
	}
	hs[0].name = name
	return hs[0]
}

// toHandlers flattens registration arguments into handlers. Anonymous
// functions are named by seq, when given, as handler-N.
func toHandlers(op string, seq func() uint64, args ...any) []Handler {
	var out []Handler
	for i, arg := range args {
		switch h := arg.(type) {
		case Handler:
			out = append(out, h)
		case []Handler:
			out = append(out, h...)
		case CallbackFunc:
			out = append(out, Callback(h))
		case func(*Request, *Response, Next):
			out = append(out, Callback(h))
		case SuspendingFunc:
			out = append(out, Suspending(h))
		case func(*Request, *Response) error:
			out = append(out, Suspending(h))
		case []any:
			out = append(out, toHandlers(op, seq, h...)...)
		case nil:
			panic(programmerError(op, "handler %d is nil", i))
		default:
			panic(programmerError(op, "handler %d has unsupported type %T", i, arg))
		}
	}
	for i := range out {
		if out[i].callback == nil && out[i].suspending == nil {
			panic(programmerError(op, "handler %q has no function", out[i].name))
		}
		if out[i].name == "" && seq != nil {
			out[i].name = fmt.Sprintf("handler-%d", seq())
		}
	}
	return out
}

// handlerNames returns the names of hs in order.
func handlerNames(hs []Handler) []string {
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.name
	}
	return names
}

// funcName returns the short name of a declared function, or "" for
// closures and function literals.
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	if strings.Contains(name, ".func") || strings.HasSuffix(name, "-fm") {
		return ""
	}
	if idx := strings.Index(name, "."); idx != -1 {
		name = name[idx+1:]
	}
	return name
}
