package httperr

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Kinded is implemented by errors that declare their own kind.
type Kinded interface {
	Kind() string
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Error is an HTTP error with a kind, status code and client-safe message.
type Error struct {
	kind    string
	status  int
	message string
	cause   error
	headers http.Header
	body    any
}

// New creates an Error of a registered kind. When format is empty the
// template message is used.
func New(kind, format string, args ...any) *Error {
	t, ok := registry[kind]
	if !ok {
		t = registry[KindInternalServer]
	}
	msg := t.Message
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{
		kind:    kind,
		status:  t.Status,
		message: msg,
	}
}

// Wrap creates an Error of the given kind caused by err.
func Wrap(kind string, err error, format string, args ...any) *Error {
	return New(kind, format, args...).WithCause(err)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Kind returns the error kind, which is also its event name.
func (e *Error) Kind() string { return e.kind }

// StatusCode returns the HTTP status code.
func (e *Error) StatusCode() int { return e.status }

// Message returns the client-safe message.
func (e *Error) Message() string { return e.message }

// Unwrap returns the cause for errors.Is/As support.
func (e *Error) Unwrap() error { return e.cause }

// Headers returns headers that must accompany the error response.
func (e *Error) Headers() http.Header { return e.headers }

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithHeader adds a header to the error response.
func (e *Error) WithHeader(key, value string) *Error {
	if e.headers == nil {
		e.headers = make(http.Header)
	}
	e.headers.Add(key, value)
	return e
}

// WithBody replaces the default response body.
func (e *Error) WithBody(body any) *Error {
	e.body = body
	return e
}

// Body returns the value serialized as the response body.
func (e *Error) Body() any {
	if e.body != nil {
		return e.body
	}
	return map[string]string{
		"code":    e.kind,
		"message": e.message,
	}
}

// KindOf returns the declared kind of err, or KindInternalServer when err
// does not declare one.
func KindOf(err error) string {
	var k Kinded
	if errors.As(err, &k) && k.Kind() != "" {
		return k.Kind()
	}
	return KindInternalServer
}

// Classify returns err as an *Error. Errors without a declared kind become
// InternalServer errors with a generic message and err as their cause.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	kind := KindOf(err)
	e := New(kind, "").WithCause(err)
	var sc StatusCoder
	if errors.As(err, &sc) && sc.StatusCode() > 0 {
		e.status = sc.StatusCode()
	}
	return e
}

// Coerce turns a recovered panic value into an error. Errors are returned as
// is; any other value becomes an Internal error whose message is the value's
// text. A nil panic is reported as "null".
func Coerce(v any) error {
	switch x := v.(type) {
	case nil:
		return New(KindInternal, "null")
	case *runtime.PanicNilError:
		return New(KindInternal, "null").WithCause(x)
	case error:
		return x
	case string:
		return New(KindInternal, "%s", x)
	case fmt.Stringer:
		return New(KindInternal, "%s", x.String())
	default:
		return New(KindInternal, "%v", x)
	}
}

// NotFound returns a 404 error for path.
func NotFound(path string) *Error {
	return New(KindNotFound, "%s does not exist", path)
}

// MethodNotAllowed returns a 405 error whose Allow header lists allowed.
func MethodNotAllowed(method string, allowed []string) *Error {
	return New(KindMethodNotAllowed, "%s is not allowed", method).
		WithHeader("Allow", strings.Join(allowed, ", "))
}

// InvalidVersion returns a 400 error for an unacceptable version token.
func InvalidVersion(version string) *Error {
	return New(KindInvalidVersion, "%s is not supported by this resource", version)
}

// RequestClose returns the error recorded when the client connection closed
// before the request was retired.
func RequestClose() *Error {
	return New(KindRequestClose, "request closed before the response completed")
}

// RequestTimeout returns the error recorded when a request exceeded the
// server's processing deadline.
func RequestTimeout() *Error {
	return New(KindRequestTimeout, "request exceeded the processing deadline")
}

// IsRequestClose reports whether err is a RequestClose error.
func IsRequestClose(err error) bool {
	return KindOf(err) == KindRequestClose
}

// IsRequestTimeout reports whether err is a RequestTimeout error.
func IsRequestTimeout(err error) bool {
	return KindOf(err) == KindRequestTimeout
}
