package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/vango-dev/switchyard/pkg/httperr"
)

// singularHeaders are replaced rather than appended by SetHeader.
var singularHeaders = map[string]bool{
	"Content-Disposition": true,
	"Content-Encoding":    true,
	"Content-Length":      true,
	"Content-Location":    true,
	"Content-Md5":         true,
	"Content-Range":       true,
	"Content-Type":        true,
	"Date":                true,
	"Etag":                true,
	"Expires":             true,
	"Last-Modified":       true,
	"Location":            true,
	"Retry-After":         true,
	"Server":              true,
}

// Response is the per-request response context handed to handlers.
//
// Status and headers are staged until the first write, Flush or End, after
// which they are frozen. Once the connection closes the response is
// detached: writes become no-ops returning ErrConnectionClosed.
type Response struct {
	mu          sync.Mutex
	w           http.ResponseWriter
	method      string
	status      int
	header      http.Header
	headersSent bool
	ended       bool
	detached    bool
	written     int64
	err         error

	endCh chan struct{}
}

func newResponse(w http.ResponseWriter, method string) *Response {
	return &Response{
		w:      w,
		method: method,
		status: http.StatusOK,
		header: make(http.Header),
		endCh:  make(chan struct{}),
	}
}

// Status sets the status code.
func (r *Response) Status(code int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	r.status = code
	return nil
}

// StatusCode returns the status code that was, or will be, sent.
func (r *Response) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Header returns a copy of the staged headers.
func (r *Response) Header() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header.Clone()
}

// GetHeader returns the first value of the named header.
func (r *Response) GetHeader(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header.Get(name)
}

// SetHeader sets a header. Singular headers such as Content-Type are
// replaced, Set-Cookie and every other header accumulate values.
func (r *Response) SetHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	key := http.CanonicalHeaderKey(name)
	if singularHeaders[key] {
		r.header.Set(key, value)
	} else {
		r.header.Add(key, value)
	}
	return nil
}

// AddHeader appends a header value, even to singular headers.
func (r *Response) AddHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	r.header.Add(name, value)
	return nil
}

// DelHeader removes a header.
func (r *Response) DelHeader(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	r.header.Del(name)
	return nil
}

// Write writes body bytes, sending the status and headers first if needed.
// Bodies of HEAD requests and 204/304 responses are discarded.
func (r *Response) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(p)
}

// Flush sends the status and headers, and any buffered body bytes. An
// ended response is no longer owned by the transport and fails with
// ErrHeadersSent.
func (r *Response) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return ErrConnectionClosed
	}
	if r.ended {
		return ErrHeadersSent
	}
	r.writeHeader()
	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// End completes the response. Further writes fail with ErrHeadersSent.
func (r *Response) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.end()
}

// Send writes a complete response. Byte slices and strings are sent as
// is, errors go through SendError and any other value is encoded as JSON.
func (r *Response) Send(code int, body any) error {
	switch b := body.(type) {
	case error:
		return r.SendError(b)
	case nil:
		return r.send(code, "", nil)
	case []byte:
		return r.send(code, "application/octet-stream", b)
	case string:
		return r.send(code, "text/plain; charset=utf-8", []byte(b))
	default:
		return r.JSON(code, b)
	}
}

// JSON writes v as a JSON response.
func (r *Response) JSON(code int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("server: encode response: %w", err)
	}
	return r.send(code, "application/json", data)
}

// SendError writes err as an error response: its status, headers and JSON
// body. Errors without a declared kind produce a generic 500.
func (r *Response) SendError(err error) error {
	he := httperr.Classify(err)
	if he == nil {
		return nil
	}
	data, jerr := json.Marshal(he.Body())
	if jerr != nil {
		return fmt.Errorf("server: encode error body: %w", jerr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	r.err = err
	for k, vs := range he.Headers() {
		r.header.Del(k)
		for _, v := range vs {
			r.header.Add(k, v)
		}
	}
	return r.sendLocked(he.StatusCode(), "application/json", data)
}

// Redirect sends a redirect to location.
func (r *Response) Redirect(code int, location string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	r.header.Set("Location", location)
	return r.sendLocked(code, "", nil)
}

// HeadersSent reports whether the status and headers were written.
func (r *Response) HeadersSent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headersSent
}

// Ended reports whether End was called.
func (r *Response) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// BytesWritten returns the number of body bytes written.
func (r *Response) BytesWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Err returns the error the response was sent for, if any.
func (r *Response) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the response ends or is detached.
func (r *Response) Done() <-chan struct{} { return r.endCh }

func (r *Response) send(code int, contentType string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	return r.sendLocked(code, contentType, body)
}

func (r *Response) sendLocked(code int, contentType string, body []byte) error {
	r.status = code
	if contentType != "" && r.header.Get("Content-Type") == "" {
		r.header.Set("Content-Type", contentType)
	}
	if r.bodyAllowed() {
		r.header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	if _, err := r.write(body); err != nil {
		return err
	}
	return r.end()
}

// mutable reports whether status and headers may still change.
// Caller holds r.mu.
func (r *Response) mutable() error {
	if r.detached {
		return ErrConnectionClosed
	}
	if r.headersSent || r.ended {
		return ErrHeadersSent
	}
	return nil
}

func (r *Response) bodyAllowed() bool {
	return r.method != http.MethodHead &&
		r.status != http.StatusNoContent &&
		r.status != http.StatusNotModified
}

// Caller holds r.mu.
func (r *Response) writeHeader() {
	if r.headersSent {
		return
	}
	r.headersSent = true
	if !r.bodyAllowed() {
		r.header.Del("Content-Length")
	}
	dst := r.w.Header()
	for k, vs := range r.header {
		dst[k] = append([]string(nil), vs...)
	}
	r.w.WriteHeader(r.status)
}

// Caller holds r.mu.
func (r *Response) write(p []byte) (int, error) {
	if r.detached {
		return 0, ErrConnectionClosed
	}
	if r.ended {
		return 0, ErrHeadersSent
	}
	r.writeHeader()
	if len(p) == 0 {
		return 0, nil
	}
	if !r.bodyAllowed() {
		return len(p), nil
	}
	n, err := r.w.Write(p)
	r.written += int64(n)
	return n, err
}

// Caller holds r.mu.
func (r *Response) end() error {
	if r.detached {
		return ErrConnectionClosed
	}
	if r.ended {
		return nil
	}
	r.writeHeader()
	r.ended = true
	close(r.endCh)
	return nil
}

// detach cuts the response off from the transport. A response that had
// not sent its headers records status 444.
func (r *Response) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return
	}
	if !r.headersSent {
		r.status = httperr.StatusClientClosedRequest
	}
	r.detached = true
	if !r.ended {
		close(r.endCh)
	}
}

// setServerHeader stages the Server header. Caller must not hold r.mu.
func (r *Response) setServerHeader(name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header.Set("Server", name)
}

// recordErr keeps err as the response's terminal error unless one is set.
func (r *Response) recordErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}
