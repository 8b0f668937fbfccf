package server

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/vango-dev/switchyard/pkg/httperr"
	"github.com/vango-dev/switchyard/pkg/router"
)

type outcomeKind int

const (
	outcomeNext     outcomeKind = iota // handler advanced
	outcomeDone                        // every handler advanced
	outcomeStop                        // early exit
	outcomeError                       // error passed to next or returned
	outcomeUncaught                    // panic or strict-mode fault
	outcomeClosed                      // connection went away
)

type outcome struct {
	kind outcomeKind
	err  error
}

// run drives one admitted request through its chain. It runs on its own
// goroutine; ServeHTTP only waits for it, or for the connection to close.
type run struct {
	srv    *Server
	req    *Request
	res    *Response
	logger *slog.Logger

	// faults carries at most one strict-mode fault.
	faults    chan error
	faultOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  *httperr.Error

	retired    atomic.Bool
	retireOnce sync.Once
	afterOnce  sync.Once

	done chan struct{}
}

func newRun(s *Server, req *Request, res *Response) *run {
	return &run{
		srv:    s,
		req:    req,
		res:    res,
		logger: s.logger.With("request_id", req.ID()),
		faults: make(chan error, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// drive runs pre handlers, routing and the route chain, then settles the
// request.
func (r *run) drive() {
	defer close(r.done)

	o := r.runHandlers(r.srv.preHandlers())
	if o.kind == outcomeDone {
		var chain []Handler
		chain, o = r.route()
		if o.kind == outcomeNext {
			o = r.runHandlers(chain)
		}
	}
	r.settle(o)
}

// route resolves the request and returns the handlers to run for it.
func (r *run) route() ([]Handler, outcome) {
	s := r.srv
	method, path, version := r.req.Method(), r.req.Path(), r.req.Version()

	res := s.routes.Resolve(method, path, version)
	switch res.Kind {
	case router.Matched:
		r.req.setRoute(res.Route, res.Params, res.Version)
		for _, l := range s.events.routed.snapshot() {
			l.fn(r.req, r.res, res.Route)
		}
		return s.routeChain(res.Route), outcome{kind: outcomeNext}
	case router.WrongMethod:
		return nil, outcome{kind: outcomeError, err: httperr.MethodNotAllowed(method, res.Allowed)}
	case router.WrongVersion:
		return nil, outcome{kind: outcomeError, err: httperr.InvalidVersion(version)}
	default:
		return nil, outcome{kind: outcomeError, err: httperr.NotFound(path)}
	}
}

func (r *run) runHandlers(hs []Handler) outcome {
	for _, h := range hs {
		if r.isClosed() {
			return outcome{kind: outcomeClosed}
		}
		r.req.StartHandlerTimer(h.name)
		var o outcome
		if h.kind == kindSuspending {
			o = r.suspending(h)
		} else {
			o = r.callback(h)
		}
		if o.kind != outcomeNext {
			return o
		}
	}
	return outcome{kind: outcomeDone}
}

// callback runs a callback handler. A handler that returns having ended the
// response without calling next is an implicit stop. Otherwise the chain
// waits for next, a fault or the connection closing, even when the
// response is ended from another goroutine in the meantime.
func (r *run) callback(h Handler) outcome {
	signals := make(chan error, 1)
	var calls atomic.Int32
	next := func(err error) {
		if calls.Add(1) == 1 {
			r.endTimer(h)
			signals <- err
			return
		}
		if r.srv.config.StrictNext {
			r.fault(httperr.New(httperr.KindInternal, msgNextCalledTwice))
			return
		}
		r.logger.Debug("ignored repeated next call", "handler", h.name)
	}

	if panicked, err := r.invokeCallback(h, next); panicked {
		return outcome{kind: outcomeUncaught, err: err}
	}

	select {
	case err := <-r.faults:
		return outcome{kind: outcomeUncaught, err: err}
	default:
	}
	select {
	case err := <-signals:
		return r.signal(err)
	default:
	}
	if r.res.Ended() {
		r.endTimer(h)
		return outcome{kind: outcomeStop}
	}

	select {
	case err := <-signals:
		return r.signal(err)
	case err := <-r.faults:
		return outcome{kind: outcomeUncaught, err: err}
	case <-r.closed:
		return outcome{kind: outcomeClosed}
	}
}

// invokeCallback calls h. Panics are recovered only when the server
// intercepts uncaught exceptions.
func (r *run) invokeCallback(h Handler, next Next) (panicked bool, err error) {
	if r.srv.config.HandleUncaughtExceptions {
		defer func() {
			if v := recover(); v != nil {
				panicked, err = true, errors.WithStack(httperr.Coerce(v))
			}
		}()
	}
	h.callback(r.req, r.res, next)
	return false, nil
}

// suspending runs a suspending handler to completion. Its panics and
// errors are rejections and take the standard error path.
func (r *run) suspending(h Handler) outcome {
	err := r.invokeSuspending(h)
	r.endTimer(h)

	select {
	case f := <-r.faults:
		return outcome{kind: outcomeUncaught, err: f}
	default:
	}
	if r.isClosed() {
		return outcome{kind: outcomeClosed, err: err}
	}
	if err == nil && r.res.Ended() {
		return outcome{kind: outcomeStop}
	}
	if err != nil && err.Error() == "" {
		err = httperr.Wrap(httperr.KindAsync, err, "")
	}
	return r.signal(err)
}

func (r *run) invokeSuspending(h Handler) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errors.WithStack(httperr.Coerce(v))
		}
	}()
	return h.suspending(r.req, r.res)
}

func (r *run) signal(err error) outcome {
	switch {
	case err == nil:
		return outcome{kind: outcomeNext}
	case errors.Is(err, Stop):
		return outcome{kind: outcomeStop}
	default:
		return outcome{kind: outcomeError, err: err}
	}
}

func (r *run) endTimer(h Handler) {
	if !r.req.Closed() {
		r.req.EndHandlerTimer(h.name)
	}
}

// fault records a strict-mode fault. Only the first one is kept.
func (r *run) fault(err error) {
	if r.retired.Load() {
		r.logger.Debug("fault after request retired", "error", err)
		return
	}
	r.faultOnce.Do(func() {
		r.faults <- err
	})
}

func (r *run) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// settle finishes the request according to how its chain ended.
func (r *run) settle(o outcome) {
	if o.kind == outcomeClosed || r.isClosed() {
		r.afterClose(o.err)
		return
	}

	switch o.kind {
	case outcomeDone:
		if r.res.HeadersSent() {
			_ = r.res.End()
			r.complete(nil)
			return
		}
		o = outcome{kind: outcomeError, err: httperr.New(httperr.KindInternal, msgChainExhausted)}

	case outcomeStop:
		select {
		case <-r.res.Done():
		case <-r.closed:
		}
		if r.isClosed() {
			r.afterClose(nil)
			return
		}
		r.complete(nil)
		return

	case outcomeUncaught:
		if r.handleUncaught(o.err) {
			return
		}
		o = outcome{kind: outcomeError, err: toInternal(o.err)}
	}

	r.fail(o.err)
}

// handleUncaught gives uncaught faults to UncaughtException listeners. It
// reports false when there are none.
func (r *run) handleUncaught(err error) bool {
	ls := r.srv.events.uncaught.snapshot()
	if len(ls) == 0 {
		return false
	}
	route := r.req.Route()
	for _, l := range ls {
		l.fn(r.req, r.res, route, err)
	}
	if r.isClosed() {
		r.afterClose(err)
		return true
	}
	r.finishResponse(toInternal(err))
	r.complete(err)
	return true
}

// fail dispatches err to its listeners, then sends the default response
// if none was written.
func (r *run) fail(err error) {
	if !r.dispatch(err) {
		r.afterClose(err)
		return
	}
	r.finishResponse(err)
	r.complete(err)
}

// dispatch calls kind-specific listeners, then restifyError listeners,
// one at a time. It reports false if the connection closed meanwhile.
func (r *run) dispatch(err error) bool {
	kind := eventKindFor(err)
	var ls []*listener[ErrorListener]
	if l := r.srv.events.errorListeners(kind, false); l != nil {
		ls = append(ls, l.snapshot()...)
	}
	if g := r.srv.events.errorListeners(EventRestifyError, false); g != nil {
		ls = append(ls, g.snapshot()...)
	}

	for _, l := range ls {
		doneCh := make(chan struct{})
		var once sync.Once
		done := func(derr error) {
			once.Do(func() {
				if derr != nil {
					r.logger.Debug("discarded error from listener", "event", kind, "error", derr)
				}
				close(doneCh)
			})
		}
		l.fn(r.req, r.res, err, done)
		select {
		case <-doneCh:
		case <-r.closed:
			return false
		}
	}
	return true
}

// finishResponse sends err as the response unless one was written, and
// ends the response.
func (r *run) finishResponse(err error) {
	if !r.res.HeadersSent() {
		if serr := r.res.SendError(err); serr != nil {
			r.logger.Debug("default error response failed", "error", serr)
		}
	}
	r.res.recordErr(err)
	_ = r.res.End()
}

// complete retires a request whose response ended and fires after.
func (r *run) complete(err error) {
	r.retire()
	r.fireAfter(err)
}

// afterClose fires after for a request whose connection went away. A fault
// that arrived late is kept as the cause of the close error.
func (r *run) afterClose(late error) {
	err := r.closeErr
	if late != nil && !errors.Is(late, Stop) {
		r.logger.Debug("fault after connection closed", "error", late)
		err = err.WithCause(late)
	}
	r.retire()
	r.fireAfter(err)
}

// close marks the connection gone: the response is detached and the
// request retired at once. The driver fires after when its current step
// settles.
func (r *run) close(err *httperr.Error) {
	if r.retired.Load() {
		return
	}
	r.closeOnce.Do(func() {
		r.closeErr = err
		r.req.setState(ConnClosed)
		close(r.closed)
		r.res.detach()
		r.retire()
	})
}

func (r *run) retire() {
	r.retireOnce.Do(func() {
		r.retired.Store(true)
		r.srv.inflight.Add(-1)
		r.srv.forget(r)
	})
}

func (r *run) fireAfter(err error) {
	r.afterOnce.Do(func() {
		route := r.req.Route()
		for _, l := range r.srv.events.after.snapshot() {
			l.fn(r.req, r.res, route, err)
		}
	})
}

// toInternal converts an uncaught fault into an Internal error carrying the
// fault's message.
func toInternal(err error) error {
	var he *httperr.Error
	if errors.As(err, &he) {
		if he.Kind() == httperr.KindInternal {
			return he
		}
		return httperr.Wrap(httperr.KindInternal, err, "%s", he.Message())
	}
	return httperr.Wrap(httperr.KindInternal, err, "%s", err.Error())
}
