// Package server routes HTTP requests through ordered handler chains.
//
// A Server owns a route table, the handler lists registered with First,
// Pre, Use and Param, an event bus and the in-flight counter. It implements
// http.Handler; Listen, Serve and Run wrap an *http.Server around it.
//
// # Request Pipeline
//
// Each request goes through these stages, in order:
//  1. Admission handlers (First). The first to return false rejects the
//     request; it is never counted in-flight and gets a 503 unless the
//     handler wrote a response.
//  2. In-flight increment, atomic with the admission decision.
//  3. Pre handlers.
//  4. Routing. A miss dispatches NotFound, MethodNotAllowed (with an Allow
//     header) or VersionNotAllowed.
//  5. Param handlers for the parameters the matched route declares.
//  6. Use handlers.
//  7. Route handlers.
//  8. Retirement: the in-flight decrement and the after event.
//
// # Handlers
//
// A handler is a CallbackFunc, which calls next to advance, or a
// SuspendingFunc, which the chain waits on:
//
//	srv.Get("/foo/:id", func(req *server.Request, res *server.Response, next server.Next) {
//	    res.Send(200, map[string]string{"id": req.Param("id")})
//	    next(nil)
//	})
//
//	srv.Get("/slow", func(req *server.Request, res *server.Response) error {
//	    v, err := lookup(req.Context())
//	    if err != nil {
//	        return err
//	    }
//	    return res.Send(200, v)
//	})
//
// next(err) and returned errors are dispatched to listeners registered for
// the error's kind, then to EventRestifyError listeners, then answered with
// the error's default response. next(Stop) ends the chain without an error.
//
// # Connection Loss
//
// When the client goes away the request is retired immediately and its
// response detached; writes return ErrConnectionClosed. The handler that
// was running is not interrupted, and the after event fires once it
// settles, carrying a RequestClose error.
//
// # Thread Safety
//
// Each request runs on its own goroutine. Registration is meant for setup
// but is safe at any time; route table reads and event dispatch run
// concurrently with it.
package server
