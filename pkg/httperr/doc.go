// Package httperr defines the error taxonomy used by the request-processing core.
//
// Every error that reaches a client carries a kind (e.g. "NotFound",
// "MethodNotAllowed", "ImATeapot"), an HTTP status code and a message.
// The kind doubles as the name of the event channel the server dispatches the
// error on, so listeners can subscribe to exactly the failures they care about.
//
//	err := httperr.New(httperr.KindImATeapot, "short and stout")
//	err.StatusCode() // 418
//	err.Body()       // {"code":"ImATeapot","message":"short and stout"}
//
// Errors that do not declare a kind are classified as InternalServer and are
// rendered with a generic message; their text is never sent to the client.
package httperr
