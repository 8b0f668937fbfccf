// Package router implements the route table.
//
// The table stores routes in a radix tree keyed by path segments. Each leaf
// holds the routes registered for that pattern, grouped by HTTP method and
// kept in registration order so that several routes can share a path and
// method while declaring different version predicates.
//
// Resolving a request yields one of:
//   - Matched: a route accepted the method, path and version
//   - WrongMethod: the path matched, but only for other methods
//   - WrongVersion: path and method matched, but no version predicate
//     accepted the request's version token
//   - NotFound: no registered pattern matches the path
//
// # Usage
//
//	t := router.NewTable[Handler](router.WithIgnoreTrailingSlash(true))
//	name, err := t.Add(router.Spec[Handler]{
//	    Method:   "GET",
//	    Path:     "/users/:id([0-9]+)",
//	    Version:  "^1.2.0",
//	    Handlers: []Handler{show},
//	})
//
//	res := t.Resolve("GET", "/users/42", "1.4.0")
//	if res.Kind == router.Matched {
//	    // res.Route.Handlers, res.Params["id"] == "42"
//	}
//
// The table is safe for concurrent resolution. Registration and removal take
// a write lock and are visible to the next Resolve.
package router
