// Package admin serves the operational endpoints of a switchyard server on
// a separate listener: Prometheus metrics, debug views of the route table
// and a websocket tail of retired requests.
package admin
