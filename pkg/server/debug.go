package server

import "github.com/vango-dev/switchyard/pkg/router"

// DebugInfo is a read-only view of a server's registrations and state.
type DebugInfo struct {
	Routes   []router.RouteInfo `json:"routes"`
	Pre      []string           `json:"pre"`
	Use      []string           `json:"use"`
	After    []string           `json:"after"`
	Inflight int64              `json:"inflight"`
	Address  string             `json:"address"`
	Port     int                `json:"port"`
}

// DebugInfo returns a snapshot of routes, handler names, after listener
// names, the in-flight count and the listen address.
func (s *Server) DebugInfo() DebugInfo {
	s.mu.RLock()
	pre := handlerNames(s.pre)
	use := handlerNames(s.use)
	s.mu.RUnlock()

	return DebugInfo{
		Routes:   s.routes.Snapshot(),
		Pre:      pre,
		Use:      use,
		After:    s.events.after.names(),
		Inflight: s.Inflight(),
		Address:  s.Address(),
		Port:     s.Port(),
	}
}

// Routes returns the debug view of every registered route.
func (s *Server) Routes() []router.RouteInfo {
	return s.routes.Snapshot()
}
