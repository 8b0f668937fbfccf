package router

import (
	"strings"

	"github.com/vango-dev/switchyard/pkg/routepath"
)

// node is a node in the route tree. Each node matches one pattern segment.
type node[H any] struct {
	segment routepath.Segment

	// static children are matched by literal text
	static []*node[H]

	// params holds one child per distinct parameter segment, in insertion
	// order. Several children are possible when their constraints differ.
	params []*node[H]

	// catchAll consumes the rest of the path
	catchAll *node[H]

	// routes registered on this exact pattern, by method, in registration order
	routes map[string][]*Route[H]
}

func newNode[H any](seg routepath.Segment) *node[H] {
	return &node[H]{segment: seg}
}

// child returns the child for seg, creating it if needed.
func (n *node[H]) child(seg routepath.Segment) *node[H] {
	switch seg.Kind {
	case routepath.CatchAll:
		if n.catchAll == nil {
			n.catchAll = newNode[H](seg)
		}
		return n.catchAll
	case routepath.Param:
		for _, c := range n.params {
			if c.segment.Key() == seg.Key() {
				return c
			}
		}
		c := newNode[H](seg)
		n.params = append(n.params, c)
		return c
	default:
		for _, c := range n.static {
			if c.segment.Value == seg.Value {
				return c
			}
		}
		c := newNode[H](seg)
		n.static = append(n.static, c)
		return c
	}
}

// insert walks (and extends) the tree along segments and returns the leaf.
func (n *node[H]) insert(segments []routepath.Segment) *node[H] {
	current := n
	for _, seg := range segments {
		current = current.child(seg)
	}
	return current
}

// hasRoutes reports whether any route is registered on n.
func (n *node[H]) hasRoutes() bool {
	for _, rs := range n.routes {
		if len(rs) > 0 {
			return true
		}
	}
	return false
}

func (n *node[H]) addRoute(r *Route[H]) {
	if n.routes == nil {
		n.routes = make(map[string][]*Route[H])
	}
	n.routes[r.Method] = append(n.routes[r.Method], r)
}

func (n *node[H]) removeRoute(r *Route[H]) bool {
	rs := n.routes[r.Method]
	for i, existing := range rs {
		if existing == r {
			rs = append(rs[:i:i], rs[i+1:]...)
			if len(rs) == 0 {
				delete(n.routes, r.Method)
			} else {
				n.routes[r.Method] = rs
			}
			return true
		}
	}
	return false
}

// visitor is called for every node whose pattern matches the full path,
// in priority order. Returning true stops the walk.
type visitor[H any] func(n *node[H], params routepath.Params) bool

// walk matches parts against the subtree rooted at n. Static children are
// tried first, then parameter children in insertion order, then the
// catch-all. A branch that fails further down backtracks to the next
// candidate.
func (n *node[H]) walk(parts []string, params routepath.Params, maxLen int, visit visitor[H]) bool {
	if len(parts) == 0 {
		if n.hasRoutes() {
			return visit(n, params)
		}
		return false
	}

	raw, rest := parts[0], parts[1:]
	value, err := routepath.DecodeSegment(raw, false)
	if err == nil {
		for _, c := range n.static {
			if c.segment.Value == value {
				if c.walk(rest, params, maxLen, visit) {
					return true
				}
			}
		}
		for _, c := range n.params {
			if !c.segment.Accepts(value, maxLen) {
				continue
			}
			params[c.segment.Value] = value
			if c.walk(rest, params, maxLen, visit) {
				return true
			}
			delete(params, c.segment.Value)
		}
	}

	if c := n.catchAll; c != nil && c.hasRoutes() {
		joined, err := routepath.DecodeSegment(strings.Join(parts, "/"), true)
		if err == nil {
			params[c.segment.Value] = joined
			if visit(c, params) {
				return true
			}
			delete(params, c.segment.Value)
		}
	}
	return false
}
