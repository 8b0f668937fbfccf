package routepath

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxParamLength is the longest value a named parameter may capture.
const DefaultMaxParamLength = 100

// SegmentKind identifies how a pattern segment matches.
type SegmentKind int

const (
	// Static segments match their literal text.
	Static SegmentKind = iota
	// Param segments (:name or :name(regexp)) capture one path segment.
	Param
	// CatchAll segments (*name) capture the rest of the path.
	CatchAll
)

// Segment is one compiled segment of a route pattern.
type Segment struct {
	Kind SegmentKind

	// Value is the literal text for Static segments and the parameter
	// name otherwise.
	Value string

	// Constraint is the raw regular expression of a constrained Param, or "".
	Constraint string

	re *regexp.Regexp
}

// Key identifies segments that match exactly the same inputs.
func (s Segment) Key() string {
	switch s.Kind {
	case Param:
		return ":" + s.Value + "(" + s.Constraint + ")"
	case CatchAll:
		return "*" + s.Value
	default:
		return s.Value
	}
}

// Accepts reports whether value satisfies a Param segment's constraint
// and length limit. A failure is a non-match, not an error.
func (s Segment) Accepts(value string, maxLen int) bool {
	if s.Kind == Static {
		return s.Value == value
	}
	if s.Kind == Param && value == "" {
		return false
	}
	if maxLen > 0 && len(value) > maxLen {
		return false
	}
	return s.re == nil || s.re.MatchString(value)
}

// Params maps parameter names to captured values.
type Params map[string]string

// ParseSegments compiles a route pattern into segments.
//
// Syntax:
//
//	/users/:id            named parameter
//	/users/:id([0-9]+)    named parameter constrained by a regular expression
//	/files/*path          catch-all (must be last)
//	/users/               trailing slash kept as a final empty segment
func ParseSegments(pattern string) ([]Segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("routepath: pattern %q must start with /", pattern)
	}
	raw, err := splitPattern(pattern[1:])
	if err != nil {
		return nil, fmt.Errorf("routepath: pattern %q: %w", pattern, err)
	}

	segments := make([]Segment, 0, len(raw))
	seen := make(map[string]bool)
	for i, r := range raw {
		seg, err := parseSegment(r)
		if err != nil {
			return nil, fmt.Errorf("routepath: pattern %q: %w", pattern, err)
		}
		if seg.Kind != Static {
			if seen[seg.Value] {
				return nil, fmt.Errorf("routepath: pattern %q: duplicate parameter %q", pattern, seg.Value)
			}
			seen[seg.Value] = true
		}
		if seg.Kind == CatchAll && i != len(raw)-1 {
			return nil, fmt.Errorf("routepath: pattern %q: catch-all must be the last segment", pattern)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// splitPattern splits on "/" outside of constraint parentheses.
func splitPattern(p string) ([]string, error) {
	if p == "" {
		return nil, nil
	}
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced ')'")
			}
		case '/':
			if depth == 0 {
				parts = append(parts, p[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '('")
	}
	return append(parts, p[start:]), nil
}

func parseSegment(raw string) (Segment, error) {
	switch {
	case strings.HasPrefix(raw, ":"):
		name, constraint := raw[1:], ""
		if idx := strings.IndexByte(name, '('); idx != -1 {
			if !strings.HasSuffix(name, ")") {
				return Segment{}, fmt.Errorf("malformed constraint in %q", raw)
			}
			name, constraint = name[:idx], name[idx+1:len(name)-1]
		}
		if name == "" {
			return Segment{}, fmt.Errorf("empty parameter name in %q", raw)
		}
		seg := Segment{Kind: Param, Value: name, Constraint: constraint}
		if constraint != "" {
			re, err := regexp.Compile("^(?:" + constraint + ")$")
			if err != nil {
				return Segment{}, fmt.Errorf("parameter %q: %w", name, err)
			}
			seg.re = re
		}
		return seg, nil
	case strings.HasPrefix(raw, "*"):
		name := raw[1:]
		if name == "" {
			name = "*"
		}
		return Segment{Kind: CatchAll, Value: name}, nil
	default:
		return Segment{Kind: Static, Value: raw}, nil
	}
}

// CompileOption configures a Matcher.
type CompileOption func(*compileOptions)

type compileOptions struct {
	ignoreTrailingSlash bool
	maxParamLength      int
}

// WithIgnoreTrailingSlash makes "/foo/" and "/foo" match the same pattern.
func WithIgnoreTrailingSlash(ignore bool) CompileOption {
	return func(o *compileOptions) {
		o.ignoreTrailingSlash = ignore
	}
}

// WithMaxParamLength limits the length of captured parameter values.
// Zero or less disables the limit.
func WithMaxParamLength(n int) CompileOption {
	return func(o *compileOptions) {
		o.maxParamLength = n
	}
}

// Matcher matches request paths against one compiled pattern.
type Matcher struct {
	pattern  string
	segments []Segment
	opts     compileOptions
}

// Compile compiles a route pattern. See ParseSegments for the syntax.
func Compile(pattern string, opts ...CompileOption) (*Matcher, error) {
	o := compileOptions{maxParamLength: DefaultMaxParamLength}
	for _, opt := range opts {
		opt(&o)
	}
	segments, err := ParseSegments(pattern)
	if err != nil {
		return nil, err
	}
	return &Matcher{pattern: pattern, segments: segments, opts: o}, nil
}

// Pattern returns the source pattern.
func (m *Matcher) Pattern() string { return m.pattern }

// Segments returns the compiled segments.
func (m *Matcher) Segments() []Segment { return m.segments }

// ParamNames returns parameter names in pattern order.
func (m *Matcher) ParamNames() []string {
	var names []string
	for _, s := range m.segments {
		if s.Kind != Static {
			names = append(names, s.Value)
		}
	}
	return names
}

// Match matches path and returns the captured parameters. With trailing
// slash normalization enabled, the path with its trailing slash toggled is
// tried before reporting no match.
func (m *Matcher) Match(path string) (Params, bool) {
	if params, ok := m.match(path); ok {
		return params, true
	}
	if m.opts.ignoreTrailingSlash {
		return m.match(ToggleTrailingSlash(path))
	}
	return nil, false
}

func (m *Matcher) match(path string) (Params, bool) {
	parts := SplitPath(path)
	params := make(Params)
	for i, seg := range m.segments {
		if seg.Kind == CatchAll {
			if i >= len(parts) {
				return nil, false
			}
			rest, err := DecodeSegment(strings.Join(parts[i:], "/"), true)
			if err != nil {
				return nil, false
			}
			params[seg.Value] = rest
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		value, err := DecodeSegment(parts[i], false)
		if err != nil || !seg.Accepts(value, m.opts.maxParamLength) {
			return nil, false
		}
		if seg.Kind == Param {
			params[seg.Value] = value
		}
	}
	if len(parts) != len(m.segments) {
		return nil, false
	}
	return params, true
}
