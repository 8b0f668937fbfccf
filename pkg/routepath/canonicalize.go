package routepath

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// CanonicalizeResult contains the result of path canonicalization.
type CanonicalizeResult struct {
	// Path is the canonicalized path (without query string).
	Path string

	// Query is the query string (without leading "?").
	Query string

	// Changed indicates if the path was modified during canonicalization.
	Changed bool
}

// Path canonicalization errors.
var (
	ErrBackslashInPath       = errors.New("routepath: path contains backslash")
	ErrNullByteInPath        = errors.New("routepath: path contains null byte")
	ErrInvalidPercentEscape  = errors.New("routepath: invalid percent escape sequence")
	ErrPathEscapesRoot       = errors.New("routepath: path escapes root via ..")
	ErrEncodedSlashInSegment = errors.New("routepath: encoded slash (%2F) in segment")
)

// CanonicalizePath normalizes a request path:
//   - Collapse multiple slashes (/blog//post → /blog/post)
//   - Remove "." segments (/blog/./post → /blog/post)
//   - Resolve ".." segments (/blog/../other → /other)
//   - Remove the trailing slash (except for root "/") unless keepTrailingSlash
//
// Paths containing a backslash, a NUL byte, an invalid percent-escape or a
// ".." that would escape root are rejected.
//
// The input may include a query string, which is preserved but not canonicalized.
func CanonicalizePath(input string, keepTrailingSlash bool) (CanonicalizeResult, error) {
	if input == "" {
		return CanonicalizeResult{Path: "/", Changed: true}, nil
	}

	// Split path and query.
	path, query, _ := strings.Cut(input, "?")

	// SECURITY: Reject backslash.
	if strings.Contains(path, "\\") {
		return CanonicalizeResult{}, ErrBackslashInPath
	}

	// SECURITY: Reject NUL byte (both literal and encoded).
	if strings.Contains(path, "\x00") || strings.Contains(strings.ToUpper(path), "%00") {
		return CanonicalizeResult{}, ErrNullByteInPath
	}

	// Validate percent-escapes only if present.
	if strings.Contains(path, "%") {
		if err := validatePercentEscapes(path); err != nil {
			return CanonicalizeResult{}, err
		}
	}

	// Track original before any modifications.
	original := path
	trailing := len(path) > 1 && strings.HasSuffix(path, "/")

	// Split into segments and normalize. Empty segments collapse repeated
	// slashes and a missing leading slash is restored on rebuild.
	var result []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
			// Skip empty segments and ".".
			continue
		case "..":
			// SECURITY: ".." escapes root.
			if len(result) == 0 {
				return CanonicalizeResult{}, ErrPathEscapesRoot
			}
			// Pop the last segment.
			result = result[:len(result)-1]
		default:
			result = append(result, seg)
		}
	}

	// Rebuild path. The trailing slash is dropped unless the caller keeps it.
	path = "/" + strings.Join(result, "/")
	if keepTrailingSlash && trailing && path != "/" {
		path += "/"
	}

	return CanonicalizeResult{
		Path:    path,
		Query:   query,
		Changed: path != original,
	}, nil
}

// validatePercentEscapes checks that all percent-escapes are %XX with hex digits.
func validatePercentEscapes(path string) error {
	for i := 0; i < len(path); i++ {
		if path[i] != '%' {
			continue
		}
		if i+2 >= len(path) || !isHexDigit(path[i+1]) || !isHexDigit(path[i+2]) {
			return ErrInvalidPercentEscape
		}
		i += 2
	}
	return nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// DecodeSegment decodes a single path segment. Unless isCatchAll, a segment
// that decodes to something containing "/" is rejected.
func DecodeSegment(segment string, isCatchAll bool) (string, error) {
	if !strings.Contains(segment, "%") {
		return segment, nil
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return "", ErrInvalidPercentEscape
	}
	if !isCatchAll && strings.Contains(decoded, "/") {
		return "", ErrEncodedSlashInSegment
	}
	return decoded, nil
}

// SplitPath splits a request path into raw segments. The root path has no
// segments; a trailing slash yields a final empty segment.
//
//	SplitPath("/")        → []
//	SplitPath("/foo/bar") → ["foo", "bar"]
//	SplitPath("/foo/")    → ["foo", ""]
func SplitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// ToggleTrailingSlash adds a trailing slash to path, or removes it if present.
// The root path is returned unchanged.
func ToggleTrailingSlash(path string) string {
	if path == "" || path == "/" {
		return path
	}
	if strings.HasSuffix(path, "/") {
		return strings.TrimSuffix(path, "/")
	}
	return path + "/"
}

// SplitPathAndQuery splits a path into path and query components.
// The query is returned without the leading "?".
func SplitPathAndQuery(input string) (path, query string) {
	path, query, _ = strings.Cut(input, "?")
	return path, query
}
