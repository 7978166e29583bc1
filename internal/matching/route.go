package matching

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidRoute is returned for patterns that cannot be compiled.
var ErrInvalidRoute = errors.New("invalid route pattern")

// Route is a compiled path pattern.
type Route struct {
	pattern  string
	re       *regexp.Regexp
	names    []string
	literal  bool
	wildcard bool
	stars    int
	segments int
}

// CompileRoute compiles a route pattern such as "/users/:id/posts/*". Each
// "*" matches any run of characters, slashes included, wherever it appears.
func CompileRoute(pattern string) (*Route, error) {
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidRoute, pattern)
	}

	r := &Route{pattern: pattern, literal: true}
	trimmed := strings.Trim(pattern, "/")

	var b strings.Builder
	b.WriteString("^")
	if trimmed != "" {
		parts := strings.Split(trimmed, "/")
		r.segments = len(parts)
		for i, part := range parts {
			name, isParam := paramName(part)
			switch {
			case part == "*" && i == len(parts)-1:
				// A trailing "/*" also matches the bare prefix.
				r.addWildcard()
				b.WriteString("(?:/(.*))?")
			case strings.Contains(part, "*"):
				b.WriteString("/")
				for j, piece := range strings.Split(part, "*") {
					if j > 0 {
						r.addWildcard()
						b.WriteString("(.*)")
					}
					b.WriteString(regexp.QuoteMeta(piece))
				}
			case isParam:
				if name == "" {
					return nil, fmt.Errorf("%w: %q has an unnamed parameter", ErrInvalidRoute, pattern)
				}
				if slices.Contains(r.names, name) {
					return nil, fmt.Errorf("%w: %q repeats parameter %q", ErrInvalidRoute, pattern, name)
				}
				r.literal = false
				r.names = append(r.names, name)
				b.WriteString("/([^/]+)")
			case part == "":
				return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidRoute, pattern)
			default:
				b.WriteString("/")
				b.WriteString(regexp.QuoteMeta(part))
			}
		}
	}
	b.WriteString("/?$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	r.re = re
	return r, nil
}

// addWildcard records the next "*" capture. Captures are named "*", "*2",
// "*3" and so on in pattern order.
func (r *Route) addWildcard() {
	r.literal = false
	r.wildcard = true
	r.stars++
	if r.stars == 1 {
		r.names = append(r.names, "*")
		return
	}
	r.names = append(r.names, "*"+strconv.Itoa(r.stars))
}

// MustCompileRoute is like CompileRoute but panics on error.
func MustCompileRoute(pattern string) *Route {
	r, err := CompileRoute(pattern)
	if err != nil {
		panic(err)
	}
	return r
}

func paramName(segment string) (string, bool) {
	if strings.HasPrefix(segment, ":") {
		return segment[1:], true
	}
	if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}

// Pattern returns the source pattern.
func (r *Route) Pattern() string { return r.pattern }

// Params lists parameter names in pattern order. Wildcards are reported as
// "*", "*2" and so on.
func (r *Route) Params() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Match reports whether path matches and returns the captured parameters.
// Wildcard captures are stored under their "*" names.
func (r *Route) Match(path string) (map[string]string, bool) {
	m := r.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(r.names))
	for i, name := range r.names {
		params[name] = m[i+1]
	}
	return params, true
}

// Score ranks the route for tie-breaking between several matching routes.
// Longer routes win within the same class.
func (r *Route) Score() int {
	switch {
	case r.literal:
		return ScorePathExact*100 + r.segments
	case r.wildcard:
		return ScorePathWildcard*100 + r.segments
	default:
		return ScorePathParams*100 + r.segments
	}
}
