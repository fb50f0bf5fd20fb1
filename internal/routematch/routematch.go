// Package routematch compiles a declarative route table and resolves an
// incoming (method, host, path) to at most one route.
package routematch

import (
	"sort"
	"strings"

	"github.com/ferragate/gateway/internal/config"
)

// compiled is a route plus its pre-split path pattern, so the hot path
// never re-splits a string per request.
type compiled struct {
	route    *config.Route
	host     string   // lowercased host predicate, "" if the route has none
	segments []string // pattern split on '/', without the leading empty segment
	wildcard bool     // true if the final segment is "*"
	methods  map[string]bool
}

// Table is the compiled, read-only route table. It is built once at
// startup from the published configuration and never mutated afterward.
// Routes are kept in a single declaration-ordered slice: host and
// host-less routes may be interleaved, and the first one (in order) whose
// host and path predicates both match always wins.
type Table struct {
	routes []*compiled
}

// New compiles routes, preserving declaration order exactly as given.
func New(routes []config.Route) *Table {
	t := &Table{routes: make([]*compiled, 0, len(routes))}
	for i := range routes {
		t.routes = append(t.routes, compile(&routes[i]))
	}
	return t
}

func compile(r *config.Route) *compiled {
	trimmed := strings.TrimPrefix(r.Path, "/")
	var segs []string
	if trimmed != "" {
		segs = strings.Split(trimmed, "/")
	}
	wild := len(segs) > 0 && segs[len(segs)-1] == "*"
	var methods map[string]bool
	if len(r.Methods) > 0 {
		methods = make(map[string]bool, len(r.Methods))
		for _, m := range r.Methods {
			methods[strings.ToUpper(m)] = true
		}
	}
	return &compiled{
		route:    r,
		host:     strings.ToLower(strings.TrimSpace(r.Host)),
		segments: segs,
		wildcard: wild,
		methods:  methods,
	}
}

// Result is the disposition of a match attempt.
type Result struct {
	Route    *config.Route
	Suffix   string   // portion captured by a trailing '*', URL-path-joined
	Allowed  []string // union of methods from routes that matched path+host but rejected the method
	MethodNA bool     // true if at least one route matched path+host but rejected the method
}

// Match resolves (method, host, path) to the first route (in declaration
// order) whose host and path predicates both match, regardless of
// whether that route carries a host predicate at all. If no route
// matches outright but at least one matched path+host and rejected only
// the method, Result.MethodNA is true and Result.Allowed carries the
// union of permitted methods (the 404-vs-405 disposition).
func Match(t *Table, method, host, path string) Result {
	method = strings.ToUpper(method)
	h := stripPort(strings.ToLower(host))
	reqSegs := splitPath(path)

	var allowed []string
	seen := make(map[string]bool)
	methodNA := false

	for _, c := range t.routes {
		if c.host != "" && c.host != h {
			continue
		}
		suffix, ok := matchPattern(c, reqSegs)
		if !ok {
			continue
		}
		if c.methods != nil && !c.methods[method] {
			methodNA = true
			for m := range c.methods {
				if !seen[m] {
					seen[m] = true
					allowed = append(allowed, m)
				}
			}
			continue
		}
		return Result{Route: c.route, Suffix: suffix}
	}

	if methodNA {
		sort.Strings(allowed)
		return Result{MethodNA: true, Allowed: allowed}
	}
	return Result{}
}

// matchPattern reports whether the compiled pattern matches the request
// path segments, returning the suffix captured by a trailing '*' (empty
// if the pattern has none).
func matchPattern(c *compiled, reqSegs []string) (suffix string, ok bool) {
	if c.wildcard {
		lit := c.segments[:len(c.segments)-1]
		if len(reqSegs) <= len(lit) {
			return "", false
		}
		for i, s := range lit {
			if reqSegs[i] != s {
				return "", false
			}
		}
		return "/" + strings.Join(reqSegs[len(lit):], "/"), true
	}
	if len(reqSegs) != len(c.segments) {
		return "", false
	}
	for i, s := range c.segments {
		if reqSegs[i] != s {
			return "", false
		}
	}
	return "", true
}

func splitPath(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func stripPort(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

// RewritePath implements the path-rewriting rule for a matched route: if
// StripPath is false, the original path is appended verbatim to the
// upstream's path; if true, only the captured '*' suffix is appended.
func RewritePath(upstreamPath, originalPath, capturedSuffix string, stripPath bool) string {
	if stripPath {
		return joinSlash(upstreamPath, capturedSuffix)
	}
	return joinSlash(upstreamPath, originalPath)
}

func joinSlash(a, b string) string {
	if b == "" {
		if a == "" {
			return "/"
		}
		return a
	}
	as := strings.HasSuffix(a, "/")
	bs := strings.HasPrefix(b, "/")
	switch {
	case as && bs:
		return a + b[1:]
	case !as && !bs:
		return a + "/" + b
	default:
		return a + b
	}
}
