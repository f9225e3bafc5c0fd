// Package router implements a longest-prefix route matcher: routes are
// registered as a method plus a path prefix, and a lookup returns the most
// specific (longest) registered prefix that covers the request path,
// together with the route's per-route flags.
//
// There are no parameterized segments (":id" / "*rest"): a static
// file/handler server never binds path parameters, it binds directories
// and exact files. Insertion still splits a node's path on the longest
// common prefix with the inserted route, radix-tree style.
package router

import "github.com/coroweb/httpcore/core/optimize"

// Flags are the per-route behavior bits the dispatcher consults once a
// route has matched: accepts POST data, parses Accept-Encoding before
// dispatch, allows URL rewriting, requires authentication.
type Flags uint8

const (
	HasPostData Flags = 1 << iota
	ParseAcceptEncoding
	AllowRewrite
	RequireAuth
)

// HandlerFunc is the route's body. It receives the opaque per-transaction
// context the dispatcher built (a *dispatch.Context when core/dispatch
// invokes it, but the router itself is context-type-agnostic).
type HandlerFunc func(ctx any)

// Route is what a lookup returns: the matched handler, its flags, the
// registered prefix that matched (the "pattern"), and the portion of the
// request path beyond it (the "tail"), which handlers serving a directory
// (static files, reverse proxies) need.
type Route struct {
	Handler HandlerFunc
	Flags   Flags
	Pattern string
	Tail    string
}

type entry struct {
	handler HandlerFunc
	flags   Flags
	set     bool
}

type node struct {
	path     string
	indices  string
	children []*node
	methods  map[string]entry
}

// Router is a longest-prefix matcher over a single tree, indexed by method
// at each node that ends a registered path.
type Router struct {
	root *node
}

// New creates an empty Router.
func New() *Router {
	return &Router{root: &node{}}
}

// Handle registers handler for method and the path prefix. A later,
// longer-prefix registration under the same method takes precedence over
// a shorter one at lookup time; registering the same (method, path) twice
// overwrites the earlier handler.
func (r *Router) Handle(method, path string, handler HandlerFunc, flags Flags) {
	if path == "" || path[0] != '/' {
		panic("router: path must begin with '/'")
	}
	r.root.insert(path, method, entry{handler: handler, flags: flags, set: true})
}

// Find performs the longest-prefix lookup for method and path. The second
// return value is false when no registered prefix (of any length) covers
// path for that method.
func (r *Router) Find(method, path string) (Route, bool) {
	best, bestLen, ok := r.root.longestMatch(path, method)
	if !ok {
		return Route{}, false
	}
	return Route{Handler: best.handler, Flags: best.flags, Pattern: path[:bestLen], Tail: path[bestLen:]}, true
}

func (n *node) insert(path, method string, e entry) {
	if n.path == "" && len(n.children) == 0 && n.methods == nil {
		n.path = path
		n.methods = map[string]entry{method: e}
		return
	}

	cur := n
	for {
		i := commonPrefixLen(path, cur.path)

		if i < len(cur.path) {
			child := &node{
				path:     cur.path[i:],
				indices:  cur.indices,
				children: cur.children,
				methods:  cur.methods,
			}
			cur.children = []*node{child}
			cur.indices = string(cur.path[i])
			cur.path = cur.path[:i]
			cur.methods = nil
		}

		if i < len(path) {
			path = path[i:]
			c := path[0]

			found := false
			for idx := 0; idx < len(cur.indices); idx++ {
				if cur.indices[idx] == c {
					cur = cur.children[idx]
					found = true
					break
				}
			}
			if found {
				continue
			}

			child := &node{path: path, methods: map[string]entry{method: e}}
			cur.indices += string(c)
			cur.children = append(cur.children, child)
			return
		}

		if cur.methods == nil {
			cur.methods = make(map[string]entry)
		}
		cur.methods[method] = e
		return
	}
}

// longestMatch walks the tree consuming path, remembering the deepest node
// along the walk that both fully matches its own path segment and carries
// a handler for method — the longest matching prefix, not merely the
// deepest tree node reached.
func (n *node) longestMatch(path, method string) (entry, int, bool) {
	var best entry
	bestLen := -1
	haveBest := false

	cur := n
	pos := 0
	remaining := path

	for {
		if len(remaining) < len(cur.path) || !optimize.ComparePathSIMD(remaining[:len(cur.path)], cur.path) {
			break
		}
		pos += len(cur.path)
		remaining = remaining[len(cur.path):]

		if e, ok := cur.methods[method]; ok && e.set {
			best, bestLen, haveBest = e, pos, true
		}

		if remaining == "" {
			break
		}
		c := remaining[0]
		next := (*node)(nil)
		for idx := 0; idx < len(cur.indices); idx++ {
			if cur.indices[idx] == c {
				next = cur.children[idx]
				break
			}
		}
		if next == nil {
			break
		}
		cur = next
	}

	return best, bestLen, haveBest
}

func commonPrefixLen(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	i := 0
	for i < max && a[i] == b[i] {
		i++
	}
	return i
}
