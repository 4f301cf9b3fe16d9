package gemini

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
)

// ServeMux is a Gemini and Titan request multiplexer.
//
// It matches the URL of each incoming request against a list of
// registered patterns and calls the handler for the pattern that most
// closely matches the URL.
//
// Patterns name fixed, rooted paths, like "/favicon.gmi", or rooted
// subtrees, like "/notes/" (note the trailing slash). Longer patterns
// take precedence over shorter ones, so that if there are handlers
// registered for both "/notes/" and "/notes/drafts/", the latter
// handler is called for paths beginning "/notes/drafts/" and the
// former receives requests for any other path in the "/notes/"
// subtree.
//
// Patterns may also carry a scheme and hostname, matched against the
// request's Scheme and Host, and a leading "*." wildcard hostname
// segment:
//
//	Pattern                      │ Scheme │ Hostname │ Path
//	─────────────────────────────┼────────┼──────────┼─────────────
//	/file                        │ gemini │ *        │ /file
//	/directory/                  │ gemini │ *        │ /directory/*
//	hostname/file                │ gemini │ hostname │ /file
//	hostname/directory/          │ gemini │ hostname │ /directory/*
//	scheme://hostname/file       │ scheme │ hostname │ /file
//	scheme://hostname/directory/ │ scheme │ hostname │ /directory/*
//	//hostname/file              │ *      │ hostname │ /file
//	///file                      │ *      │ *        │ /file
//
// If a subtree has been registered and a request names the subtree
// root without its trailing slash, ServeMux redirects that request to
// the subtree root. ServeMux also sanitizes the request path,
// redirecting any request with "." or ".." elements or repeated
// slashes to its canonical equivalent — though Request.URL.Path is
// already canonicalized by ParseURL, so this mostly guards handlers
// registered with an unclean pattern.
type ServeMux struct {
	mu sync.RWMutex
	m  map[muxKey]Handler
	es []muxEntry // sorted longest-path first
}

type muxKey struct {
	scheme string
	host   string
	path   string
}

type muxEntry struct {
	handler Handler
	key     muxKey
}

func (mux *ServeMux) match(key muxKey) Handler {
	if r, ok := mux.m[key]; ok {
		return r
	} else if r, ok := mux.m[muxKey{"", key.host, key.path}]; ok {
		return r
	} else if r, ok := mux.m[muxKey{key.scheme, "", key.path}]; ok {
		return r
	} else if r, ok := mux.m[muxKey{"", "", key.path}]; ok {
		return r
	}

	for _, e := range mux.es {
		if (e.key.scheme == "" || key.scheme == e.key.scheme) &&
			(e.key.host == "" || key.host == e.key.host) &&
			strings.HasPrefix(key.path, e.key.path) {
			return e.handler
		}
	}
	return nil
}

func (mux *ServeMux) redirectToPathSlash(key muxKey, u *URL) (*URL, bool) {
	mux.mu.RLock()
	shouldRedirect := mux.shouldRedirectRLocked(key)
	mux.mu.RUnlock()
	if !shouldRedirect {
		return u, false
	}
	u2 := *u
	u2.Path = key.path + "/"
	return &u2, true
}

func (mux *ServeMux) shouldRedirectRLocked(key muxKey) bool {
	// Consult the same scheme- and host-less fallback keys as match.
	registered := func(path string) bool {
		for _, k := range []muxKey{
			{key.scheme, key.host, path},
			{"", key.host, path},
			{key.scheme, "", path},
			{"", "", path},
		} {
			if _, exist := mux.m[k]; exist {
				return true
			}
		}
		return false
	}
	if registered(key.path) {
		return false
	}
	n := len(key.path)
	if n == 0 {
		return false
	}
	if registered(key.path + "/") {
		return key.path[n-1] != '/'
	}
	return false
}

func getWildcard(hostname string) (string, bool) {
	if net.ParseIP(hostname) == nil {
		split := strings.SplitN(hostname, ".", 2)
		if len(split) == 2 {
			return "*." + split[1], true
		}
	}
	return "", false
}

// Handler returns the handler to use for r, consulting r.URL.Scheme,
// r.URL.Host, and r.URL.Path. It always returns a non-nil handler. If
// the path is not in its canonical form, the returned handler
// redirects to the canonical path.
func (mux *ServeMux) Handler(r *Request) Handler {
	scheme := r.URL.Scheme
	host := r.URL.Host
	p := canonicalPath(r.URL.Path)

	if u, ok := mux.redirectToPathSlash(muxKey{scheme, host, p}, r.URL); ok {
		return StatusHandler(StatusRedirectPermanent, u.String())
	}
	if p != r.URL.Path {
		u := *r.URL
		u.Path = p
		return StatusHandler(StatusRedirectPermanent, u.String())
	}

	mux.mu.RLock()
	defer mux.mu.RUnlock()

	h := mux.match(muxKey{scheme, host, p})
	if h == nil {
		if wildcard, ok := getWildcard(host); ok {
			h = mux.match(muxKey{scheme, wildcard, p})
		}
	}
	if h == nil {
		h = NotFoundHandler()
	}
	return h
}

// ServeGemini dispatches the request to the handler whose pattern most
// closely matches the request URL.
func (mux *ServeMux) ServeGemini(ctx context.Context, w ResponseWriter, r *Request) {
	h := mux.Handler(r)
	h.ServeGemini(ctx, w, r)
}

// Handle registers the handler for the given pattern. Handle panics if
// a handler is already registered for pattern.
func (mux *ServeMux) Handle(pattern string, handler Handler) {
	if pattern == "" {
		panic("gemini: invalid pattern")
	}
	if handler == nil {
		panic("gemini: nil handler")
	}

	mux.mu.Lock()
	defer mux.mu.Unlock()

	var key muxKey
	if strings.HasPrefix(pattern, "//") {
		key.scheme = ""
		pattern = pattern[2:]
	} else if cut := strings.Index(pattern, "://"); cut == -1 {
		key.scheme = "gemini"
	} else {
		key.scheme = pattern[:cut]
		pattern = pattern[cut+3:]
	}

	if cut := strings.Index(pattern, "/"); cut == -1 {
		key.host = pattern
		key.path = "/"
	} else {
		key.host = pattern[:cut]
		key.path = pattern[cut:]
	}

	if hostname, _, err := net.SplitHostPort(key.host); err == nil {
		key.host = hostname
	}

	if _, exist := mux.m[key]; exist {
		panic("gemini: multiple registrations for " + pattern)
	}

	if mux.m == nil {
		mux.m = make(map[muxKey]Handler)
	}
	mux.m[key] = handler
	e := muxEntry{handler, key}
	if key.path[len(key.path)-1] == '/' {
		mux.es = appendSorted(mux.es, e)
	}
}

func appendSorted(es []muxEntry, e muxEntry) []muxEntry {
	n := len(es)
	i := sort.Search(n, func(i int) bool {
		return len(es[i].key.scheme) < len(e.key.scheme) ||
			len(es[i].key.host) < len(es[i].key.host) ||
			len(es[i].key.path) < len(e.key.path)
	})
	if i == n {
		return append(es, e)
	}
	es = append(es, muxEntry{})
	copy(es[i+1:], es[i:])
	es[i] = e
	return es
}

// HandleFunc registers the handler function for the given pattern.
func (mux *ServeMux) HandleFunc(pattern string, handler HandlerFunc) {
	mux.Handle(pattern, handler)
}
