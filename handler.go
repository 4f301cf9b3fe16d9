package gemini

import (
	"context"
	"strings"
)

// A Handler responds to a Gemini or Titan request.
//
// ServeGemini should write the response header and data to the
// ResponseWriter and then return; returning signals that the request
// is finished. Handlers should not modify the provided Request.
//
// The provided context is canceled when the client's connection is
// closed or when the per-request deadline (spec §4.9) expires.
type Handler interface {
	ServeGemini(context.Context, ResponseWriter, *Request)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as Gemini handlers.
type HandlerFunc func(context.Context, ResponseWriter, *Request)

// ServeGemini calls f(ctx, w, r).
func (f HandlerFunc) ServeGemini(ctx context.Context, w ResponseWriter, r *Request) {
	f(ctx, w, r)
}

// StatusHandler returns a handler that responds to each request with
// the provided status code and meta.
func StatusHandler(status Status, meta string) Handler {
	return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) {
		w.WriteHeader(status, meta)
	})
}

// NotFoundHandler returns a handler that replies to each request with
// "51 Not found".
func NotFoundHandler() Handler {
	return StatusHandler(StatusNotFound, "Not found")
}

// StripPrefix returns a handler that serves requests by removing the
// given prefix from the request URL's Path and invoking h. A request
// whose path doesn't begin with prefix gets a 51 Not found reply.
func StripPrefix(prefix string, h Handler) Handler {
	if prefix == "" {
		return h
	}
	return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) {
		p := strings.TrimPrefix(r.URL.Path, prefix)
		if len(p) == len(r.URL.Path) {
			w.WriteHeader(StatusNotFound, "Not found")
			return
		}
		r2 := new(Request)
		*r2 = *r
		u2 := *r.URL
		u2.Path = canonicalPath(p)
		r2.URL = &u2
		h.ServeGemini(ctx, w, r2)
	})
}
