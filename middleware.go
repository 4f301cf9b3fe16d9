package gemini

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"git.sr.ht/~wayfarer/gemini/certificate"
)

// Middleware wraps a Handler to add cross-cutting behavior, matching
// the net/http community convention the teacher's handler chaining
// (StripPrefix, TimeoutHandler) already follows.
type Middleware func(Handler) Handler

// Chain applies middlewares to h in order, so that the first
// middleware in the list is the outermost (runs first).
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// AccessControl returns middleware enforcing cfg's CIDR allow/deny
// list (spec §4.6): a request whose remote IP matches DenyList is
// rejected, a request matching AllowList is accepted, and anything
// else falls back to DefaultAllow. A denied request receives "53
// Access denied" without disclosing which rule matched.
func AccessControl(cfg AccessControlConfig) Middleware {
	if !cfg.Enabled {
		return func(h Handler) Handler { return h }
	}
	allow := parseCIDRs(cfg.AllowList)
	deny := parseCIDRs(cfg.DenyList)

	return func(h Handler) Handler {
		return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) {
			ip := remoteIP(r.RemoteAddr)
			if ip != nil {
				if containsAny(deny, ip) {
					w.WriteHeader(StatusProxyRequestRefused, "Access denied")
					return
				}
				if containsAny(allow, ip) {
					h.ServeGemini(ctx, w, r)
					return
				}
			}
			if !cfg.DefaultAllow {
				w.WriteHeader(StatusProxyRequestRefused, "Access denied")
				return
			}
			h.ServeGemini(ctx, w, r)
		})
	}
}

func parseCIDRs(specs []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, s := range specs {
		if _, n, err := net.ParseCIDR(s); err == nil {
			nets = append(nets, n)
		} else if ip := net.ParseIP(s); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return nets
}

func containsAny(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}

// RateLimit returns middleware implementing a per-IP token bucket
// (spec §4.6), built on golang.org/x/time/rate. Buckets for IPs that go idle are
// evicted lazily on the next sweep so the map doesn't grow unbounded
// over a long-running server.
func RateLimit(cfg RateLimitConfig) Middleware {
	if !cfg.Enabled {
		return func(h Handler) Handler { return h }
	}
	lim := newLimiterSet(cfg)

	return func(h Handler) Handler {
		return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) {
			ip := remoteIP(r.RemoteAddr)
			if ip != nil && !lim.allow(ip.String()) {
				w.WriteHeader(StatusSlowDown, rateLimitMeta(cfg.RetryAfter))
				return
			}
			h.ServeGemini(ctx, w, r)
		})
	}
}

// rateLimitMeta returns the meta for a "44 SLOW DOWN" response: the
// bare integer number of seconds the client should wait, per spec
// §4.6/§6.5's retry_after field.
func rateLimitMeta(retryAfter time.Duration) string {
	seconds := int64(retryAfter / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return strconv.FormatInt(seconds, 10)
}

type limiterSet struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

const limiterIdleTTL = 5 * time.Minute

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.sweepLocked(now)

	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.cfg.RefillRate), s.cfg.Capacity)
		s.limiters[key] = l
	}
	s.lastSeen[key] = now
	return l.Allow()
}

// sweepLocked evicts limiters that have been idle past limiterIdleTTL.
// Called with s.mu held; runs at most once a minute to keep the
// per-request cost negligible.
func (s *limiterSet) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < time.Minute {
		return
	}
	s.lastSweep = now
	for key, seen := range s.lastSeen {
		if now.Sub(seen) > limiterIdleTTL {
			delete(s.limiters, key)
			delete(s.lastSeen, key)
		}
	}
}

// CertificateAuth returns middleware enforcing cfg's ordered path
// rules (spec §4.6): the first rule whose Prefix matches the request
// path wins. A matching rule that requires a certificate but got none
// yields "60 Certificate required"; a presented certificate whose
// fingerprint isn't in AllowedFingerprints (when that list is
// non-empty) yields "61 Certificate not authorized".
func CertificateAuth(cfg CertificateAuthConfig) Middleware {
	if len(cfg.Paths) == 0 {
		return func(h Handler) Handler { return h }
	}
	return func(h Handler) Handler {
		return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) {
			rule, ok := matchPathRule(cfg.Paths, r.URL.Path)
			if !ok {
				h.ServeGemini(ctx, w, r)
				return
			}
			if !rule.RequireCert {
				h.ServeGemini(ctx, w, r)
				return
			}
			if r.Certificate == nil || r.Certificate.Leaf == nil {
				w.WriteHeader(StatusCertificateRequired, "Certificate required")
				return
			}
			if len(rule.AllowedFingerprints) > 0 {
				fp := certificate.Fingerprint(r.Certificate.Leaf)
				if !containsString(rule.AllowedFingerprints, fp) {
					w.WriteHeader(StatusCertificateNotAuthorized, "Certificate not authorized")
					return
				}
			}
			h.ServeGemini(ctx, w, r)
		})
	}
}

func matchPathRule(rules []PathRule, path string) (PathRule, bool) {
	for _, rule := range rules {
		if hasPathPrefix(path, rule.Prefix) {
			return rule, true
		}
	}
	return PathRule{}, false
}

func hasPathPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
