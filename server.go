package gemini

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"git.sr.ht/~wayfarer/gemini/certificate"
)

// DefaultRequestTimeout bounds the time a Server gives a single
// connection to send its request line, have its handler run, and (for
// Titan) upload its body, if Server.RequestTimeout is zero.
const DefaultRequestTimeout = 30 * time.Second

// Server is a Gemini (and, when Titan is configured, Titan) server. It
// drives each accepted connection through the states described in
// spec §4.9: AWAIT_REQUEST, then either RESPONDING or
// READING_TITAN_BODY followed by RESPONDING, then CLOSED.
type Server struct {
	// Addr is the address the server listens on, e.g. ":1965". If
	// empty, ":1965" is used.
	Addr string

	// Certificate is the TLS certificate presented to every client,
	// for a single-capsule deployment. Ignored if CertStore is set.
	Certificate tls.Certificate

	// CertStore, if non-nil, selects a certificate per handshake by SNI
	// hostname instead of always presenting Certificate — for a
	// listener serving more than one capsule hostname (spec §4.9's
	// multi-virtual-host dispatch, extended to certificate selection).
	CertStore *certificate.Store

	// RequireClientCert, if true, rejects handshakes from clients that
	// don't present a certificate at all (spec §4.3).
	RequireClientCert bool

	// Handler dispatches requests once a full request line (and,
	// for Titan, the upload body) has been read. Typically a *ServeMux
	// wrapped in middleware via Chain.
	Handler Handler

	// RequestTimeout bounds a single connection's lifetime from the
	// moment it's accepted. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// Titan, if non-nil, enables the READING_TITAN_BODY phase: a
	// declared size above Titan.MaxUploadSize is rejected, and otherwise
	// Request.Body is set to a reader over the next URL.Size bytes of the
	// connection, which Handler reads; the server does not read the body
	// itself before Handler runs. Requests whose scheme is "titan" are
	// rejected with "59 Titan not supported" if this is nil.
	Titan *TitanConfig

	// Log receives diagnostics about accept and connection-handling
	// failures. If nil, slog.Default() is used, matching the
	// package-level-by-default, per-call-site-grouped logging
	// convention other Gemini servers in production use.
	Log *slog.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	closing   bool
}

func (s *Server) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// ListenAndServe listens on Addr (or ":1965") and serves incoming TLS
// connections until the server is closed or Serve returns an error.
func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":1965"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on l, wraps each in TLS using
// certificate.ServerTLSConfig (or certificate.ServerTLSConfigFromStore
// when CertStore is set), and dispatches it to a new goroutine.
//
// The accept loop backs off exponentially (5ms doubling to a 1s
// ceiling) on temporary accept errors rather than busy-looping.
func (s *Server) Serve(l net.Listener) error {
	var tlsConfig *tls.Config
	if s.CertStore != nil {
		tlsConfig = certificate.ServerTLSConfigFromStore(s.CertStore, s.RequireClientCert)
	} else {
		tlsConfig = certificate.ServerTLSConfig(s.Certificate, s.RequireClientCert)
	}
	tlsListener := tls.NewListener(l, tlsConfig)

	s.trackListener(tlsListener, true)
	defer s.trackListener(tlsListener, false)

	var tempDelay time.Duration
	for {
		conn, err := tlsListener.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := time.Second; tempDelay > max {
					tempDelay = max
				}
				s.logger().Warn("accept error, retrying", "error", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0
		s.trackConn(conn, true)
		go func() {
			defer s.trackConn(conn, false)
			s.serveConn(conn)
		}()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) trackListener(l net.Listener, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[net.Listener]struct{})
	}
	if add {
		s.listeners[l] = struct{}{}
	} else {
		delete(s.listeners, l)
	}
}

func (s *Server) trackConn(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// requestTimeout returns s.RequestTimeout or DefaultRequestTimeout.
func (s *Server) requestTimeout() time.Duration {
	if s.RequestTimeout > 0 {
		return s.RequestTimeout
	}
	return DefaultRequestTimeout
}

// serveConn drives a single accepted connection through AWAIT_REQUEST,
// READING_TITAN_BODY (if applicable), and RESPONDING, then closes the
// connection (CLOSED).
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	deadline := time.Now().Add(s.requestTimeout())
	conn.SetDeadline(deadline)

	// AWAIT_REQUEST
	req, err := ReadRequestLine(conn)
	if err != nil {
		s.logger().Debug("failed to read request line", "error", err, "remote", conn.RemoteAddr())
		return
	}
	req.RemoteAddr = conn.RemoteAddr()

	reqLog := s.logger().With(slog.Group("request", "scheme", req.URL.Scheme, "host", req.URL.Host, "path", req.URL.Path))

	if tlsConn, ok := conn.(*tls.Conn); ok {
		state := tlsConn.ConnectionState()
		req.TLS = &state
		if len(state.PeerCertificates) > 0 {
			leaf := state.PeerCertificates[0]
			req.Certificate = &tls.Certificate{
				Certificate: [][]byte{leaf.Raw},
				Leaf:        leaf,
			}
		}
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	req.Context = ctx

	// READING_TITAN_BODY
	if req.URL.Scheme == "titan" {
		if s.Titan == nil {
			s.reject(conn, StatusBadRequest, "Titan not supported")
			return
		}
		if !req.URL.HasSize {
			s.reject(conn, StatusBadRequest, "Missing size parameter")
			return
		}
		if req.URL.Size > 0 {
			if s.Titan.MaxUploadSize > 0 && req.URL.Size > s.Titan.MaxUploadSize {
				s.reject(conn, StatusPermanentFailure, "Too large")
				return
			}
			req.Body = io.LimitReader(conn, req.URL.Size)
		}
	}

	// RESPONDING
	w := newResponseWriter(conn)
	defer func() {
		if p := recover(); p != nil {
			reqLog.Error("handler panic", "panic", p)
			w.WriteHeader(StatusTemporaryFailure, "Internal error")
			w.Flush()
		}
	}()
	handler := s.Handler
	if handler == nil {
		handler = NotFoundHandler()
	}
	handler.ServeGemini(ctx, w, req)
	if err := w.Flush(); err != nil {
		reqLog.Debug("failed to flush response", "error", err)
	}
}

func (s *Server) reject(conn net.Conn, status Status, meta string) {
	w := newResponseWriter(conn)
	w.WriteHeader(status, meta)
	w.Flush()
}

// Close immediately closes all active listeners and connections.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing = true
	for l := range s.listeners {
		l.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	return nil
}

// Shutdown marks the server as closing, stops accepting new
// connections, and waits for in-flight connections to finish on their
// own or for ctx to be done, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for l := range s.listeners {
		l.Close()
	}
	s.mu.Unlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
