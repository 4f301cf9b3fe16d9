package gemini

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"time"

	"git.sr.ht/~wayfarer/gemini/certificate"
	"git.sr.ht/~wayfarer/gemini/tofu"
)

// MaxRedirects bounds the number of redirects Client.Get will follow
// before giving up with ErrRedirectLoop (spec §4.10).
const MaxRedirects = 5

// Client is a Gemini and Titan client session: TLS dial, trust-on-
// first-use verification against a tofu.Store, a single request/
// response exchange, and a bounded automatic redirect loop.
//
// The zero value is not usable: TOFU must be set.
type Client struct {
	// TOFU is consulted (and updated) on every handshake to verify the
	// server's certificate fingerprint. Required.
	TOFU *tofu.Store

	// AllowFirstUse controls whether an unrecognized (host, port) is
	// trusted and recorded (true) or rejected with
	// *tofu.ErrFirstUseForbidden (false).
	AllowFirstUse bool

	// Certificate, if set, is presented as the client certificate on
	// every connection this Client makes.
	Certificate *tls.Certificate

	// Identities maps a "host/path" scope to a client certificate to
	// present for requests under that scope, overriding Certificate.
	Identities *certificate.Dir

	// DialTimeout bounds the TCP+TLS handshake. Zero means no timeout.
	DialTimeout time.Duration
}

// Get issues a single Gemini request for rawurl and follows up to
// MaxRedirects redirects automatically, returning the final Response.
// The caller must close the returned Response's Body.
func (c *Client) Get(ctx context.Context, rawurl string) (*Response, error) {
	u, err := ParseURL(rawurl)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, u, 0)
}

func (c *Client) fetch(ctx context.Context, u *URL, redirectCount int) (*Response, error) {
	if redirectCount > MaxRedirects {
		return nil, ErrRedirectLoop
	}

	resp, err := c.RoundTrip(ctx, u)
	if err != nil {
		return nil, err
	}

	if resp.Status.IsRedirect() {
		defer resp.Body.Close()
		next, err := ParseURL(resp.Meta)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid redirect target", ErrInvalidResponse)
		}
		if next.Scheme != "gemini" {
			return nil, ErrNonGeminiRedirect
		}
		return c.fetch(ctx, next, redirectCount+1)
	}

	return resp, nil
}

// Upload issues a Titan upload request: scheme must be "titan" and u
// must already carry size/mime/token parameters (spec §4.8). body is
// read for exactly u.Size bytes.
func (c *Client) Upload(ctx context.Context, u *URL, body io.Reader) (*Response, error) {
	if u.Scheme != "titan" {
		return nil, fmt.Errorf("%w: upload URL must use the titan scheme", ErrInvalidURL)
	}
	return c.roundTripWithBody(ctx, u, body)
}

// Delete issues a zero-byte Titan upload, which servers interpret as a
// delete request for u's path (spec §4.8).
func (c *Client) Delete(ctx context.Context, u *URL) (*Response, error) {
	u2 := *u
	u2.Size = 0
	u2.HasSize = true
	return c.roundTripWithBody(ctx, &u2, nil)
}

// RoundTrip performs a single request/response exchange against u with
// no redirect handling.
func (c *Client) RoundTrip(ctx context.Context, u *URL) (*Response, error) {
	return c.roundTripWithBody(ctx, u, nil)
}

func (c *Client) roundTripWithBody(ctx context.Context, u *URL, body io.Reader) (*Response, error) {
	hostport, err := u.Hostport()
	if err != nil {
		return nil, err
	}
	asciiHost, err := u.ASCIIHost()
	if err != nil {
		return nil, err
	}

	cert := c.clientCertFor(u)
	tlsCfg := certificate.ClientTLSConfig(asciiHost, cert, func(leaf *x509.Certificate) error {
		return c.verify(u.Host, u.Port, leaf)
	})

	dialCtx := ctx
	if c.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.DialTimeout)
		defer cancel()
	}
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(dialCtx, "tcp", hostport)
	if err != nil {
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	if err := conn.HandshakeContext(dialCtx); err != nil {
		conn.Close()
		return nil, err
	}

	req := &Request{URL: u, Context: ctx}
	bw := bufio.NewWriter(conn)
	if err := req.Write(bw); err != nil {
		conn.Close()
		return nil, err
	}

	if body != nil && u.HasSize && u.Size > 0 {
		if _, err := io.CopyN(conn, body, u.Size); err != nil {
			conn.Close()
			return nil, err
		}
	}

	resp, err := ReadResponse(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.conn = conn
	return resp, nil
}

func (c *Client) clientCertFor(u *URL) *tls.Certificate {
	if c.Identities != nil {
		if cert, ok := c.Identities.Lookup(u.Host + u.Path); ok {
			return &cert
		}
	}
	return c.Certificate
}

// verify implements the TOFU decision for a single handshake (spec
// §4.5): first use trusts and records the fingerprint (or is rejected
// when AllowFirstUse is false), a match updates last_seen, and a
// change is surfaced as *tofu.CertificateChangedError without being
// silently trusted.
func (c *Client) verify(host string, port int, leaf *x509.Certificate) error {
	fingerprint := certificate.Fingerprint(leaf)
	_, err := c.TOFU.Verify(host, port, fingerprint, c.AllowFirstUse)
	return err
}
