package certificate

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
)

// ServerTLSConfigFromStore returns a *tls.Config like ServerTLSConfig,
// but selects a certificate per handshake from store by SNI hostname
// instead of presenting a single fixed certificate — for a listener
// serving more than one capsule hostname off the same port.
func ServerTLSConfigFromStore(store *Store, requireClientCert bool) *tls.Config {
	clientAuth := tls.RequestClientCert
	if requireClientCert {
		clientAuth = tls.RequireAnyClientCert
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ClientAuth: clientAuth,
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			return store.Get(hello.ServerName)
		},
	}
}

// ServerTLSConfig returns a *tls.Config suitable for a Gemini listener
// (spec §4.3): TLS 1.2 floor, and a client certificate policy that
// accepts untrusted, self-signed client certificates rather than
// verifying them against a CA pool — Gemini clients routinely present
// certificates with no CA behind them at all, verified instead by the
// server's own certificate_auth fingerprint allow-list.
func ServerTLSConfig(cert tls.Certificate, requireClientCert bool) *tls.Config {
	clientAuth := tls.RequestClientCert
	if requireClientCert {
		clientAuth = tls.RequireAnyClientCert
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   clientAuth,
		// Neither RequestClientCert nor RequireAnyClientCert triggers Go's
		// default chain verification (that only happens with
		// RequireAndVerifyClientCert / VerifyClientCertIfGiven plus a
		// ClientCAs pool), so self-signed client certificates are
		// accepted as-is; VerifyPeerCertificate is left nil on purpose.
	}
}

// ClientTLSConfig returns a *tls.Config for a Gemini client dialing
// host. verify is called with the server's leaf certificate once the
// handshake has produced it; it should implement trust-on-first-use
// verification (spec §4.5) and return an error to abort the
// connection. InsecureSkipVerify is set because Gemini servers
// routinely present self-signed certificates with no CA behind them,
// so verification is performed entirely by verify instead of the
// standard library's chain validation.
func ClientTLSConfig(host string, clientCert *tls.Certificate, verify func(*x509.Certificate) error) *tls.Config {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         host,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("certificate: server presented no certificate")
			}
			cert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return err
			}
			return verify(cert)
		},
	}
	if clientCert != nil {
		cfg.Certificates = []tls.Certificate{*clientCert}
	}
	return cfg
}
