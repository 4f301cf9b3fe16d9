package certificate

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"strings"
	"sync"
)

// Dir represents a directory of client identity certificates, keyed by
// an arbitrary scope string (for Gemini clients, typically
// "host/path", spec §4.10's per-path client certificate selection).
// The zero value of Dir is an empty directory ready to use.
//
// Dir differs from Store in that its scopes are matched exactly (no
// wildcard or parent-scope fallback) and may contain path separators,
// which are escaped for the on-disk filename.
//
// Dir is safe for concurrent use by multiple goroutines.
type Dir struct {
	certs map[string]tls.Certificate
	path  *string
	mu    sync.RWMutex
}

// Add adds a certificate for the given scope to the directory.
func (d *Dir) Add(scope string, cert tls.Certificate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.certs == nil {
		d.certs = map[string]tls.Certificate{}
	}
	if cert.Leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err == nil {
			cert.Leaf = parsed
		}
	}

	if d.path != nil {
		scope := strings.ReplaceAll(scope, "/", ":")
		certPath := filepath.Join(*d.path, scope+".crt")
		keyPath := filepath.Join(*d.path, scope+".key")
		if err := Write(cert, certPath, keyPath); err != nil {
			return err
		}
	}

	d.certs[scope] = cert
	return nil
}

// Lookup returns the certificate for the provided scope.
func (d *Dir) Lookup(scope string) (tls.Certificate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cert, ok := d.certs[scope]
	return cert, ok
}

// Load loads certificates from the given path; new certificates are
// subsequently written there too.
func (d *Dir) Load(path string) error {
	matches, err := filepath.Glob(filepath.Join(path, "*.crt"))
	if err != nil {
		return err
	}
	for _, crtPath := range matches {
		keyPath := strings.TrimSuffix(crtPath, ".crt") + ".key"
		cert, err := tls.LoadX509KeyPair(crtPath, keyPath)
		if err != nil {
			continue
		}
		scope := strings.TrimSuffix(filepath.Base(crtPath), ".crt")
		scope = strings.ReplaceAll(scope, ":", "/")
		d.Add(scope, cert)
	}
	d.SetPath(path)
	return nil
}

// SetPath sets the directory that new certificates will be written to.
func (d *Dir) SetPath(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.path = &path
}
