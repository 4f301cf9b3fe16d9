package certificate

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"time"
)

// Fingerprint returns cert's fingerprint in the "sha256:<hex>" form
// used throughout the TOFU store and certificate_auth configuration
// (spec §4.4).
func Fingerprint(cert *x509.Certificate) string {
	return FingerprintDER(cert.Raw)
}

// FingerprintDER computes the fingerprint of a certificate's raw DER
// encoding directly, for callers that only have the bytes off the wire
// (e.g. tls.ConnectionState.PeerCertificates[0].Raw).
func FingerprintDER(der []byte) string {
	sum := sha256.Sum256(der)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// IsExpired reports whether cert's validity window has elapsed.
func IsExpired(cert *x509.Certificate) bool {
	return time.Now().After(cert.NotAfter)
}

// ValidForHostname reports whether cert is valid for hostname, either
// via an exact or wildcard DNSNames entry or a matching CommonName.
func ValidForHostname(cert *x509.Certificate, hostname string) bool {
	if cert.VerifyHostname(hostname) == nil {
		return true
	}
	return cert.Subject.CommonName == hostname
}
