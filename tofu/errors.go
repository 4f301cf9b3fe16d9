package tofu

import "fmt"

// Classification is the outcome of a Verify call (spec §4.5).
type Classification int

const (
	// FirstUse means the (host, port) had no prior entry. Returned
	// without an error, the entry has now been recorded; returned with
	// *ErrFirstUseForbidden, nothing was recorded.
	FirstUse Classification = iota
	// Match means the presented fingerprint matches the stored one.
	Match
	// Changed means the presented fingerprint differs from the stored
	// one; the caller must treat this as untrusted.
	Changed
)

// CertificateChangedError is returned by Verify when a host's
// certificate fingerprint no longer matches the one on file. Client
// sessions must surface this distinctly and must not silently trust
// the new fingerprint (spec §4.5, §8 scenario 5).
type CertificateChangedError struct {
	Host           string
	Port           int
	OldFingerprint string
	NewFingerprint string
}

func (e *CertificateChangedError) Error() string {
	return fmt.Sprintf("tofu: certificate for %s:%d changed from %s to %s",
		e.Host, e.Port, e.OldFingerprint, e.NewFingerprint)
}

// ErrFirstUseForbidden is returned by Verify when a host has no known
// entry and the caller has disabled trust-on-first-use.
type ErrFirstUseForbidden struct {
	Host string
	Port int
}

func (e *ErrFirstUseForbidden) Error() string {
	return fmt.Sprintf("tofu: %s:%d is not a known host and trust-on-first-use is disabled", e.Host, e.Port)
}
