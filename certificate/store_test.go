package certificate

import (
	"crypto/tls"
	"testing"
)

func TestStoreGetRequiresRegisteredScope(t *testing.T) {
	var s Store
	if _, err := s.Get("example.com"); err == nil {
		t.Error("expected Get to fail for an unregistered hostname")
	}
}

func TestStoreGetGeneratesAndCachesCertificate(t *testing.T) {
	var s Store
	s.Register("example.com")

	cert1, err := s.Get("example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cert2, err := s.Get("example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if Fingerprint(cert1.Leaf) != Fingerprint(cert2.Leaf) {
		t.Error("expected repeated Get calls to return the same cached certificate")
	}
}

func TestStoreGetWildcardFallback(t *testing.T) {
	var s Store
	s.Register("*.example.com")

	cert, err := s.Get("sub.example.com")
	if err != nil {
		t.Fatalf("expected wildcard scope to satisfy a subdomain lookup: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatal("expected a generated leaf certificate")
	}
}

func TestStoreGetCatchAllFallback(t *testing.T) {
	var s Store
	s.Register("*")

	if _, err := s.Get("anything.example.org"); err != nil {
		t.Fatalf("expected catch-all scope to satisfy any hostname: %v", err)
	}
}

func TestStoreLookupParentScopeFallback(t *testing.T) {
	var s Store
	cert, err := GenerateSelfSigned("example.com")
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	if err := s.Add("example.com", cert); err != nil {
		t.Fatalf("Add: %v", err)
	}

	found, ok := s.Lookup("example.com/a/b/c")
	if !ok {
		t.Fatal("expected Lookup to fall back to the parent scope")
	}
	if Fingerprint(found.Leaf) != Fingerprint(cert.Leaf) {
		t.Error("expected the parent-scope certificate to be returned")
	}
}

func TestStoreCreateCertificateOverride(t *testing.T) {
	var s Store
	called := false
	s.CreateCertificate = func(scope string) (tls.Certificate, error) {
		called = true
		return GenerateSelfSigned(scope)
	}
	s.Register("example.com")
	if _, err := s.Get("example.com"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !called {
		t.Error("expected the custom CreateCertificate hook to be invoked")
	}
}
