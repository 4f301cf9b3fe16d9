package certificate

import (
	"crypto/x509/pkix"
	"path/filepath"
	"testing"
)

func TestGenerateSelfSigned(t *testing.T) {
	cert, err := GenerateSelfSigned("example.com")
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatal("expected Leaf to be populated")
	}
	if cert.Leaf.Subject.CommonName != "example.com" {
		t.Errorf("expected CommonName %q, got %q", "example.com", cert.Leaf.Subject.CommonName)
	}
	if IsExpired(cert.Leaf) {
		t.Error("freshly generated certificate should not be expired")
	}
	if !ValidForHostname(cert.Leaf, "example.com") {
		t.Error("expected certificate to be valid for its own hostname")
	}
}

func TestCreateDefaultsToRSA2048(t *testing.T) {
	cert, err := Create(CreateOptions{Subject: pkix.Name{CommonName: "test"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cert.Leaf.PublicKeyAlgorithm.String() != "RSA" {
		t.Errorf("expected default algorithm RSA, got %s", cert.Leaf.PublicKeyAlgorithm)
	}
}

func TestCreateEd25519(t *testing.T) {
	cert, err := Create(CreateOptions{Algorithm: Ed25519, Subject: pkix.Name{CommonName: "test"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cert.Leaf.PublicKeyAlgorithm.String() != "Ed25519" {
		t.Errorf("expected Ed25519 algorithm, got %s", cert.Leaf.PublicKeyAlgorithm)
	}
}

func TestFingerprintIsStableAndContentAddressed(t *testing.T) {
	certA, err := GenerateSelfSigned("a.example.com")
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	certB, err := GenerateSelfSigned("b.example.com")
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}

	fpA1 := Fingerprint(certA.Leaf)
	fpA2 := Fingerprint(certA.Leaf)
	if fpA1 != fpA2 {
		t.Error("expected fingerprint to be deterministic for the same certificate")
	}
	if fpA1 == Fingerprint(certB.Leaf) {
		t.Error("expected different certificates to have different fingerprints")
	}
	if len(fpA1) < len("sha256:") || fpA1[:7] != "sha256:" {
		t.Errorf("expected fingerprint to be prefixed with %q, got %q", "sha256:", fpA1)
	}
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	cert, err := GenerateSelfSigned("example.com")
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "example.crt")
	keyPath := filepath.Join(dir, "example.key")
	if err := Write(cert, certPath, keyPath); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var d Dir
	if err := d.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	loaded, ok := d.Lookup("example")
	if !ok {
		t.Fatal("expected loaded certificate to be found by scope")
	}
	if Fingerprint(loaded.Leaf) != Fingerprint(cert.Leaf) {
		t.Error("expected loaded certificate to match the written one")
	}
}

func TestDirAddAndLookupEscapesScope(t *testing.T) {
	cert, err := GenerateSelfSigned("example.com")
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}

	dir := t.TempDir()
	var d Dir
	d.SetPath(dir)
	if err := d.Add("example.com/secret/path", cert); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := filepath.Glob(filepath.Join(dir, "example.com:secret:path.crt")); err != nil {
		t.Fatalf("Glob: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.crt"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one certificate file on disk, got %d", len(matches))
	}

	loaded, ok := d.Lookup("example.com/secret/path")
	if !ok {
		t.Fatal("expected certificate to be found by its original scope")
	}
	if Fingerprint(loaded.Leaf) != Fingerprint(cert.Leaf) {
		t.Error("expected looked-up certificate to match the added one")
	}
}
