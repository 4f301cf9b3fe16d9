// Package certificate provides TLS certificate generation, storage, and
// fingerprinting utilities for Gemini servers and clients.
package certificate

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"time"
)

// KeyAlgorithm selects the private key algorithm used by Create.
type KeyAlgorithm int

const (
	// RSA generates an RSA key pair (the default; spec §4.4 calls for
	// RSA 2048-bit as the default self-signed certificate algorithm).
	RSA KeyAlgorithm = iota
	ECDSA
	Ed25519
)

// DefaultRSABits is used when CreateOptions.RSABits is zero.
const DefaultRSABits = 2048

// DefaultDuration is used when CreateOptions.Duration is zero.
const DefaultDuration = 365 * 24 * time.Hour

// CreateOptions configures the creation of a TLS certificate.
type CreateOptions struct {
	// DNSNames and IPAddresses populate the certificate's Subject
	// Alternate Name extension.
	DNSNames    []string
	IPAddresses []net.IP

	// Subject specifies the certificate Subject. Subject.CommonName
	// should usually be set to the hostname the certificate serves.
	Subject pkix.Name

	// Duration is how long the certificate is valid for. Defaults to
	// DefaultDuration (365 days) when zero.
	Duration time.Duration

	// Algorithm selects the private key algorithm. Defaults to RSA.
	Algorithm KeyAlgorithm

	// RSABits is the RSA modulus size used when Algorithm is RSA.
	// Defaults to DefaultRSABits (2048) when zero.
	RSABits int
}

// Create creates a new self-signed TLS certificate.
func Create(options CreateOptions) (tls.Certificate, error) {
	if options.Duration == 0 {
		options.Duration = DefaultDuration
	}
	crt, priv, err := newX509KeyPair(options)
	if err != nil {
		return tls.Certificate{}, err
	}
	var cert tls.Certificate
	cert.Leaf = crt
	cert.Certificate = append(cert.Certificate, crt.Raw)
	cert.PrivateKey = priv
	return cert, nil
}

// GenerateSelfSigned creates a self-signed RSA 2048-bit certificate
// valid for 365 days with CN=hostname (spec §4.4's default server
// certificate).
func GenerateSelfSigned(hostname string) (tls.Certificate, error) {
	return Create(CreateOptions{
		DNSNames: []string{hostname},
		Subject:  pkix.Name{CommonName: hostname},
	})
}

func newX509KeyPair(options CreateOptions) (*x509.Certificate, crypto.PrivateKey, error) {
	var pub crypto.PublicKey
	var priv crypto.PrivateKey

	switch options.Algorithm {
	case Ed25519:
		p, s, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, err
		}
		pub, priv = p, s
	case ECDSA:
		s, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, err
		}
		pub, priv = &s.PublicKey, s
	default:
		bits := options.RSABits
		if bits == 0 {
			bits = DefaultRSABits
		}
		s, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, nil, err
		}
		pub, priv = &s.PublicKey, s
	}

	// These key types all require the DigitalSignature KeyUsage bit set
	// in the x509.Certificate template.
	keyUsage := x509.KeyUsageDigitalSignature

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, err
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(options.Duration)

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              keyUsage,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IPAddresses:           options.IPAddresses,
		DNSNames:              options.DNSNames,
		Subject:               options.Subject,
	}

	crt, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(crt)
	if err != nil {
		return nil, nil, err
	}
	return cert, priv, nil
}

// Write writes cert and its private key to certPath and keyPath, each
// with 0600 permissions.
func Write(cert tls.Certificate, certPath, keyPath string) error {
	certOut, err := os.OpenFile(certPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Leaf.Raw,
	}); err != nil {
		return err
	}

	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer keyOut.Close()
	privBytes, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		return err
	}
	return pem.Encode(keyOut, &pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
}
