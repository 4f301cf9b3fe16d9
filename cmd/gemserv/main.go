// Command gemserv serves a directory tree over Gemini with per-IP rate
// limiting. It does not enable Titan uploads, and its access-control
// and certificate-auth middleware get empty configs, so they pass
// every request through.
//
// It is a minimal demonstration of the gemini package's Server,
// ServeMux, FileHandler, and middleware; a production deployment would
// pair it with a config file loader that produces a gemini.Config.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	gemini "git.sr.ht/~wayfarer/gemini"
	"git.sr.ht/~wayfarer/gemini/certificate"
)

func main() {
	addr := flag.String("addr", ":1965", "address to listen on")
	root := flag.String("root", ".", "document root")
	hostname := flag.String("hostname", "localhost", "hostname for the self-signed certificate")
	certFile := flag.String("cert", "", "TLS certificate file (generated if empty)")
	keyFile := flag.String("key", "", "TLS key file (generated if empty)")
	flag.Parse()

	cert, err := loadOrGenerateCertificate(*certFile, *keyFile, *hostname)
	if err != nil {
		log.Fatalf("gemserv: %v", err)
	}

	mux := &gemini.ServeMux{}
	mux.Handle("/", &gemini.FileHandler{
		DocumentRoot:           *root,
		DefaultIndices:         []string{"index.gmi", "index.gemini"},
		EnableDirectoryListing: true,
		MaxFileSize:            50 << 20,
	})

	cfg := gemini.Config{
		RateLimit: gemini.RateLimitConfig{
			Enabled:    true,
			Capacity:   20,
			RefillRate: 2,
			RetryAfter: 10 * time.Second,
		},
	}

	handler := gemini.Chain(mux,
		gemini.AccessControl(cfg.AccessControl),
		gemini.RateLimit(cfg.RateLimit),
		gemini.CertificateAuth(cfg.CertificateAuth),
	)
	handler = gemini.TimeoutHandler(handler, 20*time.Second)

	server := &gemini.Server{
		Addr:        *addr,
		Certificate: cert,
		Handler:     handler,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("gemserv: listening on %s, serving %s", *addr, *root)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("gemserv: %v", err)
	}
}

func loadOrGenerateCertificate(certFile, keyFile, hostname string) (tls.Certificate, error) {
	if certFile != "" && keyFile != "" {
		return tls.LoadX509KeyPair(certFile, keyFile)
	}
	return certificate.GenerateSelfSigned(hostname)
}
