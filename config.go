package gemini

import (
	"fmt"
	"time"
)

// Config is the fully-validated configuration accepted by Server. The
// core never loads configuration from disk, flags, or the environment
// itself (spec §1's "TOML/env/CLI configuration loading" is an
// external collaborator's job); callers build a Config value and pass
// it in, typically the result of parsing a config file with a
// separate tool.
type Config struct {
	Server           ServerConfig
	RateLimit        RateLimitConfig
	AccessControl    AccessControlConfig
	CertificateAuth  CertificateAuthConfig
	Titan            TitanConfig
	Logging          LoggingConfig
	RequestTimeout   time.Duration
}

// ServerConfig holds the listener and static-serving configuration.
type ServerConfig struct {
	Host              string
	Port              int
	DocumentRoot      string
	DefaultIndices    []string
	EnableDirListing  bool
	CertFile          string
	KeyFile           string
	MaxFileSize       int64
	RequireClientCert bool
}

// RateLimitConfig configures the per-IP token bucket middleware.
type RateLimitConfig struct {
	Enabled     bool
	Capacity    int
	RefillRate  float64 // tokens per second
	RetryAfter  time.Duration
}

// AccessControlConfig configures the CIDR allow/deny middleware.
type AccessControlConfig struct {
	Enabled      bool
	AllowList    []string
	DenyList     []string
	DefaultAllow bool
}

// PathRule is one entry of CertificateAuthConfig.Paths (spec §4.6).
type PathRule struct {
	Prefix              string
	RequireCert         bool
	AllowedFingerprints []string
}

// CertificateAuthConfig configures the path-scoped client certificate
// authorization middleware.
type CertificateAuthConfig struct {
	Paths []PathRule
}

// TitanConfig configures the Titan upload handler.
type TitanConfig struct {
	Enabled          bool
	UploadDir        string
	MaxUploadSize    int64
	AllowedMimeTypes []string // nil means any
	AuthTokens       []string // nil means no auth required
	EnableDelete     bool
}

// LoggingConfig configures the ambient request logger.
type LoggingConfig struct {
	HashIPs bool
}

// Validate checks c for internal consistency, returning a descriptive
// error for the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("gemini: config: server.port must be set to a value in [1, 65535]")
	}
	if c.Server.DocumentRoot == "" {
		return fmt.Errorf("gemini: config: server.document_root must be set")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Capacity <= 0 {
			return fmt.Errorf("gemini: config: rate_limit.capacity must be positive")
		}
		if c.RateLimit.RefillRate <= 0 {
			return fmt.Errorf("gemini: config: rate_limit.refill_rate must be positive")
		}
	}
	if c.Titan.Enabled {
		if c.Titan.UploadDir == "" {
			return fmt.Errorf("gemini: config: titan.upload_dir must be set when titan is enabled")
		}
		if c.Titan.MaxUploadSize <= 0 {
			return fmt.Errorf("gemini: config: titan.max_upload_size must be positive when titan is enabled")
		}
	}
	for _, rule := range c.CertificateAuth.Paths {
		if rule.Prefix == "" || rule.Prefix[0] != '/' {
			return fmt.Errorf("gemini: config: certificate_auth path rule prefix must start with '/'")
		}
	}
	return nil
}
