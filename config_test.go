package gemini

import "testing"

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:         1965,
			DocumentRoot: "/var/gemini",
		},
	}
}

func TestConfigValidateOK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected a minimal valid config to pass, got %v", err)
	}
}

func TestConfigValidateRequiresPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing port to fail validation")
	}
}

func TestConfigValidateRequiresDocumentRoot(t *testing.T) {
	cfg := validConfig()
	cfg.Server.DocumentRoot = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing document root to fail validation")
	}
}

func TestConfigValidateRateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero capacity/refill rate to fail validation when rate limiting is enabled")
	}
	cfg.RateLimit.Capacity = 10
	cfg.RateLimit.RefillRate = 1
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected fully-specified rate limit config to pass, got %v", err)
	}
}

func TestConfigValidateTitan(t *testing.T) {
	cfg := validConfig()
	cfg.Titan.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected titan enabled without an upload dir/max size to fail validation")
	}
	cfg.Titan.UploadDir = "/var/gemini/uploads"
	cfg.Titan.MaxUploadSize = 1 << 20
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected fully-specified titan config to pass, got %v", err)
	}
}

func TestConfigValidatePathRulePrefix(t *testing.T) {
	cfg := validConfig()
	cfg.CertificateAuth.Paths = []PathRule{{Prefix: ""}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected a path rule with an empty prefix to fail validation")
	}
}
