package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allEnvVars = []string{
	"TRANSPORT",
	"SMTP_HOST", "SMTP_PORT", "SMTP_SECURE", "SMTP_USER", "SMTP_PASS",
	"SMTP_LOCAL_NAME", "SMTP_TIMEOUT", "SMTP_TLS_INSECURE", "SMTP_CA_FILE",
	"API_KEY", "PORT", "MAX_BODY_BYTES", "SHUTDOWN_TIMEOUT",
	"TLS_CERT_FILE", "TLS_KEY_FILE", "TLS_SELF_SIGNED",
	"SES_REGION", "SES_ACCESS_KEY_ID", "SES_SECRET_ACCESS_KEY",
	"LOG_LEVEL",
}

// clearEnv blanks every variable the loader reads so host settings do not leak
// into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allEnvVars {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Transport != TransportSMTP {
		t.Errorf("Transport: got %q, want %q", cfg.Transport, TransportSMTP)
	}
	if cfg.SMTP.Host != "smtp.fastmail.com" {
		t.Errorf("SMTP.Host: got %q, want %q", cfg.SMTP.Host, "smtp.fastmail.com")
	}
	if cfg.SMTP.Port != 465 {
		t.Errorf("SMTP.Port: got %d, want %d", cfg.SMTP.Port, 465)
	}
	if !cfg.SMTP.Secure {
		t.Error("SMTP.Secure: got false, want true")
	}
	if cfg.SMTP.Timeout != 2*time.Minute {
		t.Errorf("SMTP.Timeout: got %v, want %v", cfg.SMTP.Timeout, 2*time.Minute)
	}
	if cfg.HTTP.Port != 3000 {
		t.Errorf("HTTP.Port: got %d, want %d", cfg.HTTP.Port, 3000)
	}
	if cfg.HTTP.MaxBodyBytes != 26214400 {
		t.Errorf("HTTP.MaxBodyBytes: got %d, want %d", cfg.HTTP.MaxBodyBytes, 26214400)
	}
	if cfg.HTTP.ShutdownTimeout != 30*time.Second {
		t.Errorf("HTTP.ShutdownTimeout: got %v, want %v", cfg.HTTP.ShutdownTimeout, 30*time.Second)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.SMTP.User != "" || cfg.SMTP.Pass != "" || cfg.API.Key != "" {
		t.Error("secrets should have no default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSPORT", " SES ")
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("SMTP_USER", "me@example.com")
	t.Setenv("SMTP_PASS", "app-password")
	t.Setenv("SMTP_TIMEOUT", "15s")
	t.Setenv("API_KEY", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_BODY_BYTES", "1024")
	t.Setenv("SES_REGION", "eu-west-1")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Transport != TransportSES {
		t.Errorf("Transport: got %q, want %q", cfg.Transport, TransportSES)
	}
	if cfg.SMTP.Host != "mail.example.com" {
		t.Errorf("SMTP.Host: got %q, want %q", cfg.SMTP.Host, "mail.example.com")
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("SMTP.Port: got %d, want %d", cfg.SMTP.Port, 587)
	}
	if cfg.SMTP.User != "me@example.com" {
		t.Errorf("SMTP.User: got %q, want %q", cfg.SMTP.User, "me@example.com")
	}
	if cfg.SMTP.Pass != "app-password" {
		t.Errorf("SMTP.Pass: got %q, want %q", cfg.SMTP.Pass, "app-password")
	}
	if cfg.SMTP.Timeout != 15*time.Second {
		t.Errorf("SMTP.Timeout: got %v, want %v", cfg.SMTP.Timeout, 15*time.Second)
	}
	if cfg.API.Key != "secret" {
		t.Errorf("API.Key: got %q, want %q", cfg.API.Key, "secret")
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port: got %d, want %d", cfg.HTTP.Port, 8080)
	}
	if cfg.HTTP.MaxBodyBytes != 1024 {
		t.Errorf("HTTP.MaxBodyBytes: got %d, want %d", cfg.HTTP.MaxBodyBytes, 1024)
	}
	if cfg.SES.Region != "eu-west-1" {
		t.Errorf("SES.Region: got %q, want %q", cfg.SES.Region, "eu-west-1")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_SecureFlag(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "", want: true},
		{value: "true", want: true},
		{value: "false", want: false},
		{value: "FALSE", want: true},
		{value: "0", want: true},
		{value: "no", want: true},
	}

	for _, tt := range tests {
		t.Run("value="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SMTP_SECURE", tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bool(cfg.SMTP.Secure) != tt.want {
				t.Errorf("SMTP.Secure for %q: got %v, want %v", tt.value, cfg.SMTP.Secure, tt.want)
			}
		})
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{name: "smtp port", env: "SMTP_PORT", value: "not-a-number"},
		{name: "http port", env: "PORT", value: "abc"},
		{name: "timeout", env: "SMTP_TIMEOUT", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q, got nil", tt.env, tt.value)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	yamlContent := `
transport: stdout
smtp:
  host: "smtp.example.org"
  port: 587
  secure: false
  user: "yamluser@example.org"
  pass: "yamlpass"
api:
  key: "yaml-key"
http:
  port: 4000
  max_body_bytes: 5242880
tls:
  cert_file: "/yaml/cert.pem"
  key_file: "/yaml/key.pem"
logging:
  level: "warn"
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	clearEnv(t)

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Transport != TransportStdout {
		t.Errorf("Transport: got %q, want %q", cfg.Transport, TransportStdout)
	}
	if cfg.SMTP.Host != "smtp.example.org" {
		t.Errorf("SMTP.Host: got %q, want %q", cfg.SMTP.Host, "smtp.example.org")
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("SMTP.Port: got %d, want %d", cfg.SMTP.Port, 587)
	}
	if cfg.SMTP.Secure {
		t.Error("SMTP.Secure: got true, want false")
	}
	if cfg.SMTP.User != "yamluser@example.org" {
		t.Errorf("SMTP.User: got %q, want %q", cfg.SMTP.User, "yamluser@example.org")
	}
	if cfg.API.Key != "yaml-key" {
		t.Errorf("API.Key: got %q, want %q", cfg.API.Key, "yaml-key")
	}
	if cfg.HTTP.Port != 4000 {
		t.Errorf("HTTP.Port: got %d, want %d", cfg.HTTP.Port, 4000)
	}
	if cfg.HTTP.MaxBodyBytes != 5242880 {
		t.Errorf("HTTP.MaxBodyBytes: got %d, want %d", cfg.HTTP.MaxBodyBytes, 5242880)
	}
	if cfg.TLS.CertFile != "/yaml/cert.pem" {
		t.Errorf("TLS.CertFile: got %q, want %q", cfg.TLS.CertFile, "/yaml/cert.pem")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "warn")
	}
	// Unset keys keep their defaults
	if cfg.HTTP.ShutdownTimeout != 30*time.Second {
		t.Errorf("HTTP.ShutdownTimeout: got %v, want %v", cfg.HTTP.ShutdownTimeout, 30*time.Second)
	}
}

func TestLoadFromFile_EnvOverridesYAML(t *testing.T) {
	yamlContent := `
smtp:
  host: "smtp.example.org"
  user: "yamluser@example.org"
logging:
  level: "warn"
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	clearEnv(t)
	t.Setenv("SMTP_HOST", "smtp.override.net")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Env var should override YAML
	if cfg.SMTP.Host != "smtp.override.net" {
		t.Errorf("SMTP.Host: got %q, want %q (env should override YAML)", cfg.SMTP.Host, "smtp.override.net")
	}
	// Empty env var should NOT override YAML value
	if cfg.SMTP.User != "yamluser@example.org" {
		t.Errorf("SMTP.User: got %q, want %q (empty env should not override YAML)", cfg.SMTP.User, "yamluser@example.org")
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level: got %q, want %q (env should override YAML)", cfg.Logging.Level, "error")
	}
}

func TestLoadFromFile_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.SMTP.User = "me@example.com"
	cfg.SMTP.Pass = "app-password"
	cfg.API.Key = "secret"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantMissing []string
		wantErr     bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:        "all secrets missing",
			mutate:      func(c *Config) { c.SMTP.User, c.SMTP.Pass, c.API.Key = "", "", "" },
			wantMissing: []string{"SMTP_USER", "SMTP_PASS", "API_KEY"},
		},
		{
			name:        "api key missing",
			mutate:      func(c *Config) { c.API.Key = "" },
			wantMissing: []string{"API_KEY"},
		},
		{
			name: "ses needs region not password",
			mutate: func(c *Config) {
				c.Transport = TransportSES
				c.SMTP.Pass = ""
			},
			wantMissing: []string{"SES_REGION"},
		},
		{
			name: "stdout needs only user and key",
			mutate: func(c *Config) {
				c.Transport = TransportStdout
				c.SMTP.Pass = ""
			},
		},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "carrier-pigeon" }, wantErr: true},
		{name: "smtp port zero", mutate: func(c *Config) { c.SMTP.Port = 0 }, wantErr: true},
		{name: "http port too large", mutate: func(c *Config) { c.HTTP.Port = 70000 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.SMTP.Timeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			switch {
			case tt.wantMissing != nil:
				var missing *MissingError
				if !errors.As(err, &missing) {
					t.Fatalf("expected *MissingError, got %v", err)
				}
				if got, want := strings.Join(missing.Vars, ","), strings.Join(tt.wantMissing, ","); got != want {
					t.Errorf("missing vars: got %q, want %q", got, want)
				}
				if !IsMissing(err) {
					t.Error("IsMissing: got false, want true")
				}
			case tt.wantErr:
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if IsMissing(err) {
					t.Errorf("IsMissing: got true for %v", err)
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestMissingError_Message(t *testing.T) {
	t.Parallel()

	err := &MissingError{Vars: []string{"SMTP_USER", "API_KEY"}}
	want := "missing required environment variables: SMTP_USER, API_KEY"
	if err.Error() != want {
		t.Errorf("Error(): got %q, want %q", err.Error(), want)
	}
}

func TestAddrs(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got := cfg.SMTPAddr(); got != "smtp.fastmail.com:465" {
		t.Errorf("SMTPAddr(): got %q, want %q", got, "smtp.fastmail.com:465")
	}
	if got := cfg.ListenAddr(); got != ":3000" {
		t.Errorf("ListenAddr(): got %q, want %q", got, ":3000")
	}
}

func TestTLSEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		tls    TLSConfig
		expect bool
	}{
		{name: "both files", tls: TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}, expect: true},
		{name: "self signed", tls: TLSConfig{SelfSigned: true}, expect: true},
		{name: "cert only", tls: TLSConfig{CertFile: "c.pem"}, expect: false},
		{name: "none", tls: TLSConfig{}, expect: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{TLS: tt.tls}
			if got := cfg.TLSEnabled(); got != tt.expect {
				t.Errorf("TLSEnabled(): got %v, want %v", got, tt.expect)
			}
		})
	}
}
