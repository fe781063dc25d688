// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mail bridge.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// defaultMaxBodyBytes is 25 MB in bytes.
const defaultMaxBodyBytes = 26214400

// Supported delivery transports.
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportStdout = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Transport string        `yaml:"transport" env:"TRANSPORT"`
	SMTP      SMTPConfig    `yaml:"smtp"`
	API       APIConfig     `yaml:"api"`
	HTTP      HTTPConfig    `yaml:"http"`
	TLS       TLSConfig     `yaml:"tls"`
	SES       SESConfig     `yaml:"ses"`
	Logging   LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds the upstream SMTP server settings.
type SMTPConfig struct {
	Host        string        `yaml:"host" env:"SMTP_HOST"`
	Port        int           `yaml:"port" env:"SMTP_PORT"`
	Secure      SecureFlag    `yaml:"secure" env:"SMTP_SECURE"`
	User        string        `yaml:"user" env:"SMTP_USER"`
	Pass        string        `yaml:"pass" env:"SMTP_PASS"`
	LocalName   string        `yaml:"local_name" env:"SMTP_LOCAL_NAME"`
	Timeout     time.Duration `yaml:"timeout" env:"SMTP_TIMEOUT"`
	TLSInsecure bool          `yaml:"tls_insecure" env:"SMTP_TLS_INSECURE"`
	CAFile      string        `yaml:"ca_file" env:"SMTP_CA_FILE"`
}

// APIConfig holds the HTTP API credentials.
type APIConfig struct {
	Key string `yaml:"key" env:"API_KEY"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// TLSConfig holds the HTTPS listener certificate settings.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file" env:"TLS_CERT_FILE"`
	KeyFile    string `yaml:"key_file" env:"TLS_KEY_FILE"`
	SelfSigned bool   `yaml:"self_signed" env:"TLS_SELF_SIGNED"`
}

// SESConfig holds AWS SES settings for the ses transport.
type SESConfig struct {
	Region          string `yaml:"region" env:"SES_REGION"`
	AccessKeyID     string `yaml:"access_key_id" env:"SES_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SES_SECRET_ACCESS_KEY"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// SecureFlag enables implicit TLS to the upstream server. Only the literal
// value "false" turns it off.
type SecureFlag bool

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *SecureFlag) UnmarshalText(text []byte) error {
	*f = SecureFlag(string(text) != "false")
	return nil
}

// MissingError reports required settings that were not provided.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Vars, ", ")
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every required secret is present and that the
// selected transport is known. A *MissingError lists absent variables.
func (c *Config) Validate() error {
	var missing []string

	switch c.Transport {
	case TransportSMTP:
		if c.SMTP.User == "" {
			missing = append(missing, "SMTP_USER")
		}
		if c.SMTP.Pass == "" {
			missing = append(missing, "SMTP_PASS")
		}
	case TransportSES:
		if c.SMTP.User == "" {
			missing = append(missing, "SMTP_USER")
		}
		if c.SES.Region == "" {
			missing = append(missing, "SES_REGION")
		}
	case TransportStdout:
		if c.SMTP.User == "" {
			missing = append(missing, "SMTP_USER")
		}
	default:
		return fmt.Errorf("unknown transport %q (want %s, %s or %s)",
			c.Transport, TransportSMTP, TransportSES, TransportStdout)
	}

	if c.API.Key == "" {
		missing = append(missing, "API_KEY")
	}

	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}

	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.SMTP.Port)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("PORT must be between 0 and 65535, got %d", c.HTTP.Port)
	}
	if c.SMTP.Timeout <= 0 {
		return fmt.Errorf("SMTP_TIMEOUT must be positive, got %s", c.SMTP.Timeout)
	}

	return nil
}

// IsMissing reports whether err is a *MissingError.
func IsMissing(err error) bool {
	var missing *MissingError
	return errors.As(err, &missing)
}

// SMTPAddr returns the upstream server address in host:port form.
func (c *Config) SMTPAddr() string {
	return net.JoinHostPort(c.SMTP.Host, strconv.Itoa(c.SMTP.Port))
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.HTTP.Port)
}

// TLSEnabled returns true if the HTTP listener should serve HTTPS.
func (c *Config) TLSEnabled() bool {
	return (c.TLS.CertFile != "" && c.TLS.KeyFile != "") || c.TLS.SelfSigned
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Transport = TransportSMTP
	c.SMTP.Host = "smtp.fastmail.com"
	c.SMTP.Port = 465
	c.SMTP.Secure = true
	c.SMTP.Timeout = 2 * time.Minute
	c.HTTP.Port = 3000
	c.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	c.HTTP.ShutdownTimeout = 30 * time.Second
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	return nil
}
