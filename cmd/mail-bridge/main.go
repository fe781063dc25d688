// Package main is the entry point for the HTTP-to-SMTP mail bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shineum/mail-bridge/internal/config"
	"github.com/shineum/mail-bridge/internal/httpapi"
	bridgetls "github.com/shineum/mail-bridge/internal/tls"
	"github.com/shineum/mail-bridge/internal/transport"
	"github.com/shineum/mail-bridge/internal/transport/ses"
	"github.com/shineum/mail-bridge/internal/transport/smtp"
	"github.com/shineum/mail-bridge/internal/transport/stdout"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "path to a dotenv file loaded before the environment is read (ignored if missing)")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		slog.Error("mail-bridge failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	// Load configuration
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		if config.IsMissing(err) {
			slog.Error("required configuration is missing", "transport", cfg.Transport)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Select and verify the delivery transport before accepting traffic
	tr, err := selectTransport(ctx, cfg)
	if err != nil {
		return err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.SMTP.Timeout)
	err = tr.Verify(verifyCtx)
	cancel()
	if err != nil {
		slog.Error("SMTP connection failed", "transport", tr.Name(), "error", err)
		slog.Error("please check your mail server credentials and settings")
		return fmt.Errorf("transport verification failed: %w", err)
	}
	slog.Info("transport connection verified", "transport", tr.Name())

	// Optional HTTPS listener
	tlsConfig, err := bridgetls.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.SelfSigned)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}

	router := httpapi.NewRouter(httpapi.Config{
		APIKey:       cfg.API.Key,
		DefaultFrom:  cfg.SMTP.User,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, tr, httpapi.NewMetrics())

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting mail-bridge",
		"listen", server.Addr,
		"transport", tr.Name(),
		"tls_enabled", cfg.TLSEnabled(),
	)

	return serve(ctx, server, cfg.HTTP.ShutdownTimeout)
}

// serve runs the server until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("received signal, initiating shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	slog.Info("mail-bridge stopped")
	return nil
}

// loadEnvFile loads variables from a dotenv file without overriding ones
// already set in the environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectTransport builds the delivery backend named by the configuration.
func selectTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		tlsConfig, err := bridgetls.ClientConfig(cfg.SMTP.Host, cfg.SMTP.CAFile, cfg.SMTP.TLSInsecure)
		if err != nil {
			return nil, fmt.Errorf("failed to setup SMTP TLS: %w", err)
		}
		slog.Info("using SMTP transport",
			"addr", cfg.SMTPAddr(),
			"secure", bool(cfg.SMTP.Secure),
			"user", cfg.SMTP.User,
		)
		return smtp.New(smtp.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Secure:    bool(cfg.SMTP.Secure),
			Username:  cfg.SMTP.User,
			Password:  cfg.SMTP.Pass,
			LocalName: cfg.SMTP.LocalName,
			Timeout:   cfg.SMTP.Timeout,
			TLSConfig: tlsConfig,
		}), nil

	case config.TransportSES:
		slog.Info("using AWS SES transport", "region", cfg.SES.Region)
		t, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES transport: %w", err)
		}
		return t, nil

	case config.TransportStdout:
		slog.Info("using stdout transport")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
