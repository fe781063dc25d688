// Package smtp implements a Transport that relays messages to an upstream
// SMTP server.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/shineum/mail-bridge/internal/email"
)

// defaultTimeout bounds dialing and each SMTP command when no deadline is configured.
const defaultTimeout = 2 * time.Minute

// Config holds the settings for connecting to the upstream server.
type Config struct {
	Host string
	Port int

	// Secure dials with implicit TLS. When false the connection starts in
	// plain text and is upgraded with STARTTLS if the server offers it.
	Secure bool

	Username string
	Password string

	// LocalName is sent with EHLO. Defaults to the OS hostname.
	LocalName string

	Timeout time.Duration

	// TLSConfig is used for implicit TLS and STARTTLS. ServerName defaults to Host.
	TLSConfig *tls.Config
}

// Transport sends each message over a fresh connection to the upstream server.
// It holds no per-connection state and is safe for concurrent use.
type Transport struct {
	cfg Config
}

// New creates a new SMTP Transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.LocalName == "" {
		cfg.LocalName = localHostname()
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = cfg.Host
	}
	cfg.TLSConfig = tlsConfig

	return &Transport{cfg: cfg}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Addr returns the upstream server address in host:port form.
func (t *Transport) Addr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

// Verify connects, authenticates and disconnects.
func (t *Transport) Verify(ctx context.Context) error {
	c, stop, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	if err := c.Quit(); err != nil {
		return fmt.Errorf("failed to quit SMTP session: %w", err)
	}
	return nil
}

// Send delivers msg in a single SMTP transaction. Recipients refused by the
// server are reported in Result.Rejected; the send fails only when every
// recipient is refused or the transaction itself breaks.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (*email.Result, error) {
	from, err := msg.Sender()
	if err != nil {
		return nil, err
	}
	rcpts, err := msg.Recipients()
	if err != nil {
		return nil, err
	}
	if len(rcpts) == 0 {
		return nil, errors.New("no recipients defined")
	}

	out := *msg
	if out.MessageID == "" {
		out.MessageID = email.NewMessageID(out.From)
	}
	raw, err := out.Bytes()
	if err != nil {
		return nil, err
	}

	c, stop, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()
	defer c.Close()

	if err := c.Mail(from, nil); err != nil {
		return nil, fmt.Errorf("sender %s was rejected: %w", from, err)
	}

	result := &email.Result{
		MessageID: out.MessageID,
		Accepted:  []string{},
		Rejected:  []string{},
	}

	var lastRejection error
	for _, rcpt := range rcpts {
		err := c.Rcpt(rcpt, nil)
		if err == nil {
			result.Accepted = append(result.Accepted, rcpt)
			continue
		}

		var smtpErr *smtp.SMTPError
		if !errors.As(err, &smtpErr) {
			return nil, fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
		slog.Debug("recipient rejected",
			"recipient", rcpt,
			"code", smtpErr.Code,
			"error", smtpErr.Message,
		)
		result.Rejected = append(result.Rejected, rcpt)
		lastRejection = err
	}

	if len(result.Accepted) == 0 {
		return nil, fmt.Errorf("all recipients were rejected: %w", lastRejection)
	}

	w, err := c.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to start DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("message was not accepted: %w", err)
	}

	// The message is already queued upstream; a failed QUIT changes nothing.
	if err := c.Quit(); err != nil {
		slog.Debug("SMTP quit failed after delivery", "error", err)
	}

	return result, nil
}

// connect dials the server and runs EHLO, STARTTLS and AUTH. The returned
// stop function must be called once the client is no longer used; until
// then cancelling ctx closes the connection.
func (t *Transport) connect(ctx context.Context) (*smtp.Client, func() bool, error) {
	c, stop, err := t.open(ctx, false)
	if err != nil {
		return nil, nil, err
	}

	// go-smtp negotiates STARTTLS only on a new client, so the plain session
	// that discovered the extension is closed and the server is dialed again.
	if !t.cfg.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			_ = c.Quit()
			_ = c.Close()
			stop()

			c, stop, err = t.open(ctx, true)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	if err := t.authenticate(c); err != nil {
		stop()
		_ = c.Close()
		return nil, nil, err
	}
	return c, stop, nil
}

// open dials the server, optionally upgrades the connection with STARTTLS
// and sends EHLO.
func (t *Transport) open(ctx context.Context, startTLS bool) (*smtp.Client, func() bool, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	var c *smtp.Client
	if startTLS {
		c, err = smtp.NewClientStartTLS(conn, t.cfg.TLSConfig)
		if err != nil {
			stop()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}
	c.CommandTimeout = t.cfg.Timeout
	c.SubmissionTimeout = t.cfg.Timeout

	if err := c.Hello(t.cfg.LocalName); err != nil {
		stop()
		_ = c.Close()
		return nil, nil, fmt.Errorf("EHLO failed: %w", err)
	}
	return c, stop, nil
}

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	netDialer := &net.Dialer{Timeout: t.cfg.Timeout}

	if t.cfg.Secure {
		dialer := &tls.Dialer{NetDialer: netDialer, Config: t.cfg.TLSConfig}
		conn, err := dialer.DialContext(ctx, "tcp", t.Addr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server with TLS: %w", err)
		}
		return conn, nil
	}

	conn, err := netDialer.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	return conn, nil
}

func (t *Transport) authenticate(c *smtp.Client) error {
	if t.cfg.Username == "" {
		return nil
	}
	if ok, _ := c.Extension("AUTH"); !ok {
		return errors.New("server does not support authentication")
	}
	if err := c.Auth(t.saslClient(c)); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

// saslClient prefers PLAIN and falls back to LOGIN for servers that only
// offer the legacy mechanism.
func (t *Transport) saslClient(c *smtp.Client) sasl.Client {
	if !c.SupportsAuth(sasl.Plain) && c.SupportsAuth(sasl.Login) {
		return sasl.NewLoginClient(t.cfg.Username, t.cfg.Password)
	}
	return sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
}

func localHostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}
