// Package stdout implements a Transport that prints emails to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/mail-bridge/internal/email"
)

const separator = "========================================\n"

// Transport prints email messages in a human-readable format instead of
// delivering them. Every recipient is reported as accepted.
type Transport struct {
	mu sync.Mutex
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Transport that writes to os.Stdout.
func New() *Transport {
	return &Transport{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Transport that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Transport {
	return &Transport{writer: w}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "stdout"
}

// Verify always succeeds.
func (t *Transport) Verify(context.Context) error {
	return nil
}

// Send prints the message. Invalid addresses and undecodable attachments
// fail the same way they would on a real transport.
func (t *Transport) Send(_ context.Context, msg *email.Message) (*email.Result, error) {
	rcpts, err := msg.Recipients()
	if err != nil {
		return nil, err
	}
	if len(rcpts) == 0 {
		return nil, fmt.Errorf("no recipients defined")
	}

	messageID := msg.MessageID
	if messageID == "" {
		messageID = email.NewMessageID(msg.From)
	}

	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "Message-ID: %s\n", messageID)
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To.Strings(), ", "))

	if !msg.Cc.Empty() {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc.Strings(), ", "))
	}
	if !msg.Bcc.Empty() {
		fmt.Fprintf(&b, "Bcc: %s\n", strings.Join(msg.Bcc.Strings(), ", "))
	}
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\n", msg.ReplyTo)
	}

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")

	body := msg.Text
	if body == "" {
		body = msg.HTML
	}
	b.WriteString(body + "\n")

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			content, err := att.Decode()
			if err != nil {
				return nil, err
			}
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString(separator)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.writer, b.String()); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}

	return &email.Result{
		MessageID: messageID,
		Accepted:  rcpts,
		Rejected:  []string{},
	}, nil
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
