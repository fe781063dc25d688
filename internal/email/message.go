// Package email defines the mail data model shared by the HTTP API and the delivery transports.
package email

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Message is one fully-formed outbound email.
// Optional fields left at their zero value are treated as absent and never
// rendered as empty headers or parts.
type Message struct {
	From        string
	To          AddressList
	Cc          AddressList
	Bcc         AddressList
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
	MessageID   string
}

// Attachment is a file attached to a message as supplied by the caller.
// Content is interpreted according to Encoding when the message is rendered.
type Attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

// Result is the outcome of a successful send as reported by the upstream server.
type Result struct {
	MessageID string
	Accepted  []string
	Rejected  []string
}

// Recipients returns the envelope recipients: To, then Cc, then Bcc.
func (m *Message) Recipients() ([]string, error) {
	var rcpts []string
	for _, list := range []AddressList{m.To, m.Cc, m.Bcc} {
		addrs, err := list.Addresses()
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			rcpts = append(rcpts, addr.Address)
		}
	}
	return rcpts, nil
}

// Sender returns the bare envelope address of the From field.
func (m *Message) Sender() (string, error) {
	addr, err := parseAddress(m.From)
	if err != nil {
		return "", fmt.Errorf("invalid from address: %w", err)
	}
	return addr.Address, nil
}

// Decode returns the raw attachment bytes.
func (a Attachment) Decode() ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(a.Encoding)) {
	case "", "utf8", "utf-8", "ascii":
		return []byte(a.Content), nil
	case "base64":
		cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(a.Content)
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			// unpadded input
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 attachment %q: %w", a.Filename, err)
			}
		}
		return decoded, nil
	case "binary", "latin1":
		return latin1Bytes(a.Content), nil
	case "hex":
		decoded, err := hex.DecodeString(a.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to decode hex attachment %q: %w", a.Filename, err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported attachment encoding %q for %q", a.Encoding, a.Filename)
	}
}

// NewMessageID generates a Message-ID in angle brackets whose right-hand
// side is the domain of the given sender address.
func NewMessageID(from string) string {
	domain := "localhost"
	if addr, err := parseAddress(from); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at >= 0 && at < len(addr.Address)-1 {
			domain = addr.Address[at+1:]
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// latin1Bytes maps each character to one byte, keeping the low eight bits
// of characters outside Latin-1.
func latin1Bytes(s string) []byte {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		b = append(b, byte(r))
	}
	return b
}
