package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/gomail.v2"
)

// Compose builds the MIME representation of the message. Bcc recipients are
// never written to the headers; they only take part in the envelope.
func (m *Message) Compose() (*gomail.Message, error) {
	gm := gomail.NewMessage(gomail.SetCharset("UTF-8"), gomail.SetEncoding(gomail.QuotedPrintable))

	from, err := parseAddress(m.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", m.From, err)
	}
	gm.SetAddressHeader("From", from.Address, from.Name)

	if err := setAddressHeader(gm, "To", m.To); err != nil {
		return nil, err
	}
	if err := setAddressHeader(gm, "Cc", m.Cc); err != nil {
		return nil, err
	}
	if m.ReplyTo != "" {
		replyTo, err := parseAddress(m.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("invalid reply-to address %q: %w", m.ReplyTo, err)
		}
		gm.SetAddressHeader("Reply-To", replyTo.Address, replyTo.Name)
	}

	gm.SetHeader("Subject", m.Subject)
	if m.MessageID != "" {
		gm.SetHeader("Message-ID", m.MessageID)
	}

	switch {
	case m.Text != "" && m.HTML != "":
		gm.SetBody("text/plain", m.Text)
		gm.AddAlternative("text/html", m.HTML)
	case m.HTML != "":
		gm.SetBody("text/html", m.HTML)
	case m.Text != "":
		gm.SetBody("text/plain", m.Text)
	}

	for _, att := range m.Attachments {
		content, err := att.Decode()
		if err != nil {
			return nil, err
		}
		gm.Attach(attachmentName(att.Filename), gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	return gm, nil
}

// Bytes renders the message to its raw RFC 5322 form.
func (m *Message) Bytes() ([]byte, error) {
	gm, err := m.Compose()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := gm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}

func setAddressHeader(gm *gomail.Message, field string, list AddressList) error {
	addrs, err := list.Addresses()
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return nil
	}

	values := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		values = append(values, gm.FormatAddress(addr.Address, addr.Name))
	}
	gm.SetHeader(field, values...)
	return nil
}

// attachmentName keeps only the last path element so the name is usable in
// Content-Disposition.
func attachmentName(filename string) string {
	name := strings.TrimSpace(filename)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." {
		return "attachment"
	}
	return name
}
