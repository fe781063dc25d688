package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/shineum/mail-bridge/internal/email"
	"github.com/shineum/mail-bridge/internal/transport"
)

const (
	serviceName    = "Fastmail Bridge"
	serviceVersion = "1.0.0"
)

// sendRequest is the JSON body accepted by POST /api/send.
type sendRequest struct {
	To          email.AddressList  `json:"to"`
	From        string             `json:"from"`
	Subject     string             `json:"subject"`
	Text        string             `json:"text"`
	HTML        string             `json:"html"`
	Cc          email.AddressList  `json:"cc"`
	Bcc         email.AddressList  `json:"bcc"`
	ReplyTo     string             `json:"replyTo"`
	Attachments []email.Attachment `json:"attachments"`
}

type sendResponse struct {
	Success   bool     `json:"success"`
	MessageID string   `json:"messageId"`
	Accepted  []string `json:"accepted"`
	Rejected  []string `json:"rejected"`
}

type handlers struct {
	transport    transport.Transport
	defaultFrom  string
	maxBodyBytes int64
	metrics      *Metrics
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handlers) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeErrorDetails(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	if message := req.validate(); message != "" {
		writeError(w, http.StatusBadRequest, message)
		return
	}

	msg := req.message(h.defaultFrom)

	start := time.Now()
	result, err := h.transport.Send(r.Context(), msg)
	h.metrics.observeSend(h.transport.Name(), err, time.Since(start))
	if err != nil {
		slog.Error("failed to send email",
			"request_id", middleware.GetReqID(r.Context()),
			"transport", h.transport.Name(),
			"error", err,
		)
		details := err.Error()
		if details == "" {
			details = "Unknown error"
		}
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to send email", details)
		return
	}

	slog.Info("email sent",
		"request_id", middleware.GetReqID(r.Context()),
		"transport", h.transport.Name(),
		"message_id", result.MessageID,
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
	)

	writeJSON(w, http.StatusOK, sendResponse{
		Success:   true,
		MessageID: result.MessageID,
		Accepted:  nonNil(result.Accepted),
		Rejected:  nonNil(result.Rejected),
	})
}

// validate returns the client-facing error message, or "" when the request
// can be sent.
func (req *sendRequest) validate() string {
	if req.To.Empty() || req.Subject == "" {
		return "Missing required fields: to, subject"
	}
	if req.Text == "" && req.HTML == "" {
		return "Either text or html content is required"
	}
	return ""
}

// message builds the outbound message. Optional fields the caller left out
// stay at their zero value.
func (req *sendRequest) message(defaultFrom string) *email.Message {
	from := req.From
	if from == "" {
		from = defaultFrom
	}
	return &email.Message{
		From:        from,
		To:          req.To,
		Cc:          req.Cc,
		Bcc:         req.Bcc,
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        req.HTML,
		Attachments: req.Attachments,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
