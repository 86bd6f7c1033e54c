// Package email sends discharge summaries to patients and caregivers.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
)

// SummaryEmail is one discharge-summary message.
type SummaryEmail struct {
	To        string
	Subject   string
	BodyPlain string
	BodyHTML  string // optional
}

// Sender delivers discharge summaries. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendSummary(ctx context.Context, msg SummaryEmail) error
}

// SMTPSender sends summaries through a plain SMTP relay.
type SMTPSender struct {
	cfg config.EmailConfig
}

// NewSMTP creates a sender for the configured relay.
func NewSMTP(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// SendSummary implements Sender.
func (s *SMTPSender) SendSummary(_ context.Context, msg SummaryEmail) error {
	if msg.To == "" {
		return fmt.Errorf("sending summary: no recipient")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	if msg.BodyHTML != "" {
		b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.BodyHTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.BodyPlain)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("sending summary to %s: %w", msg.To, err)
	}
	return nil
}

// MockSender records sent summaries for tests.
type MockSender struct {
	mu   sync.Mutex
	sent []SummaryEmail
	err  error
}

// NewMock creates a mock sender.
func NewMock() *MockSender { return &MockSender{} }

// Fail makes subsequent sends return err.
func (m *MockSender) Fail(err error) *MockSender {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// SendSummary implements Sender.
func (m *MockSender) SendSummary(_ context.Context, msg SummaryEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns the summaries delivered so far.
func (m *MockSender) Sent() []SummaryEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SummaryEmail, len(m.sent))
	copy(out, m.sent)
	return out
}
