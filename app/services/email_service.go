package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/amirphl/gymdesk/config"
	"github.com/amirphl/gymdesk/utils"
	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

// EmailSender delivers one email and returns the provider message id when available
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html, text string) (string, error)
}

// SendGridEmailService sends through the SendGrid v3 API
type SendGridEmailService struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridEmailService creates a SendGrid backed sender
func NewSendGridEmailService(cfg *config.EmailConfig) EmailSender {
	return &SendGridEmailService{
		client:    sendgrid.NewSendClient(cfg.SendGridAPIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

func (s *SendGridEmailService) SendEmail(ctx context.Context, to, subject, html, text string) (string, error) {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, text, html)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid rejected email to %s: status %d: %s", to, resp.StatusCode, resp.Body)
	}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

// SMTPEmailService sends through a plain SMTP relay
type SMTPEmailService struct {
	dialer    *gomail.Dialer
	fromEmail string
	fromName  string
}

// NewSMTPEmailService creates an SMTP backed sender. Port 465 uses implicit TLS.
func NewSMTPEmailService(cfg *config.EmailConfig) EmailSender {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Port == 465 {
		dialer.SSL = true
	}
	return &SMTPEmailService{dialer: dialer, fromEmail: cfg.FromEmail, fromName: cfg.FromName}
}

func (s *SMTPEmailService) SendEmail(ctx context.Context, to, subject, html, text string) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.dialer.Host)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.fromEmail, s.fromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("failed to send email to %s: %w", to, err)
		}
		return messageID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("sending email to %s: %w", to, ctx.Err())
	}
}

// MockEmailService implements EmailSender for testing and local runs.
// It keeps the last mockHistoryLimit emails.
type MockEmailService struct {
	mu         sync.Mutex
	SentEmails []MockEmail
	Fail       error
	sent       int
}

// MockEmail represents a mock email
type MockEmail struct {
	To      string
	Subject string
	HTML    string
	Text    string
	SentAt  time.Time
}

func NewMockEmailService() *MockEmailService {
	return &MockEmailService{SentEmails: make([]MockEmail, 0)}
}

func (m *MockEmailService) SendEmail(ctx context.Context, to, subject, html, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return "", m.Fail
	}
	log.Printf("Mock email sent to %s: %s", to, subject)
	m.sent++
	if len(m.SentEmails) >= mockHistoryLimit {
		m.SentEmails = append(m.SentEmails[:0], m.SentEmails[1:]...)
	}
	m.SentEmails = append(m.SentEmails, MockEmail{To: to, Subject: subject, HTML: html, Text: text, SentAt: utils.UTCNow()})
	return "mock-email-" + strconv.Itoa(m.sent), nil
}

// GetSentEmails returns a copy of all sent mock emails
func (m *MockEmailService) GetSentEmails() []MockEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockEmail, len(m.SentEmails))
	copy(out, m.SentEmails)
	return out
}
