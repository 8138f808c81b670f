package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/gymdesk/config"
	"github.com/amirphl/gymdesk/utils"
	"github.com/google/uuid"
)

// MessagingSender delivers a text message to a WhatsApp number.
// It returns the provider message id on success.
type MessagingSender interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
}

// WhatsAppServiceImpl talks to a Cloud-API compatible WhatsApp gateway
type WhatsAppServiceImpl struct {
	config *config.WhatsAppConfig
	client *http.Client
}

// whatsAppTextRequest is the payload of a text message
type whatsAppTextRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             whatsAppTextBody `json:"text"`
}

type whatsAppTextBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// whatsAppResponse covers both the success and the error envelope of the gateway
type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// NewWhatsAppService creates a WhatsApp sender. The returned value is safe for concurrent use.
func NewWhatsAppService(cfg *config.WhatsAppConfig) MessagingSender {
	return &WhatsAppServiceImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SendMessage sends a single text message
func (s *WhatsAppServiceImpl) SendMessage(ctx context.Context, to, body string) (string, error) {
	payload := whatsAppTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               normalizePhone(to),
		Type:             "text",
		Text:             whatsAppTextBody{Body: body},
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal WhatsApp request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(s.config.BaseURL, "/"), s.config.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send WhatsApp request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read WhatsApp response: %w", err)
	}

	var result whatsAppResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode WhatsApp response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || result.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return "", fmt.Errorf("WhatsApp delivery failed for %s: %s (%d)", payload.To, msg, resp.StatusCode)
	}
	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return "", fmt.Errorf("WhatsApp delivery for %s returned no message id", payload.To)
	}
	return result.Messages[0].ID, nil
}

// normalizePhone strips formatting so the gateway receives digits only
func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// mockHistoryLimit bounds what the mock senders keep in memory
const mockHistoryLimit = 1000

// MockWhatsAppService implements MessagingSender for testing and local runs.
// It keeps the last mockHistoryLimit messages.
type MockWhatsAppService struct {
	mu           sync.Mutex
	SentMessages []MockWhatsAppMessage
	// Fail makes every send return this error when set
	Fail error
}

// MockWhatsAppMessage represents a mock WhatsApp message
type MockWhatsAppMessage struct {
	To        string
	Body      string
	MessageID string
	SentAt    time.Time
}

// NewMockWhatsAppService creates a new mock WhatsApp service
func NewMockWhatsAppService() *MockWhatsAppService {
	return &MockWhatsAppService{SentMessages: make([]MockWhatsAppMessage, 0)}
}

func (m *MockWhatsAppService) SendMessage(ctx context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return "", m.Fail
	}
	msg := MockWhatsAppMessage{
		To:        to,
		Body:      body,
		MessageID: "mock-" + uuid.NewString(),
		SentAt:    utils.UTCNow(),
	}
	log.Printf("Mock WhatsApp message sent to %s (%s)", to, msg.MessageID)
	if len(m.SentMessages) >= mockHistoryLimit {
		m.SentMessages = append(m.SentMessages[:0], m.SentMessages[1:]...)
	}
	m.SentMessages = append(m.SentMessages, msg)
	return msg.MessageID, nil
}

// GetSentMessages returns a copy of all sent mock messages
func (m *MockWhatsAppService) GetSentMessages() []MockWhatsAppMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockWhatsAppMessage, len(m.SentMessages))
	copy(out, m.SentMessages)
	return out
}
