package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/gymdesk/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppSendMessage(t *testing.T) {
	var got whatsAppTextRequest
	var gotAuth, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		if got.To == "5200000000" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"recipient not on WhatsApp","code":131026}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer server.Close()

	sender := NewWhatsAppService(&config.WhatsAppConfig{
		BaseURL: server.URL + "/", APIKey: "token", PhoneNumberID: "12345", Timeout: 5 * time.Second,
	})

	id, err := sender.SendMessage(context.Background(), "+52 (55) 1111-2222", "Hola Ana")
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", id)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, "/12345/messages", gotPath)
	assert.Equal(t, "525511112222", got.To)
	assert.Equal(t, "Hola Ana", got.Text.Body)
	assert.Equal(t, "whatsapp", got.MessagingProduct)

	_, err = sender.SendMessage(context.Background(), "5200000000", "Hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient not on WhatsApp")
}

func TestWhatsAppSendMessageWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer server.Close()

	sender := NewWhatsAppService(&config.WhatsAppConfig{BaseURL: server.URL, PhoneNumberID: "1", Timeout: time.Second})
	_, err := sender.SendMessage(context.Background(), "5511112222", "x")
	assert.ErrorContains(t, err, "no message id")
}

func TestMockWhatsAppService(t *testing.T) {
	mock := NewMockWhatsAppService()
	id, err := mock.SendMessage(context.Background(), "+5255", "hola")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, mock.GetSentMessages(), 1)
	assert.Equal(t, "+5255", mock.GetSentMessages()[0].To)

	mock.Fail = errors.New("down")
	_, err = mock.SendMessage(context.Background(), "+5255", "hola")
	assert.EqualError(t, err, "down")
	assert.Len(t, mock.GetSentMessages(), 1)
}

func TestNewSenders(t *testing.T) {
	ws, err := NewMessagingSender(&config.WhatsAppConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockWhatsAppService{}, ws)

	ws, err = NewMessagingSender(&config.WhatsAppConfig{Provider: "http", BaseURL: "http://localhost"})
	require.NoError(t, err)
	assert.IsType(t, &WhatsAppServiceImpl{}, ws)

	_, err = NewMessagingSender(&config.WhatsAppConfig{Provider: "telegram"})
	assert.Error(t, err)

	_, err = NewMessagingSender(&config.WhatsAppConfig{})
	assert.Error(t, err, "an unset provider is not silently mocked")

	es, err := NewEmailSender(&config.EmailConfig{Provider: "smtp", Host: "localhost", Port: 465})
	require.NoError(t, err)
	smtp, ok := es.(*SMTPEmailService)
	require.True(t, ok)
	assert.True(t, smtp.dialer.SSL)

	es, err = NewEmailSender(&config.EmailConfig{Provider: "sendgrid", SendGridAPIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &SendGridEmailService{}, es)

	_, err = NewEmailSender(&config.EmailConfig{Provider: "pigeon"})
	assert.Error(t, err)

	_, err = NewEmailSender(&config.EmailConfig{})
	assert.Error(t, err)
}

func TestMockSendersKeepBoundedHistory(t *testing.T) {
	ctx := context.Background()
	ws := NewMockWhatsAppService()
	es := NewMockEmailService()
	for i := 0; i < mockHistoryLimit+5; i++ {
		_, err := ws.SendMessage(ctx, fmt.Sprintf("+52%d", i), "hola")
		require.NoError(t, err)
		_, err = es.SendEmail(ctx, fmt.Sprintf("c%d@example.com", i), "s", "", "t")
		require.NoError(t, err)
	}

	msgs := ws.GetSentMessages()
	require.Len(t, msgs, mockHistoryLimit)
	assert.Equal(t, "+525", msgs[0].To)
	assert.Equal(t, fmt.Sprintf("+52%d", mockHistoryLimit+4), msgs[len(msgs)-1].To)

	emails := es.GetSentEmails()
	require.Len(t, emails, mockHistoryLimit)
	assert.Equal(t, "c5@example.com", emails[0].To)

	id, err := es.SendEmail(ctx, "last@example.com", "s", "", "t")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("mock-email-%d", mockHistoryLimit+6), id)
}

func TestEventPublishers(t *testing.T) {
	p, err := NewEventPublisher(&config.EventsConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, NoopEventPublisher{}, p)
	assert.NoError(t, p.PublishDelivery(context.Background(), DeliveryEvent{ReminderID: 1}))
	assert.NoError(t, p.Close())

	rec := &RecordingEventPublisher{}
	require.NoError(t, rec.PublishDelivery(context.Background(), DeliveryEvent{ReminderID: 7, Status: "SENT"}))
	events := rec.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, uint(7), events[0].ReminderID)
}
