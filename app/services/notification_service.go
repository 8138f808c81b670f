package services

import (
	"fmt"
	"log"

	"github.com/amirphl/gymdesk/config"
)

// NewMessagingSender builds the WhatsApp sender selected by configuration.
// It is constructed once per process and shared by every flow.
func NewMessagingSender(cfg *config.WhatsAppConfig) (MessagingSender, error) {
	switch cfg.Provider {
	case "http":
		return NewWhatsAppService(cfg), nil
	case "mock":
		log.Println("WhatsApp provider is mock; messages will only be logged")
		return NewMockWhatsAppService(), nil
	default:
		return nil, fmt.Errorf("unknown WhatsApp provider %q", cfg.Provider)
	}
}

// NewEmailSender builds the email sender selected by configuration
func NewEmailSender(cfg *config.EmailConfig) (EmailSender, error) {
	switch cfg.Provider {
	case "sendgrid":
		return NewSendGridEmailService(cfg), nil
	case "smtp":
		return NewSMTPEmailService(cfg), nil
	case "mock":
		log.Println("Email provider is mock; emails will only be logged")
		return NewMockEmailService(), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
