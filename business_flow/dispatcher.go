package businessflow

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/models"
)

// ErrNoDeliveryRoute is recorded when a reminder has no usable channel
var ErrNoDeliveryRoute = errors.New("no valid channel or contact info")

// DeliveryResult is the outcome of a single delivery attempt
type DeliveryResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Dispatcher sends one reminder through the channel it names
type Dispatcher interface {
	Dispatch(ctx context.Context, reminder *models.Reminder) DeliveryResult
}

// DispatcherImpl routes reminders to the injected channel senders
type DispatcherImpl struct {
	whatsapp     services.MessagingSender
	email        services.EmailSender
	emailSubject string
}

func NewDispatcher(whatsapp services.MessagingSender, email services.EmailSender, emailSubject string) Dispatcher {
	if emailSubject == "" {
		emailSubject = "Recordatorio"
	}
	return &DispatcherImpl{whatsapp: whatsapp, email: email, emailSubject: emailSubject}
}

// Dispatch performs exactly one provider call, or none when the reminder has no route.
// The reminder must carry its client.
func (d *DispatcherImpl) Dispatch(ctx context.Context, reminder *models.Reminder) DeliveryResult {
	client := reminder.Client

	switch {
	case reminder.Channel == models.DeliveryChannelWhatsapp && client.HasWhatsapp() && d.whatsapp != nil:
		id, err := d.whatsapp.SendMessage(ctx, *client.WhatsappNumber, reminder.Message)
		if err != nil {
			return DeliveryResult{Error: err.Error()}
		}
		return DeliveryResult{Success: true, MessageID: id}

	case reminder.Channel == models.DeliveryChannelEmail && client.HasEmail() && d.email != nil:
		id, err := d.email.SendEmail(ctx, *client.Email, d.emailSubject, renderEmailHTML(reminder.Message), reminder.Message)
		if err != nil {
			return DeliveryResult{Error: err.Error()}
		}
		return DeliveryResult{Success: true, MessageID: id}

	default:
		return DeliveryResult{Error: ErrNoDeliveryRoute.Error()}
	}
}

func renderEmailHTML(message string) string {
	body := strings.ReplaceAll(html.EscapeString(message), "\n", "<br>")
	return `<div style="font-family: Arial, sans-serif; font-size: 14px;"><p>` + body + `</p></div>`
}
