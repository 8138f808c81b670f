package businessflow

import (
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// pagination turns 1-based page numbers into limit/offset
func pagination(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// ToClientItem converts a client model to its API view
func ToClientItem(c *models.Client) dto.ClientItem {
	return dto.ClientItem{
		ID:             c.ID,
		UUID:           c.UUID.String(),
		Name:           c.Name,
		Plan:           c.Plan,
		Status:         c.Status.String(),
		Phone:          c.Phone,
		Email:          c.Email,
		WhatsappNumber: c.WhatsappNumber,
		CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ToReminderItem converts a reminder model to its API view
func ToReminderItem(r *models.Reminder) dto.ReminderItem {
	item := dto.ReminderItem{
		ID:                r.ID,
		UUID:              r.UUID.String(),
		ClientID:          r.ClientID,
		Message:           r.Message,
		Channel:           r.Channel.String(),
		Status:            r.Status.String(),
		Retries:           r.Retries,
		SendAt:            r.SendAt.UTC().Format(time.RFC3339),
		EndDate:           formatTimePtr(r.EndDate),
		SentAt:            formatTimePtr(r.SentAt),
		RuleID:            r.RuleID,
		CampaignID:        r.CampaignID,
		AppointmentID:     r.AppointmentID,
		LastError:         r.LastError,
		ProviderMessageID: r.ProviderMessageID,
		CreatedAt:         r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.Client != nil {
		item.ClientName = r.Client.Name
	}
	return item
}

// ToRuleItem converts a rule model to its API view
func ToRuleItem(r *models.Rule) dto.RuleItem {
	targets := make([]dto.RuleTargetItem, 0, len(r.Targets))
	for _, t := range r.Targets {
		targets = append(targets, dto.RuleTargetItem{ID: t.ID, TargetType: t.TargetType.String(), TargetValue: t.TargetValue})
	}
	return dto.RuleItem{
		ID:              r.ID,
		UUID:            r.UUID.String(),
		Kind:            r.Kind.String(),
		Name:            r.Name,
		RuleType:        r.RuleType,
		TemplateMessage: r.TemplateMessage,
		Channel:         r.Channel.String(),
		SendHour:        r.SendHour,
		IsActive:        r.IsActive,
		Targets:         targets,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ToCampaignItem converts a campaign model to its API view
func ToCampaignItem(c *models.Campaign) dto.CampaignItem {
	item := dto.CampaignItem{
		ID:        c.ID,
		UUID:      c.UUID.String(),
		Name:      c.Name,
		Status:    c.Status.String(),
		ClientID:  c.ClientID,
		RuleID:    c.RuleID,
		Message:   c.Message,
		Channel:   c.Channel.String(),
		StartDate: c.StartDate.UTC().Format(time.RFC3339),
		EndDate:   formatTimePtr(c.EndDate),
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.Client != nil {
		item.ClientName = c.Client.Name
	}
	return item
}

// ToConversationItem converts a conversation model to its API view
func ToConversationItem(c *models.Conversation) dto.ConversationItem {
	return dto.ConversationItem{
		ID:            c.ID,
		UUID:          c.UUID.String(),
		ClientID:      c.ClientID,
		ContactNumber: c.ContactNumber,
		Channel:       c.Channel.String(),
		Status:        string(c.Status),
		LastMessageAt: formatTimePtr(c.LastMessageAt),
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
	}
}
