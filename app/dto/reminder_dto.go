package dto

import "time"

// CreateReminderRequest carries data to schedule a reminder for one client
type CreateReminderRequest struct {
	GymID         uint       `json:"-"`
	ClientID      uint       `json:"client_id" validate:"required"`
	Message       string     `json:"message" validate:"required,max=4000"`
	Channel       string     `json:"channel" validate:"required,oneof=whatsapp email"`
	SendAt        time.Time  `json:"send_at" validate:"required"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	AppointmentID *uint      `json:"appointment_id,omitempty"`
}

// UpdateReminderRequest edits a PENDING reminder; nil fields are left untouched
type UpdateReminderRequest struct {
	GymID      uint       `json:"-"`
	ReminderID uint       `json:"-"`
	Message    *string    `json:"message,omitempty" validate:"omitempty,min=1,max=4000"`
	Channel    *string    `json:"channel,omitempty" validate:"omitempty,oneof=whatsapp email"`
	SendAt     *time.Time `json:"send_at,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

// ReminderItem is the API view of a reminder
type ReminderItem struct {
	ID                uint    `json:"id"`
	UUID              string  `json:"uuid"`
	ClientID          uint    `json:"client_id"`
	ClientName        string  `json:"client_name,omitempty"`
	Message           string  `json:"message"`
	Channel           string  `json:"channel"`
	Status            string  `json:"status"`
	Retries           int     `json:"retries"`
	SendAt            string  `json:"send_at"`
	EndDate           *string `json:"end_date,omitempty"`
	SentAt            *string `json:"sent_at,omitempty"`
	RuleID            *uint   `json:"rule_id,omitempty"`
	CampaignID        *uint   `json:"campaign_id,omitempty"`
	AppointmentID     *uint   `json:"appointment_id,omitempty"`
	LastError         *string `json:"last_error,omitempty"`
	ProviderMessageID *string `json:"provider_message_id,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

// ListRemindersRequest filters reminder listings and exports
type ListRemindersRequest struct {
	GymID    uint    `json:"-"`
	ClientID *uint   `json:"client_id,omitempty"`
	Status   *string `json:"status,omitempty"`
	Channel  *string `json:"channel,omitempty"`
	Page     int     `json:"page,omitempty"`
	PageSize int     `json:"page_size,omitempty"`
}

// ListRemindersResponse returns one page of reminders
type ListRemindersResponse struct {
	Message string         `json:"message"`
	Items   []ReminderItem `json:"items"`
	Total   int64          `json:"total"`
}

// SendReminderResponse is returned by the manual send endpoint
type SendReminderResponse struct {
	Success  bool         `json:"success"`
	Reminder ReminderItem `json:"reminder"`
	Error    string       `json:"error,omitempty"`
}

// SweepResult aggregates the outcome of one scheduled run
type SweepResult struct {
	Processed int  `json:"processed"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped,omitempty"`
}

// CampaignSweepResult aggregates the outcome of one campaign activation run
type CampaignSweepResult struct {
	Activated int   `json:"activated"`
	Completed int64 `json:"completed"`
	Failed    int   `json:"failed"`
	Skipped   bool  `json:"skipped,omitempty"`
}

// ExpansionResult aggregates the outcome of one rule expansion run
type ExpansionResult struct {
	RulesEvaluated   int   `json:"rules_evaluated"`
	RulesDue         int   `json:"rules_due"`
	RemindersCreated int64 `json:"reminders_created"`
	CampaignsCreated int64 `json:"campaigns_created"`
	Skipped          bool  `json:"skipped,omitempty"`
}
