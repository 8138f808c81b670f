package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/gymdesk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxReminderRetries is the number of delivery attempts after which a reminder becomes FAILED
const MaxReminderRetries = 3

// DeliveryChannel is the medium a reminder or campaign is delivered through
type DeliveryChannel string

const (
	DeliveryChannelWhatsapp DeliveryChannel = "whatsapp"
	DeliveryChannelEmail    DeliveryChannel = "email"
)

func (c DeliveryChannel) String() string {
	return string(c)
}

func (c DeliveryChannel) Valid() bool {
	switch c {
	case DeliveryChannelWhatsapp, DeliveryChannelEmail:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for DeliveryChannel
func (c *DeliveryChannel) Scan(value any) error {
	if value == nil {
		*c = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*c = DeliveryChannel(v)
	case []byte:
		*c = DeliveryChannel(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DeliveryChannel", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for DeliveryChannel.
// Unknown channels are stored as-is so legacy rows still round-trip.
func (c DeliveryChannel) Value() (driver.Value, error) {
	return string(c), nil
}

// ReminderStatus represents the delivery state of a reminder
type ReminderStatus string

const (
	ReminderStatusPending    ReminderStatus = "PENDING"
	ReminderStatusProcessing ReminderStatus = "PROCESSING"
	ReminderStatusSent       ReminderStatus = "SENT"
	ReminderStatusFailed     ReminderStatus = "FAILED"
)

func (s ReminderStatus) String() string {
	return string(s)
}

func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderStatusPending, ReminderStatusProcessing, ReminderStatusSent, ReminderStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed
func (s ReminderStatus) IsTerminal() bool {
	return s == ReminderStatusSent || s == ReminderStatusFailed
}

// Scan implements the sql.Scanner interface for ReminderStatus
func (s *ReminderStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = ReminderStatus(v)
	case []byte:
		*s = ReminderStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ReminderStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for ReminderStatus
func (s ReminderStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ReminderStatus: %s", s)
	}
	return string(s), nil
}

// Reminder is a single scheduled message to one client.
// Rows produced by rule expansion are unique per (rule_id, client_id, send_at);
// rows produced by campaign activation are unique per campaign_id.
type Reminder struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UUID              uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_reminders_uuid" json:"uuid"`
	GymID             uint            `gorm:"not null;index:idx_reminders_gym_id" json:"gym_id"`
	Message           string          `gorm:"type:text;not null" json:"message"`
	Channel           DeliveryChannel `gorm:"type:varchar(20);not null" json:"channel"`
	SendAt            time.Time       `gorm:"not null;index:idx_reminders_due,priority:2;uniqueIndex:uk_reminders_rule_client_send_at,priority:3" json:"send_at"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	ClientID          uint            `gorm:"not null;index:idx_reminders_client_id;uniqueIndex:uk_reminders_rule_client_send_at,priority:2" json:"client_id"`
	AppointmentID     *uint           `gorm:"index:idx_reminders_appointment_id" json:"appointment_id,omitempty"`
	RuleID            *uint           `gorm:"uniqueIndex:uk_reminders_rule_client_send_at,priority:1" json:"rule_id,omitempty"`
	CampaignID        *uint           `gorm:"uniqueIndex:uk_reminders_campaign_id,where:campaign_id IS NOT NULL" json:"campaign_id,omitempty"`
	Status            ReminderStatus  `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_reminders_due,priority:1" json:"status"`
	Retries           int             `gorm:"not null;default:0" json:"retries"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	ClaimedAt         *time.Time      `json:"claimed_at,omitempty"`
	ClaimToken        *string         `gorm:"size:36;index:idx_reminders_claim_token" json:"-"`
	LastError         *string         `gorm:"type:text" json:"last_error,omitempty"`
	ProviderMessageID *string         `gorm:"size:255" json:"provider_message_id,omitempty"`
	CreatedAt         time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_reminders_created_at" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	Client *Client `gorm:"foreignKey:ClientID;references:ID" json:"client,omitempty"`
}

func (Reminder) TableName() string {
	return "reminders"
}

// BeforeCreate fills identity, initial status and timestamps
func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = ReminderStatusPending
	}
	now := utils.UTCNow()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// IsDue reports whether a sweep at the given instant should pick the reminder up
func (r *Reminder) IsDue(now time.Time) bool {
	return r.Status == ReminderStatusPending && !r.SendAt.After(now) && r.Retries < MaxReminderRetries
}

// ReminderFilter represents filter criteria for reminder queries
type ReminderFilter struct {
	ID           *uint
	UUID         *uuid.UUID
	GymID        *uint
	ClientID     *uint
	RuleID       *uint
	CampaignID   *uint
	Status       *ReminderStatus
	Channel      *DeliveryChannel
	SendAtBefore *time.Time
	SendAtAfter  *time.Time
	MaxRetries   *int
}
