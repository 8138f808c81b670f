package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/gymdesk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "DRAFT"
	CampaignStatusScheduled CampaignStatus = "SCHEDULED"
	CampaignStatusActive    CampaignStatus = "ACTIVE"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
	CampaignStatusPaused    CampaignStatus = "PAUSED"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled,
		CampaignStatusActive, CampaignStatusCompleted,
		CampaignStatusPaused:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// Campaign is a one-off message to a client over a date window.
// Activation enqueues exactly one reminder carrying the campaign message.
type Campaign struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	GymID     uint            `gorm:"not null;index:idx_campaigns_gym_id" json:"gym_id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Status    CampaignStatus  `gorm:"type:varchar(20);not null;default:'DRAFT';index:idx_campaigns_status" json:"status"`
	StartDate time.Time       `gorm:"not null;index:idx_campaigns_start_date;uniqueIndex:uk_campaigns_rule_client_start,priority:3" json:"start_date"`
	EndDate   *time.Time      `gorm:"index:idx_campaigns_end_date" json:"end_date,omitempty"`
	ClientID  uint            `gorm:"not null;index:idx_campaigns_client_id;uniqueIndex:uk_campaigns_rule_client_start,priority:2" json:"client_id"`
	RuleID    *uint           `gorm:"uniqueIndex:uk_campaigns_rule_client_start,priority:1" json:"rule_id,omitempty"`
	Message   string          `gorm:"type:text;not null" json:"message"`
	Channel   DeliveryChannel `gorm:"type:varchar(20);not null;default:'whatsapp'" json:"channel"`
	CreatedAt time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`

	Client *Client `gorm:"foreignKey:ClientID;references:ID" json:"client,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// IsEditable checks if the campaign can still be edited
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignStatusDraft ||
		c.Status == CampaignStatusScheduled ||
		c.Status == CampaignStatusPaused
}

// CanTransitionTo checks if the campaign can transition to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusDraft:
		return newStatus == CampaignStatusScheduled
	case CampaignStatusScheduled:
		return newStatus == CampaignStatusActive ||
			newStatus == CampaignStatusPaused ||
			newStatus == CampaignStatusDraft
	case CampaignStatusActive:
		return newStatus == CampaignStatusCompleted ||
			newStatus == CampaignStatusPaused
	case CampaignStatusPaused:
		return newStatus == CampaignStatusScheduled ||
			newStatus == CampaignStatusActive
	default:
		return false
	}
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID              *uint           `json:"id,omitempty"`
	UUID            *uuid.UUID      `json:"uuid,omitempty"`
	GymID           *uint           `json:"gym_id,omitempty"`
	ClientID        *uint           `json:"client_id,omitempty"`
	RuleID          *uint           `json:"rule_id,omitempty"`
	Status          *CampaignStatus `json:"status,omitempty"`
	StartDateBefore *time.Time      `json:"start_date_before,omitempty"`
	EndDateBefore   *time.Time      `json:"end_date_before,omitempty"`
	CreatedAfter    *time.Time      `json:"created_after,omitempty"`
	CreatedBefore   *time.Time      `json:"created_before,omitempty"`
}
