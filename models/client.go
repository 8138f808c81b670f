// Package models contains domain entities for the gym CRM reminder and campaign pipeline
package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/gymdesk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClientStatus represents the membership status of a gym client
type ClientStatus string

const (
	ClientStatusActive    ClientStatus = "ACTIVE"
	ClientStatusInactive  ClientStatus = "INACTIVE"
	ClientStatusSuspended ClientStatus = "SUSPENDED"
	ClientStatusExpired   ClientStatus = "EXPIRED"
)

func (s ClientStatus) String() string {
	return string(s)
}

// Valid checks if the status is one of the known membership states
func (s ClientStatus) Valid() bool {
	switch s {
	case ClientStatusActive, ClientStatusInactive, ClientStatusSuspended, ClientStatusExpired:
		return true
	default:
		return false
	}
}

// ParseClientStatus normalizes user input to upper case before validating it
func ParseClientStatus(v string) (ClientStatus, error) {
	s := ClientStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid client status: %s", v)
	}
	return s, nil
}

// Scan implements the sql.Scanner interface for ClientStatus
func (s *ClientStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = ClientStatus(v)
	case []byte:
		*s = ClientStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ClientStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for ClientStatus
func (s ClientStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ClientStatus: %s", s)
	}
	return string(s), nil
}

// Client is a gym member owned by a tenant gym
type Client struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:uk_clients_uuid" json:"uuid"`
	GymID          uint         `gorm:"not null;index:idx_clients_gym_id" json:"gym_id"`
	Name           string       `gorm:"size:255;not null" json:"name"`
	Plan           *string      `gorm:"size:100;index:idx_clients_plan" json:"plan,omitempty"`
	Status         ClientStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index:idx_clients_status" json:"status"`
	Phone          *string      `gorm:"size:20" json:"phone,omitempty"`
	Email          *string      `gorm:"size:255" json:"email,omitempty"`
	WhatsappNumber *string      `gorm:"size:20" json:"whatsapp_number,omitempty"`
	CreatedAt      time.Time    `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_clients_created_at" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

// BeforeCreate fills identity and timestamps
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ClientStatusActive
	}
	now := utils.UTCNow()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return nil
}

// HasWhatsapp reports whether the client can be reached on WhatsApp
func (c *Client) HasWhatsapp() bool {
	return c != nil && c.WhatsappNumber != nil && strings.TrimSpace(*c.WhatsappNumber) != ""
}

// HasEmail reports whether the client can be reached by email
func (c *Client) HasEmail() bool {
	return c != nil && c.Email != nil && strings.TrimSpace(*c.Email) != ""
}

// ClientFilter represents filter criteria for client queries
type ClientFilter struct {
	ID            *uint
	IDs           []uint
	UUID          *uuid.UUID
	GymID         *uint
	Plan          *string
	Status        *ClientStatus
	Email         *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
