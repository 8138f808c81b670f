package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/gymdesk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RuleKind tells whether a rule expands into reminders or campaigns
type RuleKind string

const (
	RuleKindReminder RuleKind = "reminder"
	RuleKindCampaign RuleKind = "campaign"
)

func (k RuleKind) String() string {
	return string(k)
}

func (k RuleKind) Valid() bool {
	return k == RuleKindReminder || k == RuleKindCampaign
}

// Scan implements the sql.Scanner interface for RuleKind
func (k *RuleKind) Scan(value any) error {
	if value == nil {
		*k = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*k = RuleKind(v)
	case []byte:
		*k = RuleKind(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RuleKind", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for RuleKind
func (k RuleKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid RuleKind: %s", k)
	}
	return string(k), nil
}

// TargetType names one audience clause kind as persisted in rule_targets
type TargetType string

const (
	TargetTypeAllClients     TargetType = "all_clients"
	TargetTypeSpecificPlan   TargetType = "specific_plan"
	TargetTypeSpecificStatus TargetType = "specific_status"
)

func (t TargetType) String() string {
	return string(t)
}

// Valid reports whether the target type is understood by the audience resolver
func (t TargetType) Valid() bool {
	switch t {
	case TargetTypeAllClients, TargetTypeSpecificPlan, TargetTypeSpecificStatus:
		return true
	default:
		return false
	}
}

// Rule is a template plus targeting definition that generates reminders or campaigns
type Rule struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UUID            uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_rules_uuid" json:"uuid"`
	GymID           uint            `gorm:"not null;index:idx_rules_gym_kind,priority:1" json:"gym_id"`
	Kind            RuleKind        `gorm:"type:varchar(20);not null;index:idx_rules_gym_kind,priority:2" json:"kind"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	RuleType        string          `gorm:"size:100;not null" json:"rule_type"`
	TemplateMessage string          `gorm:"type:text;not null" json:"template_message"`
	Channel         DeliveryChannel `gorm:"type:varchar(20);not null;default:'whatsapp'" json:"channel"`
	SendHour        int             `gorm:"not null" json:"send_hour"`
	IsActive        bool            `gorm:"not null;index:idx_rules_is_active" json:"is_active"`
	CreatedAt       time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	Targets []RuleTarget `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"targets"`
}

func (Rule) TableName() string {
	return "rules"
}

// BeforeCreate fills identity and timestamps
func (r *Rule) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	now := utils.UTCNow()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// RuleTarget is one audience clause owned by a rule. TargetType is kept as a
// plain string column so that rows written by older releases still load.
type RuleTarget struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RuleID      uint       `gorm:"not null;index:idx_rule_targets_rule_id" json:"rule_id"`
	TargetType  TargetType `gorm:"type:varchar(50);not null" json:"target_type"`
	TargetValue *string    `gorm:"size:255" json:"target_value,omitempty"`
}

func (RuleTarget) TableName() string {
	return "rule_targets"
}

// RuleFilter represents filter criteria for rule queries
type RuleFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	GymID    *uint
	Kind     *RuleKind
	IsActive *bool
	RuleType *string
}
