package models

import (
	"time"

	"github.com/amirphl/gymdesk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationStatus tells whether the receptionist agent still answers a thread
type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "OPEN"
	ConversationStatusClosed ConversationStatus = "CLOSED"
)

// MessageRole is the author of a conversation turn
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Conversation is a chat thread between a contact and the gym's receptionist agent
type Conversation struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:uk_conversations_uuid" json:"uuid"`
	GymID         uint               `gorm:"not null;index:idx_conversations_gym_id" json:"gym_id"`
	ClientID      *uint              `gorm:"index:idx_conversations_client_id" json:"client_id,omitempty"`
	Channel       DeliveryChannel    `gorm:"type:varchar(20);not null;default:'whatsapp'" json:"channel"`
	ContactNumber string             `gorm:"size:20;not null;index:idx_conversations_contact_number" json:"contact_number"`
	Status        ConversationStatus `gorm:"type:varchar(20);not null;default:'OPEN'" json:"status"`
	LastMessageAt *time.Time         `gorm:"index:idx_conversations_last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ConversationStatusOpen
	}
	now := utils.UTCNow()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return nil
}

// ConversationFilter represents filter criteria for conversation queries
type ConversationFilter struct {
	ID            *uint
	GymID         *uint
	ClientID      *uint
	ContactNumber *string
	Status        *ConversationStatus
}

// ConversationMessage is one persisted turn of a conversation
type ConversationMessage struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	ConversationID uint        `gorm:"not null;index:idx_conversation_messages_conversation_id" json:"conversation_id"`
	Role           MessageRole `gorm:"type:varchar(20);not null" json:"role"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time   `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_conversation_messages_created_at" json:"created_at"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

func (m *ConversationMessage) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ConversationMessageFilter represents filter criteria for message queries
type ConversationMessageFilter struct {
	ConversationID *uint
	Role           *MessageRole
}

// ChatbotSettings configures the receptionist agent of one gym
type ChatbotSettings struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	GymID          uint      `gorm:"not null;uniqueIndex:uk_chatbot_settings_gym_id" json:"gym_id"`
	BotName        string    `gorm:"size:100;not null;default:'Recepcion'" json:"bot_name"`
	Instructions   string    `gorm:"type:text" json:"instructions"`
	WelcomeMessage string    `gorm:"type:text" json:"welcome_message"`
	BusinessHours  string    `gorm:"size:255" json:"business_hours"`
	Model          string    `gorm:"size:100" json:"model"`
	Temperature    float32   `gorm:"not null" json:"temperature"`
	HistoryLimit   int       `gorm:"not null" json:"history_limit"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt      time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (ChatbotSettings) TableName() string {
	return "chatbot_settings"
}

// DefaultChatbotSettings is used for gyms that never saved settings
func DefaultChatbotSettings(gymID uint) *ChatbotSettings {
	return &ChatbotSettings{
		GymID:        gymID,
		BotName:      "Recepcion",
		Temperature:  0.3,
		HistoryLimit: 20,
		IsActive:     true,
	}
}
