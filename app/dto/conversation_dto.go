package dto

// CreateConversationRequest opens a chat thread with a contact
type CreateConversationRequest struct {
	GymID         uint   `json:"-"`
	ClientID      *uint  `json:"client_id,omitempty"`
	ContactNumber string `json:"contact_number" validate:"required,max=20"`
}

// ConversationItem is the API view of a conversation
type ConversationItem struct {
	ID            uint    `json:"id"`
	UUID          string  `json:"uuid"`
	ClientID      *uint   `json:"client_id,omitempty"`
	ContactNumber string  `json:"contact_number"`
	Channel       string  `json:"channel"`
	Status        string  `json:"status"`
	LastMessageAt *string `json:"last_message_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// ConversationMessageItem is one stored turn
type ConversationMessageItem struct {
	ID        uint   `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// PostMessageRequest carries an inbound contact message for the receptionist agent
type PostMessageRequest struct {
	GymID          uint   `json:"-"`
	ConversationID uint   `json:"-"`
	Text           string `json:"text" validate:"required,max=4000"`
}

// PostMessageResponse returns the agent reply
type PostMessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reply   string `json:"reply,omitempty"`
}

// ListConversationMessagesResponse returns the stored turns of a conversation
type ListConversationMessagesResponse struct {
	Message string                    `json:"message"`
	Items   []ConversationMessageItem `json:"items"`
}

// ChatbotSettingsRequest updates the receptionist agent of a gym
type ChatbotSettingsRequest struct {
	GymID          uint     `json:"-"`
	BotName        string   `json:"bot_name" validate:"required,max=100"`
	Instructions   string   `json:"instructions" validate:"max=8000"`
	WelcomeMessage string   `json:"welcome_message" validate:"max=2000"`
	BusinessHours  string   `json:"business_hours" validate:"max=255"`
	Model          string   `json:"model" validate:"max=100"`
	Temperature    *float32 `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	HistoryLimit   *int     `json:"history_limit,omitempty" validate:"omitempty,min=1,max=100"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

// ChatbotSettingsResponse is the API view of agent settings
type ChatbotSettingsResponse struct {
	BotName        string  `json:"bot_name"`
	Instructions   string  `json:"instructions"`
	WelcomeMessage string  `json:"welcome_message"`
	BusinessHours  string  `json:"business_hours"`
	Model          string  `json:"model"`
	Temperature    float32 `json:"temperature"`
	HistoryLimit   int     `json:"history_limit"`
	IsActive       bool    `json:"is_active"`
}
