package dto

// CreateClientRequest carries data to register a gym client
type CreateClientRequest struct {
	GymID          uint    `json:"-"`
	Name           string  `json:"name" validate:"required,max=255"`
	Plan           *string `json:"plan,omitempty" validate:"omitempty,max=100"`
	Status         string  `json:"status,omitempty" validate:"omitempty,max=20"`
	Phone          *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email          *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	WhatsappNumber *string `json:"whatsapp_number,omitempty" validate:"omitempty,max=20"`
}

// UpdateClientRequest carries a partial client update; nil fields are left untouched
type UpdateClientRequest struct {
	GymID          uint    `json:"-"`
	ClientID       uint    `json:"-"`
	Name           *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Plan           *string `json:"plan,omitempty" validate:"omitempty,max=100"`
	Status         *string `json:"status,omitempty" validate:"omitempty,max=20"`
	Phone          *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email          *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	WhatsappNumber *string `json:"whatsapp_number,omitempty" validate:"omitempty,max=20"`
}

// ClientItem is the API view of a client
type ClientItem struct {
	ID             uint    `json:"id"`
	UUID           string  `json:"uuid"`
	Name           string  `json:"name"`
	Plan           *string `json:"plan,omitempty"`
	Status         string  `json:"status"`
	Phone          *string `json:"phone,omitempty"`
	Email          *string `json:"email,omitempty"`
	WhatsappNumber *string `json:"whatsapp_number,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// ListClientsRequest filters client listings
type ListClientsRequest struct {
	GymID    uint    `json:"-"`
	Plan     *string `json:"plan,omitempty"`
	Status   *string `json:"status,omitempty"`
	Page     int     `json:"page,omitempty"`
	PageSize int     `json:"page_size,omitempty"`
}

// ListClientsResponse returns one page of clients
type ListClientsResponse struct {
	Message string       `json:"message"`
	Items   []ClientItem `json:"items"`
	Total   int64        `json:"total"`
}
