package dto

import "time"

// CreateCampaignRequest carries data to create a one-off campaign for a client
type CreateCampaignRequest struct {
	GymID     uint       `json:"-"`
	Name      string     `json:"name" validate:"required,max=255"`
	ClientID  uint       `json:"client_id" validate:"required"`
	Message   string     `json:"message" validate:"required,max=4000"`
	Channel   string     `json:"channel,omitempty" validate:"omitempty,oneof=whatsapp email"`
	StartDate time.Time  `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Schedule  bool       `json:"schedule,omitempty"`
}

// CampaignItem is the API view of a campaign
type CampaignItem struct {
	ID         uint    `json:"id"`
	UUID       string  `json:"uuid"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	ClientID   uint    `json:"client_id"`
	ClientName string  `json:"client_name,omitempty"`
	RuleID     *uint   `json:"rule_id,omitempty"`
	Message    string  `json:"message"`
	Channel    string  `json:"channel"`
	StartDate  string  `json:"start_date"`
	EndDate    *string `json:"end_date,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// ListCampaignsRequest filters campaign listings
type ListCampaignsRequest struct {
	GymID    uint    `json:"-"`
	ClientID *uint   `json:"client_id,omitempty"`
	Status   *string `json:"status,omitempty"`
	Page     int     `json:"page,omitempty"`
	PageSize int     `json:"page_size,omitempty"`
}

// ListCampaignsResponse returns one page of campaigns
type ListCampaignsResponse struct {
	Message string         `json:"message"`
	Items   []CampaignItem `json:"items"`
	Total   int64          `json:"total"`
}

// ChangeCampaignStatusRequest moves a campaign to a new status
type ChangeCampaignStatusRequest struct {
	GymID      uint   `json:"-"`
	CampaignID uint   `json:"-"`
	Status     string `json:"status" validate:"required,oneof=DRAFT SCHEDULED ACTIVE COMPLETED PAUSED"`
}
