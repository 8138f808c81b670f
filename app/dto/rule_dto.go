package dto

// RuleTargetInput is one audience clause in a rule request
type RuleTargetInput struct {
	TargetType  string  `json:"target_type" validate:"required"`
	TargetValue *string `json:"target_value,omitempty" validate:"omitempty,max=255"`
}

// CreateRuleRequest carries data to create a reminder or campaign rule
type CreateRuleRequest struct {
	GymID           uint              `json:"-"`
	Kind            string            `json:"-"`
	Name            string            `json:"name" validate:"required,max=255"`
	RuleType        string            `json:"rule_type" validate:"required,max=100"`
	TemplateMessage string            `json:"template_message" validate:"required,max=4000"`
	Channel         string            `json:"channel,omitempty" validate:"omitempty,oneof=whatsapp email"`
	SendHour        *int              `json:"send_hour,omitempty" validate:"omitempty,min=0,max=23"`
	IsActive        *bool             `json:"is_active,omitempty"`
	Targets         []RuleTargetInput `json:"targets" validate:"dive"`
}

// UpdateRuleRequest edits a rule. Targets nil means the field was omitted and the
// stored targets stay as they are; a present list (even empty) replaces them.
type UpdateRuleRequest struct {
	GymID           uint               `json:"-"`
	Kind            string             `json:"-"`
	RuleID          uint               `json:"-"`
	Name            *string            `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	RuleType        *string            `json:"rule_type,omitempty" validate:"omitempty,min=1,max=100"`
	TemplateMessage *string            `json:"template_message,omitempty" validate:"omitempty,min=1,max=4000"`
	Channel         *string            `json:"channel,omitempty" validate:"omitempty,oneof=whatsapp email"`
	SendHour        *int               `json:"send_hour,omitempty" validate:"omitempty,min=0,max=23"`
	IsActive        *bool              `json:"is_active,omitempty"`
	Targets         *[]RuleTargetInput `json:"targets,omitempty" validate:"omitempty,dive"`
}

// RuleTargetItem is the API view of a rule target
type RuleTargetItem struct {
	ID          uint    `json:"id"`
	TargetType  string  `json:"target_type"`
	TargetValue *string `json:"target_value,omitempty"`
}

// RuleItem is the API view of a rule
type RuleItem struct {
	ID              uint             `json:"id"`
	UUID            string           `json:"uuid"`
	Kind            string           `json:"kind"`
	Name            string           `json:"name"`
	RuleType        string           `json:"rule_type"`
	TemplateMessage string           `json:"template_message"`
	Channel         string           `json:"channel"`
	SendHour        int              `json:"send_hour"`
	IsActive        bool             `json:"is_active"`
	Targets         []RuleTargetItem `json:"targets"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
}

// ListRulesResponse returns the rules of one kind
type ListRulesResponse struct {
	Message string     `json:"message"`
	Items   []RuleItem `json:"items"`
}

// RulePreviewResponse shows who a rule would reach and how the message renders
type RulePreviewResponse struct {
	RuleID               uint     `json:"rule_id"`
	RuleName             string   `json:"rule_name"`
	RuleType             string   `json:"rule_type"`
	TotalAffectedClients int      `json:"total_affected_clients"`
	SampleMessages       []string `json:"sample_messages"`
}
