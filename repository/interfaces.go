// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/gymdesk/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ClientRepository defines operations for gym clients
type ClientRepository interface {
	Repository[models.Client, models.ClientFilter]
	ByIDs(ctx context.Context, ids []uint) (map[uint]*models.Client, error)
	Update(ctx context.Context, client *models.Client) error
}

// ReminderRepository defines operations for reminders, including the claim
// and compare-and-swap transitions used by the delivery pipeline
type ReminderRepository interface {
	Repository[models.Reminder, models.ReminderFilter]
	// ClaimDue atomically moves up to limit due PENDING rows to PROCESSING and returns them
	// with a fresh claim token.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error)
	// ClaimByID moves a single PENDING row to PROCESSING. It returns nil when the row was not PENDING.
	ClaimByID(ctx context.Context, id uint, now time.Time) (*models.Reminder, error)
	RenewClaim(ctx context.Context, id uint, token string, now time.Time) (bool, error)
	ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error)
	MarkSent(ctx context.Context, id uint, token string, sentAt time.Time, providerMessageID *string) (bool, error)
	MarkAttemptFailed(ctx context.Context, id uint, token string, retries int, status models.ReminderStatus, lastError string) (bool, error)
	SaveIgnoringDuplicates(ctx context.Context, reminders []*models.Reminder) (int64, error)
	Update(ctx context.Context, reminder *models.Reminder) error
	Delete(ctx context.Context, id uint) error
}

// RuleRepository defines operations for reminder and campaign rules and their targets
type RuleRepository interface {
	Repository[models.Rule, models.RuleFilter]
	Update(ctx context.Context, rule *models.Rule) error
	ReplaceTargets(ctx context.Context, ruleID uint, targets []models.RuleTarget) error
	SetActive(ctx context.Context, id uint, active bool) error
	Delete(ctx context.Context, id uint) error
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	Update(ctx context.Context, campaign *models.Campaign) error
	TransitionStatus(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error)
	CompleteExpired(ctx context.Context, now time.Time) (int64, error)
	SaveIgnoringDuplicates(ctx context.Context, campaigns []*models.Campaign) (int64, error)
	Delete(ctx context.Context, id uint) error
}

// SweepRunRepository defines operations for sweep audit rows
type SweepRunRepository interface {
	Repository[models.SweepRun, models.SweepRunFilter]
}

// ConversationRepository defines operations for agent conversations
type ConversationRepository interface {
	Repository[models.Conversation, models.ConversationFilter]
	Touch(ctx context.Context, id uint, at time.Time) error
}

// ConversationMessageRepository defines operations for conversation turns
type ConversationMessageRepository interface {
	Repository[models.ConversationMessage, models.ConversationMessageFilter]
	// ListRecent returns the newest limit messages in chronological order.
	ListRecent(ctx context.Context, conversationID uint, limit int) ([]*models.ConversationMessage, error)
}

// ChatbotSettingsRepository defines operations for per-gym agent settings
type ChatbotSettingsRepository interface {
	ByGymID(ctx context.Context, gymID uint) (*models.ChatbotSettings, error)
	Upsert(ctx context.Context, settings *models.ChatbotSettings) error
}
