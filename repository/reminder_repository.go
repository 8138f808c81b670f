package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReminderRepositoryImpl implements ReminderRepository
type ReminderRepositoryImpl struct {
	*BaseRepository[models.Reminder, models.ReminderFilter]
}

// NewReminderRepository creates a new reminder repository
func NewReminderRepository(db *gorm.DB) ReminderRepository {
	return &ReminderRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Reminder, models.ReminderFilter](db),
	}
}

// ByID retrieves a reminder together with its client
func (r *ReminderRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Reminder, error) {
	db := r.getDB(ctx)
	var row models.Reminder
	if err := db.Preload("Client").Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find reminder %d: %w", id, err)
	}
	return &row, nil
}

const claimDueRemindersSQL = `
UPDATE reminders SET status = ?, claimed_at = ?, claim_token = ?, updated_at = ?
WHERE id IN (
	SELECT id FROM reminders
	WHERE status = ? AND send_at <= ? AND retries < ?
	ORDER BY send_at ASC, id ASC
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING *`

// ClaimDue flips due PENDING reminders to PROCESSING in one statement. Rows
// locked by a concurrent sweep are skipped, so no reminder is claimed twice.
// Every returned row carries the claim token of this call.
func (r *ReminderRepositoryImpl) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	if limit <= 0 {
		limit = 500
	}
	db := r.getDB(ctx)

	var rows []*models.Reminder
	err := db.Raw(claimDueRemindersSQL,
		models.ReminderStatusProcessing, now, uuid.NewString(), utils.UTCNow(),
		models.ReminderStatusPending, now, models.MaxReminderRetries,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim due reminders: %w", err)
	}

	// RETURNING does not preserve the inner ORDER BY
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SendAt.Equal(rows[j].SendAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].SendAt.Before(rows[j].SendAt)
	})
	return rows, nil
}

// ClaimByID claims one PENDING reminder regardless of its send_at
func (r *ReminderRepositoryImpl) ClaimByID(ctx context.Context, id uint, now time.Time) (*models.Reminder, error) {
	db := r.getDB(ctx)

	var rows []*models.Reminder
	err := db.Raw(`UPDATE reminders SET status = ?, claimed_at = ?, claim_token = ?, updated_at = ?
		WHERE id = ? AND status = ? AND retries < ?
		RETURNING *`,
		models.ReminderStatusProcessing, now, uuid.NewString(), utils.UTCNow(),
		id, models.ReminderStatusPending, models.MaxReminderRetries,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim reminder %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// RenewClaim refreshes claimed_at when the row is still held under token.
// It reports false when the claim was released or taken over.
func (r *ReminderRepositoryImpl) RenewClaim(ctx context.Context, id uint, token string, now time.Time) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Reminder{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, models.ReminderStatusProcessing, token).
		Updates(map[string]any{
			"claimed_at": now,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to renew claim of reminder %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseStaleClaims returns PROCESSING rows abandoned by a crashed sweep to PENDING
func (r *ReminderRepositoryImpl) ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Reminder{}).
		Where("status = ? AND claimed_at < ?", models.ReminderStatusProcessing, claimedBefore).
		Updates(map[string]any{
			"status":      models.ReminderStatusPending,
			"claimed_at":  nil,
			"claim_token": nil,
			"updated_at":  utils.UTCNow(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkSent finalizes a claimed reminder. It reports false when the row is no
// longer PROCESSING under the given claim token.
func (r *ReminderRepositoryImpl) MarkSent(ctx context.Context, id uint, token string, sentAt time.Time, providerMessageID *string) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Reminder{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, models.ReminderStatusProcessing, token).
		Updates(map[string]any{
			"status":              models.ReminderStatusSent,
			"sent_at":             sentAt,
			"provider_message_id": providerMessageID,
			"last_error":          nil,
			"claimed_at":          nil,
			"claim_token":         nil,
			"updated_at":          utils.UTCNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark reminder %d sent: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkAttemptFailed records a failed delivery attempt on a claimed reminder
func (r *ReminderRepositoryImpl) MarkAttemptFailed(ctx context.Context, id uint, token string, retries int, status models.ReminderStatus, lastError string) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Reminder{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, models.ReminderStatusProcessing, token).
		Updates(map[string]any{
			"status":      status,
			"retries":     retries,
			"last_error":  lastError,
			"claimed_at":  nil,
			"claim_token": nil,
			"updated_at":  utils.UTCNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to record attempt for reminder %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Update persists the reminder columns without touching the loaded client
func (r *ReminderRepositoryImpl) Update(ctx context.Context, reminder *models.Reminder) error {
	return r.withWrite(ctx, func(db *gorm.DB) error {
		if err := db.Omit("Client").Save(reminder).Error; err != nil {
			return fmt.Errorf("failed to update reminder %d: %w", reminder.ID, err)
		}
		return nil
	})
}

// SaveIgnoringDuplicates inserts reminders skipping rows that violate the dedup indexes
func (r *ReminderRepositoryImpl) SaveIgnoringDuplicates(ctx context.Context, reminders []*models.Reminder) (int64, error) {
	return r.saveIgnoringConflicts(ctx, reminders)
}

func (r *ReminderRepositoryImpl) applyFilter(db *gorm.DB, f models.ReminderFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.GymID != nil {
		db = db.Where("gym_id = ?", *f.GymID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.RuleID != nil {
		db = db.Where("rule_id = ?", *f.RuleID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.Channel != nil {
		db = db.Where("channel = ?", *f.Channel)
	}
	if f.SendAtBefore != nil {
		db = db.Where("send_at <= ?", *f.SendAtBefore)
	}
	if f.SendAtAfter != nil {
		db = db.Where("send_at >= ?", *f.SendAtAfter)
	}
	if f.MaxRetries != nil {
		db = db.Where("retries < ?", *f.MaxRetries)
	}
	return db
}

func (r *ReminderRepositoryImpl) ByFilter(ctx context.Context, filter models.ReminderFilter, orderBy string, limit, offset int) ([]*models.Reminder, error) {
	return r.findWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter).Preload("Client") }, orderBy, limit, offset)
}

func (r *ReminderRepositoryImpl) Count(ctx context.Context, filter models.ReminderFilter) (int64, error) {
	return r.countWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

func (r *ReminderRepositoryImpl) Exists(ctx context.Context, filter models.ReminderFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
