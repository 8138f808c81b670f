package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/gymdesk/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepositoryImpl implements ConversationRepository
type ConversationRepositoryImpl struct {
	*BaseRepository[models.Conversation, models.ConversationFilter]
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &ConversationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Conversation, models.ConversationFilter](db),
	}
}

// Touch bumps last_message_at after a new turn is stored
func (r *ConversationRepositoryImpl) Touch(ctx context.Context, id uint, at time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Conversation{}).Where("id = ?", id).
		Updates(map[string]any{"last_message_at": at, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("failed to touch conversation %d: %w", id, err)
	}
	return nil
}

func (r *ConversationRepositoryImpl) applyFilter(db *gorm.DB, f models.ConversationFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.GymID != nil {
		db = db.Where("gym_id = ?", *f.GymID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.ContactNumber != nil {
		db = db.Where("contact_number = ?", *f.ContactNumber)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

func (r *ConversationRepositoryImpl) ByFilter(ctx context.Context, filter models.ConversationFilter, orderBy string, limit, offset int) ([]*models.Conversation, error) {
	return r.findWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

func (r *ConversationRepositoryImpl) Count(ctx context.Context, filter models.ConversationFilter) (int64, error) {
	return r.countWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

func (r *ConversationRepositoryImpl) Exists(ctx context.Context, filter models.ConversationFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ConversationMessageRepositoryImpl implements ConversationMessageRepository
type ConversationMessageRepositoryImpl struct {
	*BaseRepository[models.ConversationMessage, models.ConversationMessageFilter]
}

func NewConversationMessageRepository(db *gorm.DB) ConversationMessageRepository {
	return &ConversationMessageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ConversationMessage, models.ConversationMessageFilter](db),
	}
}

// ListRecent returns the newest limit messages, oldest first
func (r *ConversationMessageRepositoryImpl) ListRecent(ctx context.Context, conversationID uint, limit int) ([]*models.ConversationMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.ByFilter(ctx, models.ConversationMessageFilter{ConversationID: &conversationID}, "created_at DESC, id DESC", limit, 0)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (r *ConversationMessageRepositoryImpl) applyFilter(db *gorm.DB, f models.ConversationMessageFilter) *gorm.DB {
	if f.ConversationID != nil {
		db = db.Where("conversation_id = ?", *f.ConversationID)
	}
	if f.Role != nil {
		db = db.Where("role = ?", *f.Role)
	}
	return db
}

func (r *ConversationMessageRepositoryImpl) ByFilter(ctx context.Context, filter models.ConversationMessageFilter, orderBy string, limit, offset int) ([]*models.ConversationMessage, error) {
	return r.findWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

func (r *ConversationMessageRepositoryImpl) Count(ctx context.Context, filter models.ConversationMessageFilter) (int64, error) {
	return r.countWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

func (r *ConversationMessageRepositoryImpl) Exists(ctx context.Context, filter models.ConversationMessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ChatbotSettingsRepositoryImpl implements ChatbotSettingsRepository
type ChatbotSettingsRepositoryImpl struct {
	db *gorm.DB
}

func NewChatbotSettingsRepository(db *gorm.DB) ChatbotSettingsRepository {
	return &ChatbotSettingsRepositoryImpl{db: db}
}

func (r *ChatbotSettingsRepositoryImpl) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// ByGymID returns the gym's settings or nil when none were saved
func (r *ChatbotSettingsRepositoryImpl) ByGymID(ctx context.Context, gymID uint) (*models.ChatbotSettings, error) {
	var row models.ChatbotSettings
	if err := r.conn(ctx).Where("gym_id = ?", gymID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load chatbot settings for gym %d: %w", gymID, err)
	}
	return &row, nil
}

// Upsert inserts or replaces the settings row keyed by gym_id
func (r *ChatbotSettingsRepositoryImpl) Upsert(ctx context.Context, settings *models.ChatbotSettings) error {
	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "gym_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"bot_name", "instructions", "welcome_message", "business_hours",
			"model", "temperature", "history_limit", "is_active", "updated_at",
		}),
	}).Create(settings).Error
	if err != nil {
		return fmt.Errorf("failed to save chatbot settings for gym %d: %w", settings.GymID, err)
	}
	return nil
}
