package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByID retrieves a campaign by ID
func (r *CampaignRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Preload("Client").Last(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &campaign, nil
}

// TransitionStatus moves a campaign from one status to another only if it is still in from
func (r *CampaignRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to move campaign %d from %s to %s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CompleteExpired completes every ACTIVE campaign whose end date has passed
func (r *CampaignRepositoryImpl) CompleteExpired(ctx context.Context, now time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Campaign{}).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", models.CampaignStatusActive, now).
		Updates(map[string]any{"status": models.CampaignStatusCompleted, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to complete expired campaigns: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Update persists the campaign columns without touching the loaded client
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) error {
	return r.withWrite(ctx, func(db *gorm.DB) error {
		if err := db.Omit("Client").Save(campaign).Error; err != nil {
			return fmt.Errorf("failed to update campaign %d: %w", campaign.ID, err)
		}
		return nil
	})
}

// SaveIgnoringDuplicates inserts campaigns skipping (rule, client, start date) duplicates
func (r *CampaignRepositoryImpl) SaveIgnoringDuplicates(ctx context.Context, campaigns []*models.Campaign) (int64, error) {
	return r.saveIgnoringConflicts(ctx, campaigns)
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return r.findWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter).Preload("Client") }, orderBy, limit, offset)
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	return r.countWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

// Exists checks if a campaign exists with the given filter
func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter criteria to the query
func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.GymID != nil {
		db = db.Where("gym_id = ?", *filter.GymID)
	}
	if filter.ClientID != nil {
		db = db.Where("client_id = ?", *filter.ClientID)
	}
	if filter.RuleID != nil {
		db = db.Where("rule_id = ?", *filter.RuleID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.StartDateBefore != nil {
		db = db.Where("start_date <= ?", *filter.StartDateBefore)
	}
	if filter.EndDateBefore != nil {
		db = db.Where("end_date < ?", *filter.EndDateBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}
	return db
}
