package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/gymdesk/models"
	"github.com/amirphl/gymdesk/utils"
	"gorm.io/gorm"
)

// RuleRepositoryImpl implements RuleRepository
type RuleRepositoryImpl struct {
	*BaseRepository[models.Rule, models.RuleFilter]
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &RuleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Rule, models.RuleFilter](db),
	}
}

// ByID retrieves a rule with its targets in insertion order
func (r *RuleRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Rule, error) {
	db := r.getDB(ctx)

	var rule models.Rule
	err := db.Preload("Targets", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Last(&rule, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find rule %d: %w", id, err)
	}
	return &rule, nil
}

// Update persists the rule's own columns. Targets are only changed through ReplaceTargets.
func (r *RuleRepositoryImpl) Update(ctx context.Context, rule *models.Rule) error {
	return r.withWrite(ctx, func(db *gorm.DB) error {
		rule.UpdatedAt = utils.UTCNow()
		if err := db.Omit("Targets").Save(rule).Error; err != nil {
			return fmt.Errorf("failed to update rule %d: %w", rule.ID, err)
		}
		return nil
	})
}

// ReplaceTargets deletes every target of the rule and inserts the given list in one transaction
func (r *RuleRepositoryImpl) ReplaceTargets(ctx context.Context, ruleID uint, targets []models.RuleTarget) error {
	return r.withWrite(ctx, func(db *gorm.DB) error {
		if err := db.Where("rule_id = ?", ruleID).Delete(&models.RuleTarget{}).Error; err != nil {
			return fmt.Errorf("failed to delete targets of rule %d: %w", ruleID, err)
		}
		if len(targets) == 0 {
			return nil
		}

		rows := make([]models.RuleTarget, len(targets))
		for i, t := range targets {
			rows[i] = models.RuleTarget{RuleID: ruleID, TargetType: t.TargetType, TargetValue: t.TargetValue}
		}
		if err := db.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert targets of rule %d: %w", ruleID, err)
		}
		return nil
	})
}

// SetActive sets the is_active flag of a rule
func (r *RuleRepositoryImpl) SetActive(ctx context.Context, id uint, active bool) error {
	return r.withWrite(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Rule{}).Where("id = ?", id).
			Updates(map[string]any{"is_active": active, "updated_at": utils.UTCNow()})
		if res.Error != nil {
			return fmt.Errorf("failed to toggle rule %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *RuleRepositoryImpl) applyFilter(db *gorm.DB, f models.RuleFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.GymID != nil {
		db = db.Where("gym_id = ?", *f.GymID)
	}
	if f.Kind != nil {
		db = db.Where("kind = ?", *f.Kind)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	if f.RuleType != nil {
		db = db.Where("rule_type = ?", *f.RuleType)
	}
	return db
}

func (r *RuleRepositoryImpl) ByFilter(ctx context.Context, filter models.RuleFilter, orderBy string, limit, offset int) ([]*models.Rule, error) {
	return r.findWith(ctx, func(db *gorm.DB) *gorm.DB {
		return r.applyFilter(db, filter).Preload("Targets", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
	}, orderBy, limit, offset)
}

func (r *RuleRepositoryImpl) Count(ctx context.Context, filter models.RuleFilter) (int64, error) {
	return r.countWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

func (r *RuleRepositoryImpl) Exists(ctx context.Context, filter models.RuleFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
