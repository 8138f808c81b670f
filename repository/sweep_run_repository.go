package repository

import (
	"context"

	"github.com/amirphl/gymdesk/models"
	"gorm.io/gorm"
)

// SweepRunRepositoryImpl implements SweepRunRepository
type SweepRunRepositoryImpl struct {
	*BaseRepository[models.SweepRun, models.SweepRunFilter]
}

func NewSweepRunRepository(db *gorm.DB) SweepRunRepository {
	return &SweepRunRepositoryImpl{BaseRepository: NewBaseRepository[models.SweepRun, models.SweepRunFilter](db)}
}

func (r *SweepRunRepositoryImpl) applyFilter(db *gorm.DB, f models.SweepRunFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Kind != nil {
		db = db.Where("kind = ?", *f.Kind)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *SweepRunRepositoryImpl) ByFilter(ctx context.Context, filter models.SweepRunFilter, orderBy string, limit, offset int) ([]*models.SweepRun, error) {
	return r.findWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

func (r *SweepRunRepositoryImpl) Count(ctx context.Context, filter models.SweepRunFilter) (int64, error) {
	return r.countWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

func (r *SweepRunRepositoryImpl) Exists(ctx context.Context, filter models.SweepRunFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
