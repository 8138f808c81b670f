package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/gymdesk/models"
	"gorm.io/gorm"
)

// ClientRepositoryImpl implements ClientRepository
type ClientRepositoryImpl struct {
	*BaseRepository[models.Client, models.ClientFilter]
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &ClientRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Client, models.ClientFilter](db),
	}
}

// ByIDs loads clients keyed by id; missing ids are absent from the map
func (r *ClientRepositoryImpl) ByIDs(ctx context.Context, ids []uint) (map[uint]*models.Client, error) {
	out := make(map[uint]*models.Client, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.ByFilter(ctx, models.ClientFilter{IDs: ids}, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}

func (r *ClientRepositoryImpl) applyFilter(db *gorm.DB, f models.ClientFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if len(f.IDs) > 0 {
		db = db.Where("id IN ?", f.IDs)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.GymID != nil {
		db = db.Where("gym_id = ?", *f.GymID)
	}
	if f.Plan != nil {
		db = db.Where("plan = ?", *f.Plan)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.Email != nil {
		db = db.Where("email = ?", *f.Email)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *ClientRepositoryImpl) ByFilter(ctx context.Context, filter models.ClientFilter, orderBy string, limit, offset int) ([]*models.Client, error) {
	return r.findWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

func (r *ClientRepositoryImpl) Count(ctx context.Context, filter models.ClientFilter) (int64, error) {
	return r.countWith(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

func (r *ClientRepositoryImpl) Exists(ctx context.Context, filter models.ClientFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
