package store

import (
	"context"
	"errors"
	"fmt"

	"lunchbot/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filters stores per-user lunch preferences. Writes are last-write-wins per
// user; nothing scopes a filter to a session.
type Filters struct {
	db *gorm.DB
}

func NewFilters(db *gorm.DB) *Filters {
	return &Filters{db: db}
}

// Get returns the stored filter for userID, or an empty one.
func (f *Filters) Get(ctx context.Context, userID string) (models.Filter, error) {
	var filter models.Filter
	err := f.db.WithContext(ctx).First(&filter, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Filter{UserID: userID}, nil
	}
	if err != nil {
		return models.Filter{}, fmt.Errorf("get filter for %s: %w", userID, err)
	}
	return filter, nil
}

// GetMany returns the stored filters for userIDs. Users without one are omitted.
func (f *Filters) GetMany(ctx context.Context, userIDs []string) ([]models.Filter, error) {
	var filters []models.Filter
	if len(userIDs) == 0 {
		return filters, nil
	}
	if err := f.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&filters).Error; err != nil {
		return nil, fmt.Errorf("get filters: %w", err)
	}
	return filters, nil
}

func (f *Filters) SetTimeLimit(ctx context.Context, userID string, minutes int) error {
	return f.upsert(ctx, &models.Filter{UserID: userID, TimeLimit: &minutes}, "time_limit")
}

func (f *Filters) SetPriceLimit(ctx context.Context, userID string, price int) error {
	return f.upsert(ctx, &models.Filter{UserID: userID, PriceLimit: &price}, "price_limit")
}

func (f *Filters) upsert(ctx context.Context, filter *models.Filter, column string) error {
	err := f.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
	}).Create(filter).Error
	if err != nil {
		return fmt.Errorf("set %s for %s: %w", column, filter.UserID, err)
	}
	return nil
}

// ToggleExcludedTag flips tag in the user's excluded set and returns the
// updated filter.
func (f *Filters) ToggleExcludedTag(ctx context.Context, userID, tag string) (models.Filter, error) {
	var filter models.Filter
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// write first so the transaction holds the write lock before reading
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Filter{UserID: userID}).Error
		if err != nil {
			return err
		}
		if err := tx.First(&filter, "user_id = ?", userID).Error; err != nil {
			return err
		}
		filter.ToggleTag(tag)
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"excluded_tags", "updated_at"}),
		}).Create(&filter).Error
	})
	if err != nil {
		return models.Filter{}, fmt.Errorf("toggle tag %q for %s: %w", tag, userID, err)
	}
	return filter, nil
}

// Clear removes every stored preference of userID.
func (f *Filters) Clear(ctx context.Context, userID string) error {
	if err := f.db.WithContext(ctx).Delete(&models.Filter{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("clear filter for %s: %w", userID, err)
	}
	return nil
}
