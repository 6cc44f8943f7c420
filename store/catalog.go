package store

import (
	"context"
	"fmt"
	"sort"

	"lunchbot/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Catalog stores restaurants and restaurants staged for confirmation.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Add(ctx context.Context, r *models.Restaurant) error {
	if err := c.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("add restaurant: %w", err)
	}
	return nil
}

func (c *Catalog) Get(ctx context.Context, id uint) (*models.Restaurant, error) {
	var r models.Restaurant
	if err := c.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// List returns every restaurant in insertion order.
func (c *Catalog) List(ctx context.Context) ([]models.Restaurant, error) {
	var restaurants []models.Restaurant
	if err := c.db.WithContext(ctx).Order("id asc").Find(&restaurants).Error; err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	return restaurants, nil
}

func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&models.Restaurant{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count restaurants: %w", err)
	}
	return n, nil
}

func (c *Catalog) Delete(ctx context.Context, id uint) error {
	res := c.db.WithContext(ctx).Delete(&models.Restaurant{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete restaurant %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Match returns restaurants satisfying crit in insertion order. Duration and
// price are bounded in SQL; tags are JSON so exclusion is checked here.
func (c *Catalog) Match(ctx context.Context, crit models.Criteria) ([]models.Restaurant, error) {
	query := c.db.WithContext(ctx).Order("id asc")
	if crit.TimeLimit != nil {
		query = query.Where("duration_minutes <= ?", *crit.TimeLimit)
	}
	if crit.PriceLimit != nil {
		query = query.Where("price <= ?", *crit.PriceLimit)
	}

	var candidates []models.Restaurant
	if err := query.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("match restaurants: %w", err)
	}
	matches := make([]models.Restaurant, 0, len(candidates))
	for _, r := range candidates {
		if crit.Allows(r) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// Tags returns the sorted set of tags used anywhere in the catalog.
func (c *Catalog) Tags(ctx context.Context) ([]string, error) {
	restaurants, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var tags []string
	for _, r := range restaurants {
		for _, t := range r.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// Stage stores p for later confirmation and assigns it an id.
func (c *Catalog) Stage(ctx context.Context, p *models.PendingRestaurant) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := c.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("stage restaurant: %w", err)
	}
	return nil
}

func (c *Catalog) Pending(ctx context.Context, id string) (*models.PendingRestaurant, error) {
	var p models.PendingRestaurant
	if err := c.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Commit moves a staged restaurant into the catalog. Only the caller that
// removes the staged row creates the restaurant, so a repeated or late
// confirmation returns ErrNotFound.
func (c *Catalog) Commit(ctx context.Context, pendingID string) (*models.Restaurant, error) {
	var created models.Restaurant
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.PendingRestaurant
		if err := tx.First(&p, "id = ?", pendingID).Error; err != nil {
			return translate(err)
		}
		res := tx.Delete(&models.PendingRestaurant{}, "id = ?", pendingID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		created = p.Restaurant()
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Discard drops a staged restaurant.
func (c *Catalog) Discard(ctx context.Context, pendingID string) error {
	res := c.db.WithContext(ctx).Delete(&models.PendingRestaurant{}, "id = ?", pendingID)
	if res.Error != nil {
		return fmt.Errorf("discard staged restaurant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
