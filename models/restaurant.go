package models

import "time"

type Restaurant struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name" gorm:"not null"`
	Address         string    `json:"address"`
	DurationMinutes int       `json:"duration_minutes" gorm:"not null;index"`
	Rating          int       `json:"rating" gorm:"not null"`
	Price           int       `json:"price" gorm:"not null;index"`
	Tags            []string  `json:"tags" gorm:"serializer:json"`
	AddedBy         string    `json:"added_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// PendingRestaurant is a restaurant staged by add-restaurant that has not
// been confirmed yet. It never shows up in catalog queries.
type PendingRestaurant struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	StagedBy        string    `json:"staged_by" gorm:"not null;index"`
	Name            string    `json:"name" gorm:"not null"`
	Address         string    `json:"address"`
	DurationMinutes int       `json:"duration_minutes"`
	Rating          int       `json:"rating"`
	Price           int       `json:"price"`
	Tags            []string  `json:"tags" gorm:"serializer:json"`
	CreatedAt       time.Time `json:"created_at"`
}

// Restaurant returns the catalog record the staged entry turns into.
func (p PendingRestaurant) Restaurant() Restaurant {
	return Restaurant{
		Name:            p.Name,
		Address:         p.Address,
		DurationMinutes: p.DurationMinutes,
		Rating:          p.Rating,
		Price:           p.Price,
		Tags:            append([]string(nil), p.Tags...),
		AddedBy:         p.StagedBy,
	}
}

// HasTag reports whether the restaurant carries tag.
func (r Restaurant) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
