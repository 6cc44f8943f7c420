package models

import (
	"sort"
	"time"
)

// Filter holds one user's lunch preferences. A nil limit means the user
// never answered that question.
type Filter struct {
	UserID       string    `json:"user_id" gorm:"primaryKey"`
	TimeLimit    *int      `json:"time_limit"`
	PriceLimit   *int      `json:"price_limit"`
	ExcludedTags []string  `json:"excluded_tags" gorm:"serializer:json"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Excludes reports whether tag is in the excluded set.
func (f Filter) Excludes(tag string) bool {
	for _, t := range f.ExcludedTags {
		if t == tag {
			return true
		}
	}
	return false
}

// ToggleTag flips membership of tag in the excluded set and keeps the set sorted.
func (f *Filter) ToggleTag(tag string) {
	next := make([]string, 0, len(f.ExcludedTags)+1)
	found := false
	for _, t := range f.ExcludedTags {
		if t == tag {
			found = true
			continue
		}
		next = append(next, t)
	}
	if !found {
		next = append(next, tag)
	}
	sort.Strings(next)
	f.ExcludedTags = next
}
