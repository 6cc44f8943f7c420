// Package suggest combines the preferences of a lunch group and finds the
// restaurants everyone can accept.
package suggest

import (
	"context"
	"fmt"
	"sort"

	"lunchbot/models"
)

// FilterSource reads stored preferences.
type FilterSource interface {
	GetMany(ctx context.Context, userIDs []string) ([]models.Filter, error)
}

// RestaurantMatcher queries the catalog.
type RestaurantMatcher interface {
	Match(ctx context.Context, crit models.Criteria) ([]models.Restaurant, error)
}

type Engine struct {
	filters FilterSource
	catalog RestaurantMatcher
}

func NewEngine(filters FilterSource, catalog RestaurantMatcher) *Engine {
	return &Engine{filters: filters, catalog: catalog}
}

// Aggregate takes the tightest time and price limit anyone set and the
// union of everyone's excluded tags. A limit nobody set stays unbounded.
func Aggregate(filters []models.Filter) models.Criteria {
	var crit models.Criteria
	excluded := map[string]bool{}
	for _, f := range filters {
		if f.TimeLimit != nil && (crit.TimeLimit == nil || *f.TimeLimit < *crit.TimeLimit) {
			v := *f.TimeLimit
			crit.TimeLimit = &v
		}
		if f.PriceLimit != nil && (crit.PriceLimit == nil || *f.PriceLimit < *crit.PriceLimit) {
			v := *f.PriceLimit
			crit.PriceLimit = &v
		}
		for _, tag := range f.ExcludedTags {
			excluded[tag] = true
		}
	}
	for tag := range excluded {
		crit.ExcludedTags = append(crit.ExcludedTags, tag)
	}
	sort.Strings(crit.ExcludedTags)
	return crit
}

// Suggest returns the combined criteria of userIDs and the restaurants
// matching it in catalog order. An empty result is not an error.
func (e *Engine) Suggest(ctx context.Context, userIDs []string) (models.Criteria, []models.Restaurant, error) {
	filters, err := e.filters.GetMany(ctx, userIDs)
	if err != nil {
		return models.Criteria{}, nil, fmt.Errorf("load filters: %w", err)
	}
	crit := Aggregate(filters)
	matches, err := e.catalog.Match(ctx, crit)
	if err != nil {
		return crit, nil, fmt.Errorf("query catalog: %w", err)
	}
	return crit, matches, nil
}
