package models

// Criteria is the combined filter of a lunch group. Nil limits are unbounded.
type Criteria struct {
	TimeLimit    *int     `json:"time_limit"`
	PriceLimit   *int     `json:"price_limit"`
	ExcludedTags []string `json:"excluded_tags"`
}

// Allows reports whether r satisfies every bound in c.
func (c Criteria) Allows(r Restaurant) bool {
	if c.TimeLimit != nil && r.DurationMinutes > *c.TimeLimit {
		return false
	}
	if c.PriceLimit != nil && r.Price > *c.PriceLimit {
		return false
	}
	for _, tag := range c.ExcludedTags {
		if r.HasTag(tag) {
			return false
		}
	}
	return true
}
