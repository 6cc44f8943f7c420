// Package commands parses slash command text into lunchbot requests.
package commands

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lunchbot/models"

	"github.com/google/shlex"
)

// MinAddRestaurantArgs is name, address, duration, rating, price and at least one tag.
const MinAddRestaurantArgs = 6

const AddRestaurantUsage = "Usage: `/add-restaurant <name> <address> <duration> <rating> <price> <tags...>`\n" +
	"Quote the name or address if it contains spaces, e.g. " +
	"`/add-restaurant \"Soba Ichi\" \"1-2-3 Kanda\" 20 4 900 japanese noodles`"

var ErrTooFewArgs = errors.New("too few arguments")

// FieldError reports a single add-restaurant field that failed validation.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q %s", e.Field, e.Value, e.Reason)
}

// Tokenize splits text the way a shell would, keeping quoted runs together.
func Tokenize(text string) ([]string, error) {
	tokens, err := shlex.Split(text)
	if err != nil {
		return nil, fmt.Errorf("could not split arguments: %w", err)
	}
	return tokens, nil
}

// ParseAddRestaurant turns already-tokenized add-restaurant arguments into
// a staged restaurant. Nothing is persisted here.
func ParseAddRestaurant(tokens []string) (models.PendingRestaurant, error) {
	if len(tokens) < MinAddRestaurantArgs {
		return models.PendingRestaurant{}, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewArgs, len(tokens), MinAddRestaurantArgs)
	}

	duration, err := parseInt("duration", tokens[2])
	if err != nil {
		return models.PendingRestaurant{}, err
	}
	rating, err := parseInt("rating", tokens[3])
	if err != nil {
		return models.PendingRestaurant{}, err
	}
	price, err := parseInt("price", tokens[4])
	if err != nil {
		return models.PendingRestaurant{}, err
	}

	p := models.PendingRestaurant{
		Name:            tokens[0],
		Address:         tokens[1],
		DurationMinutes: duration,
		Rating:          rating,
		Price:           price,
		Tags:            NormalizeTags(tokens[5:]),
	}
	if err := ValidateRestaurant(p.Restaurant()); err != nil {
		return models.PendingRestaurant{}, err
	}
	return p, nil
}

func parseInt(field, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &FieldError{Field: field, Value: value, Reason: "must be a whole number"}
	}
	return n, nil
}

// ValidateRestaurant checks the ranges of a restaurant's fields.
func ValidateRestaurant(r models.Restaurant) error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return &FieldError{Field: "name", Reason: "must not be empty"}
	case r.DurationMinutes <= 0:
		return &FieldError{Field: "duration", Value: strconv.Itoa(r.DurationMinutes), Reason: "must be a positive number of minutes"}
	case r.Rating < 1 || r.Rating > 5:
		return &FieldError{Field: "rating", Value: strconv.Itoa(r.Rating), Reason: "must be between 1 and 5"}
	case r.Price < 0:
		return &FieldError{Field: "price", Value: strconv.Itoa(r.Price), Reason: "must not be negative"}
	}
	return nil
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// MentionError names a token that is not a usable user mention.
type MentionError struct {
	Token string
}

func (e *MentionError) Error() string {
	return fmt.Sprintf("%s is not a valid user mention", e.Token)
}

// Slack escapes mentions as <@U024BE7LH> or <@U024BE7LH|bob>.
var mentionPattern = regexp.MustCompile(`^<@([UW][A-Z0-9]+)(?:\|[^>]*)?>$`)

// ParseMentions extracts user ids from mention tokens. The first token that
// is not a mention aborts parsing. Repeated mentions are merged.
func ParseMentions(tokens []string) ([]string, error) {
	seen := make(map[string]bool, len(tokens))
	var ids []string
	for _, tok := range tokens {
		m := mentionPattern.FindStringSubmatch(tok)
		if m == nil {
			return nil, &MentionError{Token: tok}
		}
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		ids = append(ids, m[1])
	}
	return ids, nil
}
