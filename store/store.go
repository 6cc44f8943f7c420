// Package store persists restaurants, per-user filters and lunch sessions
// with gorm.
package store

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a record that must exist is missing.
var ErrNotFound = errors.New("record not found")

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
