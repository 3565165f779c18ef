package store

import (
	"errors"

	"gorm.io/gorm"

	"equipment-hours-backend/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique value is already taken.
	ErrConflict = errors.New("record already exists")
)

// StatusCounts maps each unit status to the number of units in it.
type StatusCounts map[model.UnitStatus]int64

// MissingError names the referenced record that does not exist. It matches
// ErrNotFound.
type MissingError struct {
	Entity string
}

func (e *MissingError) Error() string {
	return e.Entity + " not found"
}

func (e *MissingError) Unwrap() error {
	return ErrNotFound
}

func missing(entity string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &MissingError{Entity: entity}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
