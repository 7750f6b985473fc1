// Package collection implements the persisted collection manager: a
// committed, durably stored sequence of records plus its activity log,
// read through filtered/sorted projections and changed through
// create/update/delete operations that are logged and persisted together.
package collection

import (
	"errors"
	"fmt"
	"time"
)

// Schema describes one record type to the manager
type Schema[T any] struct {
	// Kind is the singular name used in activity messages ("user")
	Kind string
	// Plural is the collection name ("users")
	Plural string

	// StorageKey holds the collection, AuditKey its activity log
	StorageKey string
	AuditKey   string

	ID     func(T) int64
	WithID func(T, int64) T
	// Name is the display name used in activity messages
	Name func(T) string

	// Created stamps a record about to be appended
	Created func(T, time.Time) T
	// Merge combines the stored record with an edited draft. When nil
	// the draft replaces the stored record.
	Merge func(stored, draft T) T
	// Clone deep-copies a record. When nil records are copied by value.
	Clone func(T) T

	// Searchable returns the fields matched by free-text search
	Searchable func(T) []string
	// Filters maps a filter name to the field it matches exactly
	Filters map[string]func(T) string
	// Sorts maps a sort key to a three-way comparison
	Sorts map[string]func(a, b T) int

	// Validate rejects drafts missing required fields
	Validate func(T) error

	// Seed returns the default collection used on first load
	Seed func(now time.Time) []T
}

func (s *Schema[T]) clone(v T) T {
	if s.Clone == nil {
		return v
	}
	return s.Clone(v)
}

func (s *Schema[T]) cloneAll(rows []T) []T {
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = s.clone(r)
	}
	return out
}

// checkStored rejects a loaded collection that is null, holds a record
// without a positive unique id, or holds a record failing Validate
func (s *Schema[T]) checkStored(rows []T) error {
	if rows == nil {
		return errors.New("collection is null")
	}

	seen := make(map[int64]bool, len(rows))
	for i, r := range rows {
		id := s.ID(r)
		if id <= 0 || seen[id] {
			return fmt.Errorf("record %d: invalid or duplicate id %d", i, id)
		}
		seen[id] = true

		if s.Validate != nil {
			if err := s.Validate(r); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
	}
	return nil
}
