package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// LoadOrSeed returns the value stored under key. When nothing is stored,
// the stored value is corrupt, or check rejects it, seed is called and its
// result is persisted immediately so later loads see the same value.
// check may be nil.
func LoadOrSeed[T any](ctx context.Context, s Store, key string, seed func() T, check func(T) error, logger *slog.Logger) (T, error) {
	var value T

	found, err := s.Load(ctx, key, &value)
	switch {
	case errors.Is(err, ErrCorrupt):
		if logger != nil {
			logger.Warn("stored collection is corrupt, restoring defaults", "key", key, "error", err)
		}
		found = false
	case err != nil:
		var zero T
		return zero, fmt.Errorf("failed to load %s: %w", key, err)
	}

	if found && check != nil {
		if err := check(value); err != nil {
			if logger != nil {
				logger.Warn("stored collection is invalid, restoring defaults", "key", key, "error", err)
			}
			found = false
		}
	}

	if found {
		return value, nil
	}

	value = seed()
	if err := s.Save(ctx, Entry{Key: key, Value: value}); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to persist defaults for %s: %w", key, err)
	}
	return value, nil
}
