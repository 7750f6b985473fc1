package collection

import "context"

// Draft is an uncommitted copy of a record under edit. Changing Value
// never affects the committed collection; dropping the draft discards it.
type Draft[T any] struct {
	// ID is the record being edited, zero for a new record
	ID    int64
	Value T
}

// IsNew reports whether committing the draft creates a record
func (d *Draft[T]) IsNew() bool {
	return d.ID == 0
}

// NewDraft starts a draft for a record that does not exist yet
func (m *Manager[T]) NewDraft() *Draft[T] {
	return &Draft[T]{}
}

// Edit starts a draft from the committed record with id
func (m *Manager[T]) Edit(id int64) (*Draft[T], error) {
	rec, ok := m.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &Draft[T]{ID: id, Value: rec}, nil
}

// Commit creates or updates from d
func (m *Manager[T]) Commit(ctx context.Context, d *Draft[T]) (T, error) {
	if d.IsNew() {
		return m.Create(ctx, d.Value)
	}
	return m.Update(ctx, d.ID, d.Value)
}
