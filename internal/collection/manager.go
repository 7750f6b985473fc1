package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxzi/rbacdash/internal/audit"
	"github.com/foxzi/rbacdash/internal/clock"
	"github.com/foxzi/rbacdash/internal/metrics"
	"github.com/foxzi/rbacdash/internal/store"
)

// Options configures a Manager
type Options struct {
	Store  store.Store
	Clock  clock.Clock
	IDs    *clock.IDSource
	Logger *slog.Logger
}

// Manager owns one committed collection and its activity log.
// Reads return copies; every mutation persists the collection and the log
// in one store write before the in-memory state is replaced.
type Manager[T any] struct {
	schema *Schema[T]
	store  store.Store
	clock  clock.Clock
	ids    *clock.IDSource
	logger *slog.Logger

	mu   sync.RWMutex
	rows []T
	log  audit.Log
}

// Open loads the collection and its log, seeding either when absent or corrupt
func Open[T any](ctx context.Context, schema *Schema[T], opts Options) (*Manager[T], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("collection %s: store is required", schema.Plural)
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.IDs == nil {
		opts.IDs = clock.NewIDSource(opts.Clock)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("collection", schema.Plural)

	rows, err := store.LoadOrSeed(ctx, opts.Store, schema.StorageKey, func() []T {
		if schema.Seed == nil {
			return []T{}
		}
		return schema.Seed(opts.Clock.Now())
	}, schema.checkStored, logger)
	if err != nil {
		return nil, err
	}

	log, err := store.LoadOrSeed(ctx, opts.Store, schema.AuditKey, func() audit.Log {
		return audit.Log{}
	}, nil, logger)
	if err != nil {
		return nil, err
	}
	if len(log) > audit.MaxEntries {
		logger.Warn("stored activity log over capacity, truncating", "entries", len(log))
	}
	log = log.Bounded()

	for _, r := range rows {
		opts.IDs.Observe(schema.ID(r))
	}
	for _, e := range log {
		opts.IDs.Observe(e.ID)
	}

	m := &Manager[T]{
		schema: schema,
		store:  opts.Store,
		clock:  opts.Clock,
		ids:    opts.IDs,
		logger: logger,
		rows:   rows,
		log:    log,
	}
	metrics.SetCollectionSize(schema.Plural, len(rows), len(log))

	logger.Debug("collection loaded", "rows", len(rows), "activity", len(log))
	return m, nil
}

// Schema returns the schema the manager was opened with
func (m *Manager[T]) Schema() *Schema[T] {
	return m.schema
}

// Len returns the number of committed records
func (m *Manager[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// All returns a copy of the committed collection in stored order
func (m *Manager[T]) All() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schema.cloneAll(m.rows)
}

// Get returns the record with id
func (m *Manager[T]) Get(id int64) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.indexOf(id); i >= 0 {
		return m.schema.clone(m.rows[i]), true
	}
	var zero T
	return zero, false
}

// View projects the committed collection through q
func (m *Manager[T]) View(q Query) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Project(m.schema, m.rows, q)
}

// Activity returns the n newest activity entries
func (m *Manager[T]) Activity(n int) audit.Log {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.log.Recent(n)
}

// History returns the whole retained activity log
func (m *Manager[T]) History() audit.Log {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.log.Recent(len(m.log))
}

// Create validates draft, assigns a fresh id, stamps it and appends it
func (m *Manager[T]) Create(ctx context.Context, draft T) (T, error) {
	var zero T
	if err := m.validate(draft); err != nil {
		return zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	id := m.nextID()
	rec := m.schema.WithID(m.schema.clone(draft), id)
	if m.schema.Created != nil {
		rec = m.schema.Created(rec, now)
	}

	rows := make([]T, 0, len(m.rows)+1)
	rows = append(rows, m.rows...)
	rows = append(rows, rec)

	action := fmt.Sprintf("Added new %s: %s", m.schema.Kind, m.schema.Name(rec))
	if err := m.commit(ctx, rows, action); err != nil {
		return zero, err
	}

	metrics.IncMutations(m.schema.Plural, "create")
	m.logger.Info("record created", "id", id, "name", m.schema.Name(rec))
	return m.schema.clone(rec), nil
}

// Update replaces the record with id by draft, keeping id.
// It returns ErrNotFound, and changes nothing, when id is absent.
func (m *Manager[T]) Update(ctx context.Context, id int64, draft T) (T, error) {
	var zero T
	if err := m.validate(draft); err != nil {
		return zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return zero, fmt.Errorf("%s %d: %w", m.schema.Kind, id, ErrNotFound)
	}

	rec := m.schema.clone(draft)
	if m.schema.Merge != nil {
		rec = m.schema.Merge(m.rows[i], rec)
	}
	rec = m.schema.WithID(rec, id)

	rows := make([]T, len(m.rows))
	copy(rows, m.rows)
	rows[i] = rec

	action := fmt.Sprintf("Updated %s: %s", m.schema.Kind, m.schema.Name(rec))
	if err := m.commit(ctx, rows, action); err != nil {
		return zero, err
	}

	metrics.IncMutations(m.schema.Plural, "update")
	m.logger.Info("record updated", "id", id, "name", m.schema.Name(rec))
	return m.schema.clone(rec), nil
}

// Delete removes the record with id. Deleting an absent id is a no-op
// that reports false and writes nothing to the activity log.
func (m *Manager[T]) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return false, nil
	}

	// Capture the name before the row is gone
	name := m.schema.Name(m.rows[i])

	rows := make([]T, 0, len(m.rows)-1)
	rows = append(rows, m.rows[:i]...)
	rows = append(rows, m.rows[i+1:]...)

	action := fmt.Sprintf("Deleted %s: %s", m.schema.Kind, name)
	if err := m.commit(ctx, rows, action); err != nil {
		return false, err
	}

	metrics.IncMutations(m.schema.Plural, "delete")
	m.logger.Info("record deleted", "id", id, "name", name)
	return true, nil
}

// Replace swaps the whole collection for rows, assigning each a fresh id,
// and records action. Rows are stored as given otherwise; used for bulk
// seeding from an upstream source.
func (m *Manager[T]) Replace(ctx context.Context, rows []T, action string) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]T, len(rows))
	for i, r := range rows {
		next[i] = m.schema.WithID(m.schema.clone(r), m.ids.Next())
	}

	if err := m.commit(ctx, next, action); err != nil {
		return nil, err
	}

	metrics.IncMutations(m.schema.Plural, "replace")
	m.logger.Info("collection replaced", "rows", len(next))
	return m.schema.cloneAll(next), nil
}

// Record appends action to the activity log without touching the collection
func (m *Manager[T]) Record(ctx context.Context, action string) (audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.newEntry(action)
	log := m.log.Append(entry)
	if err := m.store.Save(ctx, store.Entry{Key: m.schema.AuditKey, Value: log}); err != nil {
		return audit.Entry{}, fmt.Errorf("failed to persist activity for %s: %w", m.schema.Plural, err)
	}
	m.log = log
	metrics.SetCollectionSize(m.schema.Plural, len(m.rows), len(m.log))
	return entry, nil
}

// commit persists rows and the log extended by action, then installs both.
// Caller holds m.mu.
func (m *Manager[T]) commit(ctx context.Context, rows []T, action string) error {
	log := m.log.Append(m.newEntry(action))

	err := m.store.Save(ctx,
		store.Entry{Key: m.schema.StorageKey, Value: rows},
		store.Entry{Key: m.schema.AuditKey, Value: log},
	)
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", m.schema.Plural, err)
	}

	m.rows = rows
	m.log = log
	metrics.SetCollectionSize(m.schema.Plural, len(m.rows), len(m.log))
	return nil
}

func (m *Manager[T]) newEntry(action string) audit.Entry {
	return audit.Entry{
		ID:        m.ids.Next(),
		Action:    action,
		Timestamp: m.clock.Now().UTC(),
	}
}

// nextID returns an id unused by the collection. Caller holds m.mu.
func (m *Manager[T]) nextID() int64 {
	for {
		id := m.ids.Next()
		if m.indexOf(id) < 0 {
			return id
		}
	}
}

// indexOf returns the position of id or -1. Caller holds m.mu.
func (m *Manager[T]) indexOf(id int64) int {
	for i, r := range m.rows {
		if m.schema.ID(r) == id {
			return i
		}
	}
	return -1
}

func (m *Manager[T]) validate(draft T) error {
	if m.schema.Validate == nil {
		return nil
	}
	return m.schema.Validate(draft)
}
