package collection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/rbacdash/internal/clock"
	"github.com/foxzi/rbacdash/internal/store"
)

type item struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Tag     string    `json:"tag"`
	Labels  []string  `json:"labels"`
	Created time.Time `json:"created"`
}

var errNameRequired = errors.New("name is required")

func itemSchema() *Schema[item] {
	return &Schema[item]{
		Kind:       "item",
		Plural:     "items",
		StorageKey: "items",
		AuditKey:   "items_log",

		ID:     func(i item) int64 { return i.ID },
		WithID: func(i item, id int64) item { i.ID = id; return i },
		Name:   func(i item) string { return i.Name },

		Created: func(i item, now time.Time) item { i.Created = now; return i },
		Merge: func(stored, draft item) item {
			draft.Created = stored.Created
			return draft
		},
		Clone: func(i item) item {
			i.Labels = slices.Clone(i.Labels)
			return i
		},

		Searchable: func(i item) []string { return append([]string{i.Name}, i.Labels...) },
		Filters: map[string]func(item) string{
			"tag": func(i item) string { return i.Tag },
		},
		Sorts: map[string]func(a, b item) int{
			"name":    func(a, b item) int { return strings.Compare(a.Name, b.Name) },
			"tag":     func(a, b item) int { return strings.Compare(a.Tag, b.Tag) },
			"created": func(a, b item) int { return a.Created.Compare(b.Created) },
		},

		Validate: func(i item) error {
			if strings.TrimSpace(i.Name) == "" {
				return errNameRequired
			}
			return nil
		},
		Seed: func(now time.Time) []item {
			return []item{
				{ID: 1, Name: "alpha", Tag: "x", Created: now},
				{ID: 2, Name: "beta", Tag: "y", Created: now},
			}
		},
	}
}

var testEpoch = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.BoltStore {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openTestManager(t *testing.T, s store.Store, c *clock.Manual) *Manager[item] {
	t.Helper()
	m, err := Open(context.Background(), itemSchema(), Options{
		Store:  s,
		Clock:  c,
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return m
}

// failingStore loads from an inner store and fails every save once armed
type failingStore struct {
	store.Store
	fail bool
}

func (f *failingStore) Save(ctx context.Context, entries ...store.Entry) error {
	if f.fail {
		return errors.New("write failed")
	}
	return f.Store.Save(ctx, entries...)
}

func names(rows []item) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}
