package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/foxzi/rbacdash/internal/clock"
	"github.com/foxzi/rbacdash/internal/collection"
	"github.com/foxzi/rbacdash/internal/metrics"
	"github.com/foxzi/rbacdash/internal/rbac"
)

// ErrUnavailable is returned once the upstream fetch has failed. The
// failure is terminal for the process; there is no retry.
var ErrUnavailable = errors.New("failed to fetch users data")

// InitializedAction is recorded after a successful bootstrap
const InitializedAction = "System initialized with sample users"

// State is the bootstrap lifecycle state
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Status is a snapshot of the bootstrap
type Status struct {
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	Loaded    int       `json:"loaded"`
	Rejected  int       `json:"rejected"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bootstrapper fills an empty users collection from a Source
type Bootstrapper struct {
	users    *collection.Manager[rbac.User]
	source   Source
	enricher *Enricher
	clock    clock.Clock
	logger   *slog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	status Status
}

// NewBootstrapper creates a bootstrapper for users
func NewBootstrapper(users *collection.Manager[rbac.User], source Source, enricher *Enricher, c clock.Clock, logger *slog.Logger) *Bootstrapper {
	if enricher == nil {
		enricher = NewEnricher(nil)
	}
	if c == nil {
		c = clock.System()
	}
	return &Bootstrapper{
		users:    users,
		source:   source,
		enricher: enricher,
		clock:    c,
		logger:   logger.With("component", "directory"),
		status:   Status{State: StateIdle},
	}
}

// Status returns the current bootstrap status
func (b *Bootstrapper) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Run loads users when the collection is empty. Concurrent calls share a
// single fetch. After a failure every call returns ErrUnavailable.
func (b *Bootstrapper) Run(ctx context.Context) (Status, error) {
	st := b.Status()
	switch st.State {
	case StateReady:
		return st, nil
	case StateFailed:
		return st, ErrUnavailable
	}

	_, err, _ := b.group.Do("bootstrap", func() (any, error) {
		return nil, b.run(ctx)
	})
	return b.Status(), err
}

func (b *Bootstrapper) run(ctx context.Context) error {
	if b.Status().State != StateIdle {
		return b.result()
	}

	if n := b.users.Len(); n > 0 {
		b.logger.Debug("users present, skipping bootstrap", "users", n)
		b.setStatus(Status{State: StateReady})
		metrics.IncBootstrap("skipped")
		return nil
	}

	b.setStatus(Status{State: StateLoading})
	b.logger.Info("fetching users from directory")

	res, err := b.source.Fetch(ctx)
	if err == nil && len(res.Entries) == 0 {
		err = fmt.Errorf("no valid users in response (%d rejected)", len(res.Rejected))
	}
	if err != nil {
		b.logger.Error("user directory fetch failed", "error", err)
		b.setStatus(Status{State: StateFailed, Error: ErrUnavailable.Error()})
		metrics.IncBootstrap("failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, r := range res.Rejected {
		b.logger.Warn("rejected directory entry", "index", r.Index, "reason", r.Reason)
	}

	users := b.enricher.Enrich(res.Entries, b.clock.Now())
	if _, err := b.users.Replace(ctx, users, InitializedAction); err != nil {
		b.logger.Error("failed to store directory users", "error", err)
		b.setStatus(Status{State: StateFailed, Error: ErrUnavailable.Error()})
		metrics.IncBootstrap("failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	b.setStatus(Status{State: StateReady, Loaded: len(users), Rejected: len(res.Rejected)})
	metrics.IncBootstrap("ok")
	b.logger.Info("users bootstrapped", "loaded", len(users), "rejected", len(res.Rejected))
	return nil
}

func (b *Bootstrapper) result() error {
	if b.Status().State == StateFailed {
		return ErrUnavailable
	}
	return nil
}

func (b *Bootstrapper) setStatus(s Status) {
	s.UpdatedAt = b.clock.Now().UTC()
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}
