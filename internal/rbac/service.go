package rbac

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/foxzi/rbacdash/internal/audit"
	"github.com/foxzi/rbacdash/internal/clock"
	"github.com/foxzi/rbacdash/internal/collection"
	"github.com/foxzi/rbacdash/internal/export"
	"github.com/foxzi/rbacdash/internal/metrics"
	"github.com/foxzi/rbacdash/internal/store"
)

// Collection names
const (
	Users       = "users"
	Roles       = "roles"
	Permissions = "permissions"
)

// Entities lists the managed collections in display order
var Entities = []string{Users, Roles, Permissions}

// Service owns the three managed collections. They share one store and
// one id source but never modify each other.
type Service struct {
	Users       *collection.Manager[User]
	Roles       *collection.Manager[Role]
	Permissions *collection.Manager[Permission]

	clock  clock.Clock
	logger *slog.Logger
}

// Options configures a Service
type Options struct {
	Store  store.Store
	Clock  clock.Clock
	Logger *slog.Logger
}

// Open loads (or seeds) every collection from opts.Store
func Open(ctx context.Context, opts Options) (*Service, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	copts := collection.Options{
		Store:  opts.Store,
		Clock:  opts.Clock,
		IDs:    clock.NewIDSource(opts.Clock),
		Logger: opts.Logger,
	}

	users, err := collection.Open(ctx, UserSchema(), copts)
	if err != nil {
		return nil, fmt.Errorf("failed to open users: %w", err)
	}
	roles, err := collection.Open(ctx, RoleSchema(), copts)
	if err != nil {
		return nil, fmt.Errorf("failed to open roles: %w", err)
	}
	permissions, err := collection.Open(ctx, PermissionSchema(), copts)
	if err != nil {
		return nil, fmt.Errorf("failed to open permissions: %w", err)
	}

	return &Service{
		Users:       users,
		Roles:       roles,
		Permissions: permissions,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}, nil
}

// Activity returns the n newest activity entries of entity
func (s *Service) Activity(entity string, n int) (audit.Log, error) {
	switch entity {
	case Users:
		return s.Users.Activity(n), nil
	case Roles:
		return s.Roles.Activity(n), nil
	case Permissions:
		return s.Permissions.Activity(n), nil
	}
	return nil, fmt.Errorf("unknown collection %q", entity)
}

// Export writes the projection of entity selected by q as CSV to w and
// records the export. It returns the suggested file name.
func (s *Service) Export(ctx context.Context, entity string, q collection.Query, w io.Writer) (string, error) {
	switch entity {
	case Users:
		return exportCSV(ctx, s, s.Users, UserColumns, q, w)
	case Roles:
		return exportCSV(ctx, s, s.Roles, RoleColumns, q, w)
	case Permissions:
		return exportCSV(ctx, s, s.Permissions, PermissionColumns, q, w)
	}
	return "", fmt.Errorf("unknown collection %q", entity)
}

func exportCSV[T any](ctx context.Context, s *Service, m *collection.Manager[T], columns []export.Column[T], q collection.Query, w io.Writer) (string, error) {
	rows, err := m.View(q)
	if err != nil {
		return "", err
	}

	plural := m.Schema().Plural
	if err := export.Write(w, columns, rows); err != nil {
		return "", fmt.Errorf("failed to export %s: %w", plural, err)
	}

	if _, err := m.Record(ctx, fmt.Sprintf("Exported %s data to CSV", plural)); err != nil {
		return "", err
	}

	metrics.IncExports(plural)
	s.logger.Info("collection exported", "collection", plural, "rows", len(rows))
	return export.FileName(plural, s.clock.Now()), nil
}

// ActivityItem is an activity entry tagged with its collection
type ActivityItem struct {
	Collection string `json:"collection"`
	audit.Entry
}

// Dashboard summarises the current collections
type Dashboard struct {
	TotalUsers        int            `json:"totalUsers"`
	ActiveUsers       int            `json:"activeUsers"`
	TotalRoles        int            `json:"totalRoles"`
	TotalPermissions  int            `json:"totalPermissions"`
	UsersByRole       map[string]int `json:"usersByRole"`
	UsersByStatus     map[string]int `json:"usersByStatus"`
	PermissionsByType map[string]int `json:"permissionsByType"`
	RecentActivity    []ActivityItem `json:"recentActivity"`
}

// Dashboard computes the summary shown on the landing page. recent limits
// the merged activity feed.
func (s *Service) Dashboard(recent int) Dashboard {
	users := s.Users.All()
	permissions := s.Permissions.All()

	d := Dashboard{
		TotalUsers:        len(users),
		TotalRoles:        s.Roles.Len(),
		TotalPermissions:  len(permissions),
		UsersByRole:       make(map[string]int),
		UsersByStatus:     make(map[string]int),
		PermissionsByType: make(map[string]int),
	}

	for _, u := range users {
		d.UsersByRole[u.Role]++
		d.UsersByStatus[u.Status]++
		if u.Status == StatusActive {
			d.ActiveUsers++
		}
	}
	for _, p := range permissions {
		d.PermissionsByType[p.Type]++
	}

	d.RecentActivity = s.RecentActivity(recent)
	return d
}

// RecentActivity merges the logs of all collections, newest first
func (s *Service) RecentActivity(n int) []ActivityItem {
	if n <= 0 {
		n = audit.DefaultRecent
	}

	var items []ActivityItem
	for _, src := range []struct {
		name string
		log  audit.Log
	}{
		{Users, s.Users.Activity(n)},
		{Roles, s.Roles.Activity(n)},
		{Permissions, s.Permissions.Activity(n)},
	} {
		for _, e := range src.log {
			items = append(items, ActivityItem{Collection: src.name, Entry: e})
		}
	}

	slices.SortStableFunc(items, func(a, b ActivityItem) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if len(items) > n {
		items = items[:n]
	}
	if items == nil {
		items = []ActivityItem{}
	}
	return items
}

// DanglingPermissions maps role names to the permission names they
// reference that no longer exist. Nothing is repaired.
func (s *Service) DanglingPermissions() map[string][]string {
	known := make(map[string]bool)
	for _, p := range s.Permissions.All() {
		known[p.Name] = true
	}

	out := make(map[string][]string)
	for _, r := range s.Roles.All() {
		for _, name := range r.Permissions {
			if !known[name] {
				out[r.Name] = append(out[r.Name], name)
			}
		}
	}
	return out
}

// PermissionCatalogue returns the names a role may be granted
func (s *Service) PermissionCatalogue() []string {
	perms := s.Permissions.All()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}
