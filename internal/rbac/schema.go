package rbac

import (
	"slices"
	"strings"
	"time"

	"github.com/foxzi/rbacdash/internal/collection"
)

// Storage keys
const (
	UsersKey       = "dashboard_users"
	RolesKey       = "dashboard_roles"
	PermissionsKey = "dashboard_permissions"

	UsersActivityKey       = "activity_logs"
	RolesActivityKey       = "role_activity_logs"
	PermissionsActivityKey = "permission_activity_logs"
)

// UserSchema describes the users collection
func UserSchema() *collection.Schema[User] {
	return &collection.Schema[User]{
		Kind:       "user",
		Plural:     "users",
		StorageKey: UsersKey,
		AuditKey:   UsersActivityKey,

		ID:     func(u User) int64 { return u.ID },
		WithID: func(u User, id int64) User { u.ID = id; return u },
		Name:   func(u User) string { return u.Name },

		Created: func(u User, now time.Time) User {
			u.LastLogin = now.UTC()
			return u
		},
		Merge: func(stored, draft User) User {
			if draft.LastLogin.IsZero() {
				draft.LastLogin = stored.LastLogin
			}
			return draft
		},

		Searchable: func(u User) []string { return []string{u.Name, u.Email} },
		Filters: map[string]func(User) string{
			"role":   func(u User) string { return u.Role },
			"status": func(u User) string { return u.Status },
		},
		Sorts: map[string]func(a, b User) int{
			"name":      func(a, b User) int { return strings.Compare(a.Name, b.Name) },
			"email":     func(a, b User) int { return strings.Compare(a.Email, b.Email) },
			"role":      func(a, b User) int { return strings.Compare(a.Role, b.Role) },
			"status":    func(a, b User) int { return strings.Compare(a.Status, b.Status) },
			"lastLogin": func(a, b User) int { return a.LastLogin.Compare(b.LastLogin) },
		},

		Validate: func(u User) error { return Validate(u) },
	}
}

// RoleSchema describes the roles collection
func RoleSchema() *collection.Schema[Role] {
	return &collection.Schema[Role]{
		Kind:       "role",
		Plural:     "roles",
		StorageKey: RolesKey,
		AuditKey:   RolesActivityKey,

		ID:     func(r Role) int64 { return r.ID },
		WithID: func(r Role, id int64) Role { r.ID = id; return r },
		Name:   func(r Role) string { return r.Name },

		Created: func(r Role, now time.Time) Role {
			r.CreatedAt = now.UTC()
			if r.Permissions == nil {
				r.Permissions = []string{}
			}
			return r
		},
		Merge: func(stored, draft Role) Role {
			if draft.CreatedAt.IsZero() {
				draft.CreatedAt = stored.CreatedAt
			}
			if draft.Permissions == nil {
				draft.Permissions = []string{}
			}
			return draft
		},
		Clone: func(r Role) Role {
			r.Permissions = slices.Clone(r.Permissions)
			return r
		},

		Searchable: func(r Role) []string {
			return append([]string{r.Name}, r.Permissions...)
		},
		Sorts: map[string]func(a, b Role) int{
			"name":        func(a, b Role) int { return strings.Compare(a.Name, b.Name) },
			"permissions": comparePermissions,
			"createdAt":   func(a, b Role) int { return a.CreatedAt.Compare(b.CreatedAt) },
		},

		Validate: func(r Role) error { return Validate(r) },
		Seed:     SeedRoles,
	}
}

// comparePermissions orders roles by their permission lists as joined text
func comparePermissions(a, b Role) int {
	return strings.Compare(strings.Join(a.Permissions, ","), strings.Join(b.Permissions, ","))
}

// PermissionSchema describes the permissions collection
func PermissionSchema() *collection.Schema[Permission] {
	return &collection.Schema[Permission]{
		Kind:       "permission",
		Plural:     "permissions",
		StorageKey: PermissionsKey,
		AuditKey:   PermissionsActivityKey,

		ID:     func(p Permission) int64 { return p.ID },
		WithID: func(p Permission, id int64) Permission { p.ID = id; return p },
		Name:   func(p Permission) string { return p.Name },

		Created: func(p Permission, now time.Time) Permission {
			p.CreatedAt = now.UTC()
			return p
		},
		Merge: func(stored, draft Permission) Permission {
			if draft.CreatedAt.IsZero() {
				draft.CreatedAt = stored.CreatedAt
			}
			return draft
		},

		Searchable: func(p Permission) []string {
			return []string{p.Name, p.Description, p.Type}
		},
		Filters: map[string]func(Permission) string{
			"type": func(p Permission) string { return p.Type },
		},
		Sorts: map[string]func(a, b Permission) int{
			"name":        func(a, b Permission) int { return strings.Compare(a.Name, b.Name) },
			"description": func(a, b Permission) int { return strings.Compare(a.Description, b.Description) },
			"type":        func(a, b Permission) int { return strings.Compare(a.Type, b.Type) },
			"createdAt":   func(a, b Permission) int { return a.CreatedAt.Compare(b.CreatedAt) },
		},

		Validate: func(p Permission) error { return Validate(p) },
		Seed:     SeedPermissions,
	}
}
