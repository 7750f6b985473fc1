package rbac

import "time"

// Seed ids are fixed so reseeding a corrupt store yields the same records
const (
	seedRoleAdmin int64 = iota + 1
	seedRoleUser
	seedRoleEditor
)

const (
	seedPermRead int64 = iota + 1
	seedPermWrite
	seedPermDelete
)

// SeedRoles returns the default roles
func SeedRoles(now time.Time) []Role {
	now = now.UTC()
	return []Role{
		{ID: seedRoleAdmin, Name: "Admin", Permissions: []string{"Read", "Write", "Delete"}, CreatedAt: now},
		{ID: seedRoleUser, Name: "User", Permissions: []string{"Read"}, CreatedAt: now},
		{ID: seedRoleEditor, Name: "Editor", Permissions: []string{"Read", "Write"}, CreatedAt: now},
	}
}

// SeedPermissions returns the default permissions
func SeedPermissions(now time.Time) []Permission {
	now = now.UTC()
	return []Permission{
		{ID: seedPermRead, Name: "Read", Description: "Can view resources", Type: TypeBasic, CreatedAt: now},
		{ID: seedPermWrite, Name: "Write", Description: "Can create and edit resources", Type: TypeAdvanced, CreatedAt: now},
		{ID: seedPermDelete, Name: "Delete", Description: "Can delete resources", Type: TypeAdvanced, CreatedAt: now},
	}
}
