// Package rbac defines the user, role and permission collections managed by
// the dashboard and the service that bundles them.
package rbac

import (
	"slices"
	"time"
)

// User roles
const (
	RoleAdmin   = "Admin"
	RoleUser    = "User"
	RoleManager = "Manager"
)

// User statuses
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// Permission types
const (
	TypeBasic    = "Basic"
	TypeAdvanced = "Advanced"
	TypeCustom   = "Custom"
)

// UserRoles lists the roles a user may hold
var UserRoles = []string{RoleAdmin, RoleUser, RoleManager}

// UserStatuses lists the statuses a user may have
var UserStatuses = []string{StatusActive, StatusInactive}

// PermissionTypes lists the permission types
var PermissionTypes = []string{TypeBasic, TypeAdvanced, TypeCustom}

// User is a dashboard account
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	Role      string    `json:"role" validate:"required,oneof=Admin User Manager"`
	Status    string    `json:"status" validate:"required,oneof=Active Inactive"`
	LastLogin time.Time `json:"lastLogin"`
}

// Role is a named set of permission names. Names are not checked against
// the permission collection.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Permissions []string  `json:"permissions" validate:"dive,required"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasPermission reports whether the role grants name
func (r Role) HasPermission(name string) bool {
	return slices.Contains(r.Permissions, name)
}

// TogglePermission returns a copy of r with name removed when present and
// appended otherwise. The receiver is not modified.
func (r Role) TogglePermission(name string) Role {
	out := r
	if i := slices.Index(r.Permissions, name); i >= 0 {
		out.Permissions = slices.Delete(slices.Clone(r.Permissions), i, i+1)
		return out
	}
	out.Permissions = append(slices.Clone(r.Permissions), name)
	return out
}

// Permission is a named capability
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Type        string    `json:"type" validate:"required,oneof=Basic Advanced Custom"`
	CreatedAt   time.Time `json:"createdAt"`
}
