package rbac

import (
	"strings"

	"github.com/foxzi/rbacdash/internal/export"
)

// UserColumns are the exported user fields
var UserColumns = []export.Column[User]{
	{Header: "Name", Value: func(u User) string { return u.Name }},
	{Header: "Email", Value: func(u User) string { return u.Email }},
	{Header: "Role", Value: func(u User) string { return u.Role }},
	{Header: "Status", Value: func(u User) string { return u.Status }},
	{Header: "Last Login", Value: func(u User) string { return export.FormatDate(u.LastLogin) }},
}

// RoleColumns are the exported role fields
var RoleColumns = []export.Column[Role]{
	{Header: "Role Name", Value: func(r Role) string { return r.Name }},
	{Header: "Permissions", Value: func(r Role) string { return strings.Join(r.Permissions, "; ") }},
	{Header: "Created At", Value: func(r Role) string { return export.FormatDate(r.CreatedAt) }},
}

// PermissionColumns are the exported permission fields
var PermissionColumns = []export.Column[Permission]{
	{Header: "Permission Name", Value: func(p Permission) string { return p.Name }},
	{Header: "Description", Value: func(p Permission) string { return p.Description }},
	{Header: "Type", Value: func(p Permission) string { return p.Type }},
	{Header: "Created At", Value: func(p Permission) string { return export.FormatDate(p.CreatedAt) }},
}
