package rbac

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/rbacdash/internal/clock"
	"github.com/foxzi/rbacdash/internal/collection"
	"github.com/foxzi/rbacdash/internal/store"
)

var testEpoch = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func openTestService(t *testing.T) (*Service, *clock.Manual) {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "rbac.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c := clock.NewManual(testEpoch)
	svc, err := Open(context.Background(), Options{
		Store:  s,
		Clock:  c,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return svc, c
}

func roleNames(rows []Role) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func TestOpen_Seeds(t *testing.T) {
	svc, _ := openTestService(t)

	if svc.Users.Len() != 0 {
		t.Errorf("users seeded with %d rows, want 0", svc.Users.Len())
	}
	if got := roleNames(svc.Roles.All()); !reflect.DeepEqual(got, []string{"Admin", "User", "Editor"}) {
		t.Errorf("roles = %v", got)
	}

	perms := svc.Permissions.All()
	if len(perms) != 3 {
		t.Fatalf("permissions = %d rows, want 3", len(perms))
	}
	if perms[1].Name != "Write" || perms[1].Type != TypeAdvanced || perms[1].Description != "Can create and edit resources" {
		t.Errorf("Write permission = %+v", perms[1])
	}
}

func TestOpen_ReseedsInvalidStoredCollections(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		stored string
	}{
		{"null roles", RolesKey, `null`},
		{"permission without name", PermissionsKey, `[{"id":7}]`},
		{"permission with bad type", PermissionsKey, `[{"id":7,"name":"Read","description":"d","type":"Root"}]`},
		{"role with empty permission", RolesKey, `[{"id":4,"name":"Viewer","permissions":[""]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "rbac.db"))
			if err != nil {
				t.Fatalf("NewBoltStore() error = %v", err)
			}
			defer s.Close()

			if err := s.PutRaw(ctx, tt.key, []byte(tt.stored)); err != nil {
				t.Fatalf("PutRaw() error = %v", err)
			}

			svc, err := Open(ctx, Options{
				Store:  s,
				Clock:  clock.NewManual(testEpoch),
				Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}

			if got := roleNames(svc.Roles.All()); !reflect.DeepEqual(got, []string{"Admin", "User", "Editor"}) {
				t.Errorf("roles = %v, want seed", got)
			}
			if n := svc.Permissions.Len(); n != 3 {
				t.Errorf("permissions = %d rows, want 3", n)
			}
		})
	}
}

func TestRoleSortByPermissions(t *testing.T) {
	svc, _ := openTestService(t)
	if _, err := svc.Roles.Create(context.Background(), Role{Name: "Janitor", Permissions: []string{"Delete"}}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		dir  collection.Direction
		want []string
	}{
		{collection.Ascending, []string{"Janitor", "User", "Editor", "Admin"}},
		{collection.Descending, []string{"Admin", "Editor", "User", "Janitor"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.dir), func(t *testing.T) {
			rows, err := svc.Roles.View(collection.Query{Sort: collection.Sort{Key: "permissions", Direction: tt.dir}})
			if err != nil {
				t.Fatalf("View() error = %v", err)
			}
			if got := roleNames(rows); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("roles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoleSearchAndToggle(t *testing.T) {
	svc, _ := openTestService(t)
	ctx := context.Background()

	found, err := svc.Roles.View(collection.Query{Search: "delete"})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if got := roleNames(found); !reflect.DeepEqual(got, []string{"Admin"}) {
		t.Fatalf("search delete = %v, want [Admin]", got)
	}
	admin := found[0]

	draft, err := svc.Roles.Edit(admin.ID)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	draft.Value = draft.Value.TogglePermission("Delete")

	// Draft edits stay out of the committed role until commit
	if committed, _ := svc.Roles.Get(admin.ID); len(committed.Permissions) != 3 {
		t.Fatalf("committed permissions changed before commit: %v", committed.Permissions)
	}

	updated, err := svc.Roles.Commit(ctx, draft)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if !reflect.DeepEqual(updated.Permissions, []string{"Read", "Write"}) {
		t.Errorf("permissions = %v, want [Read Write]", updated.Permissions)
	}
	if !updated.CreatedAt.Equal(admin.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v", updated.CreatedAt)
	}
}

func TestRoleSearch_Write(t *testing.T) {
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "rbac.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	defer s.Close()

	// Only Admin and User, as in the two-role scenario
	roles := []Role{
		{ID: 1, Name: "Admin", Permissions: []string{"Read", "Write", "Delete"}},
		{ID: 2, Name: "User", Permissions: []string{"Read"}},
	}
	if err := s.Save(context.Background(), store.Entry{Key: RolesKey, Value: roles}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	svc, err := Open(context.Background(), Options{Store: s, Clock: clock.NewManual(testEpoch)})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	found, err := svc.Roles.View(collection.Query{Search: "write"})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if got := roleNames(found); !reflect.DeepEqual(got, []string{"Admin"}) {
		t.Errorf("search write = %v, want [Admin]", got)
	}
}

func TestTogglePermission(t *testing.T) {
	r := Role{Name: "Editor", Permissions: []string{"Read", "Write"}}

	removed := r.TogglePermission("Write")
	if !reflect.DeepEqual(removed.Permissions, []string{"Read"}) {
		t.Errorf("remove: %v", removed.Permissions)
	}
	added := r.TogglePermission("Delete")
	if !reflect.DeepEqual(added.Permissions, []string{"Read", "Write", "Delete"}) {
		t.Errorf("add: %v", added.Permissions)
	}
	if !reflect.DeepEqual(r.Permissions, []string{"Read", "Write"}) {
		t.Errorf("receiver modified: %v", r.Permissions)
	}
	if back := added.TogglePermission("Delete"); !reflect.DeepEqual(back.Permissions, r.Permissions) {
		t.Errorf("toggle twice = %v, want %v", back.Permissions, r.Permissions)
	}
	if !added.HasPermission("Delete") || r.HasPermission("Delete") {
		t.Error("HasPermission mismatch")
	}
}

func TestPermissionCreateThenDelete(t *testing.T) {
	svc, c := openTestService(t)
	ctx := context.Background()

	c.Advance(time.Second)
	p, err := svc.Permissions.Create(ctx, Permission{Name: "Export", Description: "Can export data", Type: TypeCustom})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !p.CreatedAt.Equal(testEpoch.Add(time.Second)) {
		t.Errorf("CreatedAt = %v", p.CreatedAt)
	}

	deleted, err := svc.Permissions.Delete(ctx, p.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v", deleted, err)
	}

	recent := svc.Permissions.Activity(2)
	if len(recent) != 2 {
		t.Fatalf("Activity(2) = %d entries", len(recent))
	}
	if recent[0].Action != "Deleted permission: Export" {
		t.Errorf("newest = %q", recent[0].Action)
	}
	if recent[1].Action != "Added new permission: Export" {
		t.Errorf("second = %q", recent[1].Action)
	}
}

func TestUserCreateStampsLastLogin(t *testing.T) {
	svc, c := openTestService(t)
	ctx := context.Background()

	c.Advance(time.Hour)
	u, err := svc.Users.Create(ctx, User{Name: "Ann", Email: "ann@example.com", Role: RoleAdmin, Status: StatusActive})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !u.LastLogin.Equal(testEpoch.Add(time.Hour)) {
		t.Errorf("LastLogin = %v", u.LastLogin)
	}

	// An edit without lastLogin keeps the stored value
	c.Advance(time.Hour)
	updated, err := svc.Users.Update(ctx, u.ID, User{Name: "Ann B", Email: "ann@example.com", Role: RoleManager, Status: StatusInactive})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.LastLogin.Equal(u.LastLogin) {
		t.Errorf("LastLogin changed on update: %v", updated.LastLogin)
	}
}

func TestUserFilters(t *testing.T) {
	svc, _ := openTestService(t)
	ctx := context.Background()

	for _, u := range []User{
		{Name: "Ann", Email: "ann@example.com", Role: RoleAdmin, Status: StatusActive},
		{Name: "Ben", Email: "ben@example.com", Role: RoleUser, Status: StatusActive},
		{Name: "Cat", Email: "cat@example.com", Role: RoleAdmin, Status: StatusInactive},
	} {
		if _, err := svc.Users.Create(ctx, u); err != nil {
			t.Fatalf("Create(%s) error = %v", u.Name, err)
		}
	}

	rows, err := svc.Users.View(collection.Query{Filters: map[string]string{"role": RoleAdmin, "status": StatusActive}})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Ann" {
		t.Errorf("filtered = %+v, want only Ann", rows)
	}

	rows, err = svc.Users.View(collection.Query{Search: "BEN@"})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Ben" {
		t.Errorf("search = %+v, want only Ben", rows)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		fields []string
	}{
		{"valid user", User{Name: "A", Email: "a@b.co", Role: RoleUser, Status: StatusActive}, nil},
		{"user missing all", User{}, []string{"name", "email", "role", "status"}},
		{"user bad email", User{Name: "A", Email: "nope", Role: RoleUser, Status: StatusActive}, []string{"email"}},
		{"user bad role", User{Name: "A", Email: "a@b.co", Role: "Root", Status: StatusActive}, []string{"role"}},
		{"valid role", Role{Name: "Ops", Permissions: []string{"Read"}}, nil},
		{"role without permissions", Role{Name: "Empty"}, nil},
		{"role missing name", Role{}, []string{"name"}},
		{"permission bad type", Permission{Name: "X", Description: "d", Type: "Weird"}, []string{"type"}},
		{"permission missing description", Permission{Name: "X", Type: TypeBasic}, []string{"description"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.value)
			if tt.fields == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if len(verr.Fields) != len(tt.fields) {
				t.Errorf("fields = %v, want %v", verr.Fields, tt.fields)
			}
			for _, f := range tt.fields {
				if _, ok := verr.Fields[f]; !ok {
					t.Errorf("missing field %q in %v", f, verr.Fields)
				}
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validate(Permission{Name: "X", Description: "d", Type: "Weird"})
	want := "validation failed: type must be one of Basic, Advanced, Custom"
	if err == nil || err.Error() != want {
		t.Errorf("Error() = %v, want %q", err, want)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	svc, _ := openTestService(t)

	_, err := svc.Permissions.Create(context.Background(), Permission{Name: "X"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create() error = %v, want *ValidationError", err)
	}
	if svc.Permissions.Len() != 3 {
		t.Error("invalid permission was stored")
	}
}

func TestExport(t *testing.T) {
	svc, _ := openTestService(t)
	ctx := context.Background()

	if _, err := svc.Permissions.Create(ctx, Permission{Name: "Audit", Description: "Can read, and export logs", Type: TypeCustom}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var buf bytes.Buffer
	name, err := svc.Export(ctx, Permissions, collection.Query{Search: "audit"}, &buf)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if name != "permissions_export_2026-10-15.csv" {
		t.Errorf("file name = %q", name)
	}
	want := "Permission Name,Description,Type,Created At\n" +
		"Audit,\"Can read, and export logs\",Custom,\"Oct 15, 2026\"\n"
	if buf.String() != want {
		t.Errorf("csv = %q, want %q", buf.String(), want)
	}
	if latest, _ := svc.Permissions.History().Latest(); latest.Action != "Exported permissions data to CSV" {
		t.Errorf("activity = %q", latest.Action)
	}
}

func TestExportRoles(t *testing.T) {
	svc, _ := openTestService(t)

	var buf bytes.Buffer
	if _, err := svc.Export(context.Background(), Roles, collection.Query{Search: "editor"}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Editor,Read; Write,") {
		t.Errorf("csv = %q", buf.String())
	}
}

func TestExportUnknown(t *testing.T) {
	svc, _ := openTestService(t)
	if _, err := svc.Export(context.Background(), "groups", collection.Query{}, io.Discard); err == nil {
		t.Error("Export(groups) should fail")
	}
	if _, err := svc.Activity("groups", 5); err == nil {
		t.Error("Activity(groups) should fail")
	}
}

func TestDashboard(t *testing.T) {
	svc, c := openTestService(t)
	ctx := context.Background()

	for _, u := range []User{
		{Name: "Ann", Email: "ann@example.com", Role: RoleAdmin, Status: StatusActive},
		{Name: "Ben", Email: "ben@example.com", Role: RoleUser, Status: StatusInactive},
	} {
		c.Advance(time.Second)
		if _, err := svc.Users.Create(ctx, u); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	c.Advance(time.Second)
	if _, err := svc.Roles.Delete(ctx, svc.Roles.All()[2].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	d := svc.Dashboard(2)
	if d.TotalUsers != 2 || d.ActiveUsers != 1 || d.TotalRoles != 2 || d.TotalPermissions != 3 {
		t.Errorf("totals = %+v", d)
	}
	if d.UsersByRole[RoleAdmin] != 1 || d.UsersByRole[RoleUser] != 1 {
		t.Errorf("UsersByRole = %v", d.UsersByRole)
	}
	if d.PermissionsByType[TypeAdvanced] != 2 || d.PermissionsByType[TypeBasic] != 1 {
		t.Errorf("PermissionsByType = %v", d.PermissionsByType)
	}

	if len(d.RecentActivity) != 2 {
		t.Fatalf("RecentActivity = %d items, want 2", len(d.RecentActivity))
	}
	if d.RecentActivity[0].Collection != Roles || d.RecentActivity[0].Action != "Deleted role: Editor" {
		t.Errorf("newest = %+v", d.RecentActivity[0])
	}
	if d.RecentActivity[1].Action != "Added new user: Ben" {
		t.Errorf("second = %+v", d.RecentActivity[1])
	}
}

func TestDanglingPermissions(t *testing.T) {
	svc, _ := openTestService(t)
	ctx := context.Background()

	var deleteID int64
	for _, p := range svc.Permissions.All() {
		if p.Name == "Delete" {
			deleteID = p.ID
		}
	}
	if _, err := svc.Permissions.Delete(ctx, deleteID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// Roles are left as they were
	got := svc.DanglingPermissions()
	if !reflect.DeepEqual(got, map[string][]string{"Admin": {"Delete"}}) {
		t.Errorf("DanglingPermissions() = %v", got)
	}
	if !reflect.DeepEqual(svc.PermissionCatalogue(), []string{"Read", "Write"}) {
		t.Errorf("PermissionCatalogue() = %v", svc.PermissionCatalogue())
	}
}
