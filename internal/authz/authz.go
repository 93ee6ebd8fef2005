// Package authz implements role-based permission checks over a closed
// permission set. Roles and their grants are fixed at compile time.
package authz

import (
	"github.com/anchor-vcs/anchor/pkg/errclass"
)

// Permission names one allowed action.
type Permission string

// The closed permission set.
const (
	ReadRepo        Permission = "read:repo"
	WriteRepo       Permission = "write:repo"
	DeleteRepo      Permission = "delete:repo"
	CreateRepo      Permission = "create:repo"
	AdminRepo       Permission = "admin:repo"
	ReadProfile     Permission = "read:profile"
	WriteProfile    Permission = "write:profile"
	ManageKeys      Permission = "manage:keys"
	ExportKeys      Permission = "export:keys"
	AdminAll        Permission = "admin:*"
	CreateSnapshot  Permission = "create:snapshot"
	ReadSnapshot    Permission = "read:snapshot"
	RestoreSnapshot Permission = "restore:snapshot"
)

// Role is a named grant bundle.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: {
		ReadRepo: true, WriteRepo: true, DeleteRepo: true, CreateRepo: true,
		AdminRepo: true, ReadProfile: true, WriteProfile: true,
		ManageKeys: true, ExportKeys: true, AdminAll: true,
		CreateSnapshot: true, ReadSnapshot: true, RestoreSnapshot: true,
	},
	RoleUser: {
		ReadRepo: true, WriteRepo: true, CreateRepo: true,
		ReadProfile: true, WriteProfile: true, ManageKeys: true,
		CreateSnapshot: true, ReadSnapshot: true,
	},
	RoleGuest: {
		ReadRepo: true, ReadProfile: true,
	},
}

// Has reports whether a role grants a permission. admin:* satisfies every
// check.
func Has(role Role, perm Permission) bool {
	grants, ok := rolePermissions[role]
	if !ok {
		return false
	}
	return grants[AdminAll] || grants[perm]
}

// Check returns a Forbidden error when the role lacks the permission.
func Check(role Role, perm Permission) error {
	if !Has(role, perm) {
		return errclass.ErrForbidden.WithMessagef("role %s lacks %s", role, perm)
	}
	return nil
}

// Owns reports resource ownership. Only the admin owns resources; the
// check exists so per-resource ownership can arrive without touching call
// sites.
func Owns(role Role, resource string) bool {
	return role == RoleAdmin
}

// RoleFor maps a username to its role given the configured admin account
// name. The guest account is its own role; everyone else is a user.
func RoleFor(username, adminUsername string) Role {
	switch username {
	case adminUsername:
		return RoleAdmin
	case "guest":
		return RoleGuest
	default:
		return RoleUser
	}
}
