package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anchor-vcs/anchor/pkg/errclass"
)

func TestAdminSatisfiesEverything(t *testing.T) {
	for _, perm := range []Permission{
		ReadRepo, WriteRepo, DeleteRepo, CreateRepo, AdminRepo,
		ReadProfile, WriteProfile, ManageKeys, ExportKeys, AdminAll,
		CreateSnapshot, ReadSnapshot, RestoreSnapshot,
	} {
		assert.True(t, Has(RoleAdmin, perm), "admin should hold %s", perm)
	}
}

func TestUserGrants(t *testing.T) {
	granted := []Permission{
		ReadRepo, WriteRepo, CreateRepo, ReadProfile, WriteProfile,
		ManageKeys, CreateSnapshot, ReadSnapshot,
	}
	for _, perm := range granted {
		assert.True(t, Has(RoleUser, perm), "user should hold %s", perm)
	}
	denied := []Permission{DeleteRepo, AdminRepo, ExportKeys, AdminAll, RestoreSnapshot}
	for _, perm := range denied {
		assert.False(t, Has(RoleUser, perm), "user should not hold %s", perm)
	}
}

func TestGuestGrants(t *testing.T) {
	assert.True(t, Has(RoleGuest, ReadRepo))
	assert.True(t, Has(RoleGuest, ReadProfile))
	assert.False(t, Has(RoleGuest, WriteRepo))
	assert.False(t, Has(RoleGuest, CreateSnapshot))
	assert.False(t, Has(RoleGuest, ManageKeys))
}

func TestUnknownRole(t *testing.T) {
	assert.False(t, Has(Role("intruder"), ReadRepo))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(RoleUser, WriteRepo))

	err := Check(RoleGuest, WriteRepo)
	assert.ErrorIs(t, err, errclass.ErrForbidden)
}

func TestOwnership(t *testing.T) {
	assert.True(t, Owns(RoleAdmin, "anything"))
	assert.False(t, Owns(RoleUser, "anything"))
	assert.False(t, Owns(RoleGuest, "anything"))
}

func TestRoleFor(t *testing.T) {
	assert.Equal(t, RoleAdmin, RoleFor("root", "root"))
	assert.Equal(t, RoleGuest, RoleFor("guest", "root"))
	assert.Equal(t, RoleUser, RoleFor("alice", "root"))
}
