// Package users manages accounts on disk: password hashes, profiles, SSH
// keys, and two-factor state, each a file under users/<name>/.
package users

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/fsutil"
	"github.com/anchor-vcs/anchor/pkg/model"
	"github.com/anchor-vcs/anchor/pkg/pathutil"
)

// Manager stores accounts under <root>/users.
type Manager struct {
	root string
	mu   sync.Mutex
}

// NewManager creates a user manager over the data root.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

func (m *Manager) userDir(username string) string {
	return filepath.Join(m.root, "users", username)
}

// Exists reports whether an account directory is present.
func (m *Manager) Exists(username string) bool {
	_, err := os.Stat(m.userDir(username))
	return err == nil
}

// Create provisions an account with a bcrypt password hash and an empty
// profile. Duplicate usernames are a conflict.
func (m *Manager) Create(username, password string) error {
	if err := pathutil.ValidateName(username); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.userDir(username)
	if _, err := os.Stat(dir); err == nil {
		return errclass.ErrConflict.WithMessagef("user %s already exists", username)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errclass.ErrInternal.WithMessagef("create user dir: %v", err)
	}
	if err := m.writePasswordHash(username, password); err != nil {
		return err
	}
	profile := &model.Profile{Username: username, CreatedAt: model.NowTimestamp()}
	return m.writeJSON(username, "profile.json", profile)
}

// VerifyPassword checks a login attempt. Unknown users and wrong passwords
// fail identically.
func (m *Manager) VerifyPassword(username, password string) error {
	hash, err := os.ReadFile(filepath.Join(m.userDir(username), "password.hash"))
	if err != nil {
		return errclass.ErrUnauthenticated.WithMessage("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return errclass.ErrUnauthenticated.WithMessage("invalid credentials")
	}
	return nil
}

// SetPassword replaces the stored password hash.
func (m *Manager) SetPassword(username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Exists(username) {
		return errclass.ErrNotFound.WithMessagef("user %s", username)
	}
	return m.writePasswordHash(username, password)
}

func (m *Manager) writePasswordHash(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errclass.ErrInternal.WithMessagef("hash password: %v", err)
	}
	path := filepath.Join(m.userDir(username), "password.hash")
	if err := fsutil.AtomicWrite(path, hash, 0o600); err != nil {
		return errclass.ErrInternal.WithMessagef("write password hash: %v", err)
	}
	return nil
}

// Rename moves an account directory to a new username.
func (m *Manager) Rename(oldName, newName string) error {
	if err := pathutil.ValidateName(newName); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Exists(oldName) {
		return errclass.ErrNotFound.WithMessagef("user %s", oldName)
	}
	if m.Exists(newName) {
		return errclass.ErrConflict.WithMessagef("user %s already exists", newName)
	}
	if err := os.Rename(m.userDir(oldName), m.userDir(newName)); err != nil {
		return errclass.ErrInternal.WithMessagef("rename user: %v", err)
	}
	profile, err := m.Profile(newName)
	if err != nil {
		return err
	}
	profile.Username = newName
	return m.writeJSON(newName, "profile.json", profile)
}

// Profile loads a user's profile.
func (m *Manager) Profile(username string) (*model.Profile, error) {
	var profile model.Profile
	if err := m.readJSON(username, "profile.json", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile persists profile fields. The username field follows the
// account and cannot be edited here.
func (m *Manager) UpdateProfile(username string, profile *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Exists(username) {
		return errclass.ErrNotFound.WithMessagef("user %s", username)
	}
	profile.Username = username
	return m.writeJSON(username, "profile.json", profile)
}

func (m *Manager) readJSON(username, file string, v any) error {
	data, err := os.ReadFile(filepath.Join(m.userDir(username), file))
	if err != nil {
		if os.IsNotExist(err) {
			return errclass.ErrNotFound.WithMessagef("user %s", username)
		}
		return errclass.ErrInternal.WithMessagef("read %s: %v", file, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errclass.ErrInternal.WithMessagef("parse %s: %v", file, err)
	}
	return nil
}

func (m *Manager) writeJSON(username, file string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errclass.ErrInternal.WithMessagef("marshal %s: %v", file, err)
	}
	path := filepath.Join(m.userDir(username), file)
	if err := fsutil.AtomicWrite(path, data, 0o600); err != nil {
		return errclass.ErrInternal.WithMessagef("write %s: %v", file, err)
	}
	return nil
}
