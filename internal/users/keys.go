package users

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
)

// ListKeys returns a user's registered SSH public keys.
func (m *Manager) ListKeys(username string) ([]model.SSHKey, error) {
	if !m.Exists(username) {
		return nil, errclass.ErrNotFound.WithMessagef("user %s", username)
	}
	path := filepath.Join(m.userDir(username), "keys.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []model.SSHKey{}, nil
	}
	var keys []model.SSHKey
	if err := m.readJSON(username, "keys.json", &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// AddKey registers an SSH public key. The key must parse in authorized_keys
// format; registering the same key material twice is a conflict.
func (m *Manager) AddKey(username, title, publicKey string) (*model.SSHKey, error) {
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey)); err != nil {
		return nil, errclass.ErrInvalid.WithMessagef("parse public key: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.ListKeys(username)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.Key == publicKey {
			return nil, errclass.ErrConflict.WithMessage("key already registered")
		}
	}
	sum := sha256.Sum256([]byte(publicKey))
	key := model.SSHKey{
		ID:        hex.EncodeToString(sum[:])[:8],
		Title:     title,
		Key:       publicKey,
		CreatedAt: model.NowTimestamp(),
	}
	keys = append(keys, key)
	if err := m.writeJSON(username, "keys.json", keys); err != nil {
		return nil, err
	}
	return &key, nil
}

// DeleteKey removes a key by id.
func (m *Manager) DeleteKey(username, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.ListKeys(username)
	if err != nil {
		return err
	}
	kept := keys[:0]
	found := false
	for _, k := range keys {
		if k.ID == keyID {
			found = true
			continue
		}
		kept = append(kept, k)
	}
	if !found {
		return errclass.ErrNotFound.WithMessagef("key %s", keyID)
	}
	return m.writeJSON(username, "keys.json", kept)
}
