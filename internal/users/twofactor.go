package users

import (
	"os"
	"path/filepath"

	"github.com/pquerna/otp/totp"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
)

// TwoFactor loads a user's two-factor state. Absence means disabled.
func (m *Manager) TwoFactor(username string) (*model.TwoFactor, error) {
	if !m.Exists(username) {
		return nil, errclass.ErrNotFound.WithMessagef("user %s", username)
	}
	path := filepath.Join(m.userDir(username), "auth_2fa.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &model.TwoFactor{}, nil
	}
	var tf model.TwoFactor
	if err := m.readJSON(username, "auth_2fa.json", &tf); err != nil {
		return nil, err
	}
	return &tf, nil
}

// SetupTwoFactor generates a TOTP secret and stores it pending enablement.
// Returns the otpauth provisioning URL for the authenticator app.
func (m *Manager) SetupTwoFactor(username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tf, err := m.TwoFactor(username)
	if err != nil {
		return "", err
	}
	if tf.Enabled {
		return "", errclass.ErrConflict.WithMessage("two-factor already enabled")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "anchor",
		AccountName: username,
	})
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("generate totp secret: %v", err)
	}
	tf.Secret = key.Secret()
	if err := m.writeJSON(username, "auth_2fa.json", tf); err != nil {
		return "", err
	}
	return key.URL(), nil
}

// EnableTwoFactor flips two-factor on after the user proves possession of
// the secret with a valid code.
func (m *Manager) EnableTwoFactor(username, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tf, err := m.TwoFactor(username)
	if err != nil {
		return err
	}
	if tf.Secret == "" {
		return errclass.ErrInvalid.WithMessage("two-factor setup not started")
	}
	if !totp.Validate(code, tf.Secret) {
		return errclass.ErrUnauthenticated.WithMessage("invalid two-factor code")
	}
	tf.Enabled = true
	return m.writeJSON(username, "auth_2fa.json", tf)
}

// DisableTwoFactor clears two-factor state.
func (m *Manager) DisableTwoFactor(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Exists(username) {
		return errclass.ErrNotFound.WithMessagef("user %s", username)
	}
	err := os.Remove(filepath.Join(m.userDir(username), "auth_2fa.json"))
	if err != nil && !os.IsNotExist(err) {
		return errclass.ErrInternal.WithMessagef("remove two-factor state: %v", err)
	}
	return nil
}

// VerifyTwoFactor checks a TOTP code when two-factor is enabled. Disabled
// accounts pass vacuously.
func (m *Manager) VerifyTwoFactor(username, code string) error {
	tf, err := m.TwoFactor(username)
	if err != nil {
		return err
	}
	if !tf.Enabled {
		return nil
	}
	if !totp.Validate(code, tf.Secret) {
		return errclass.ErrUnauthenticated.WithMessage("invalid two-factor code")
	}
	return nil
}
