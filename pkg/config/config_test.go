package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8001", cfg.Listen)
	assert.Equal(t, "admin", cfg.AdminUsername)
	assert.False(t, cfg.GuestEnabled)
	assert.Equal(t, 100, cfg.RateLimit)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchord.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
root: /srv/anchor
listen: ":9000"
secret: "0123456789abcdef"
guest_enabled: true
logging:
  level: debug
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/anchor", cfg.Root)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.True(t, cfg.GuestEnabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchord.yaml")
	require.NoError(t, os.WriteFile(path, []byte("secret: short\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchord.yaml")
	cfg := Default()
	cfg.Root = "/tmp/anchor-data"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Root, loaded.Root)
	assert.Equal(t, cfg.Listen, loaded.Listen)
}
