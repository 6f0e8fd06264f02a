package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ALMANAC_LISTEN", "ALMANAC_LOG_LEVEL", "ALMANAC_DEFAULT_COUNTRY",
		"ALMANAC_TEMPLATES_PATH", "ALMANAC_TEMPLATES_URL", "ALMANAC_TEMPLATES_DB",
		"ALMANAC_CACHE_DIR", "ALMANAC_REFRESH", "ALMANAC_AUTH_USERNAME", "ALMANAC_AUTH_PASSWORD_HASH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_country: tt
log_level: LOUD
templates:
  path: ./events.yaml
basic_auth:
  username: ""
  password_hash: ""
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "TT", cfg.DefaultCountry)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, "./events.yaml", cfg.Templates.Path)
	assert.Empty(t, cfg.RefreshCron)
	assert.Nil(t, cfg.BasicAuth)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 0.0.0.0:9000\ndefault_country: JM\n"), 0o600))

	t.Setenv("ALMANAC_LISTEN", ":8181")
	t.Setenv("ALMANAC_DEFAULT_COUNTRY", "bb")
	t.Setenv("ALMANAC_TEMPLATES_URL", "https://example.org/events.yaml")
	t.Setenv("ALMANAC_AUTH_USERNAME", "admin")
	t.Setenv("ALMANAC_AUTH_PASSWORD_HASH", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8181", cfg.Listen)
	assert.Equal(t, "BB", cfg.DefaultCountry)
	assert.Equal(t, "https://example.org/events.yaml", cfg.Templates.URL)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("ALMANAC_CACHE_DIR=/tmp/almanac-cache\n"), 0o600))

	// godotenv does not override variables that are set, even when empty.
	require.NoError(t, os.Unsetenv("ALMANAC_CACHE_DIR"))
	t.Cleanup(func() { os.Unsetenv("ALMANAC_CACHE_DIR") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envPath))

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "/tmp/almanac-cache", cfg.CacheDir)
}

func TestSave_RejectsBadInput(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}
