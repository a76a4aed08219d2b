package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("INSTRUMENTS_FILE", "")
	t.Setenv("SYNC_CONCURRENCY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendCSV, cfg.Store.Backend)
	assert.Equal(t, defaultStorePath, cfg.Store.Path)
	assert.Equal(t, 10, cfg.Sync.Concurrency)
	assert.Equal(t, 365, cfg.Sync.WindowDays)
	assert.Equal(t, 10, cfg.Sync.LookbackYears)
	assert.Equal(t, "E", cfg.Sync.ReservedPrefix)
	assert.Equal(t, 60*time.Second, cfg.Sync.TaskTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Empty(t, cfg.Sync.Allow)
}

func TestLoadOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SYNC_CONCURRENCY", "3")
	t.Setenv("SOURCE_TIMEOUT", "5s")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STORE_BACKEND", "POSTGRES")
	t.Setenv("DATABASE_DSN", "postgres://localhost/history")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Sync.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.Unsetenv("SYNC_WINDOW_DAYS"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SYNC_WINDOW_DAYS=30\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SYNC_WINDOW_DAYS") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Sync.WindowDays)
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdirTemp(t)

	t.Run("not a number", func(t *testing.T) {
		t.Setenv("SYNC_CONCURRENCY", "many")
		_, err := Load()
		require.ErrorContains(t, err, "SYNC_CONCURRENCY")
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "postgres")
		t.Setenv("DATABASE_DSN", "")
		_, err := Load()
		require.ErrorContains(t, err, "DATABASE_DSN")
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "sqlite")
		_, err := Load()
		require.ErrorContains(t, err, "STORE_BACKEND")
	})

	t.Run("zero window", func(t *testing.T) {
		t.Setenv("SYNC_WINDOW_DAYS", "0")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestLoadAllowlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.yaml")
	t.Setenv("EXTRA_CODE", "tel")
	require.NoError(t, os.WriteFile(path, []byte("instruments:\n  - ALK\n  - kmb\n  - ALK\n  - ${EXTRA_CODE}\n  - \"\"\n"), 0o600))

	codes, err := LoadAllowlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALK", "KMB", "TEL"}, codes)
}

func TestLoadAllowlistErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadAllowlist(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("instruments: []\n"), 0o600))
	_, err = LoadAllowlist(empty)
	require.ErrorContains(t, err, "no codes")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("instruments: [ALK\n"), 0o600))
	_, err = LoadAllowlist(broken)
	require.ErrorContains(t, err, "parse")
}

func TestLoadWithInstrumentsFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "codes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instruments: [ALK, KMB]\n"), 0o600))
	t.Setenv("INSTRUMENTS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ALK", "KMB"}, cfg.Sync.Allow)
}
