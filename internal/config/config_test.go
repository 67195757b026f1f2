package config

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnv, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Import.PersistConcurrency)
	assert.Equal(t, 1, cfg.Import.SchemaConcurrency)
	assert.Equal(t, 4, cfg.Import.DeadlockMaxAttempts)
	assert.Equal(t, DefaultSystemRoles, cfg.SystemRoles)
	assert.Equal(t, "appbuilder-t1", cfg.TenantDatabase("t1"))
	assert.Empty(t, cfg.ConfigFilePath())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "definition-manager.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "4000"
database:
  host: db.internal
  tenant_prefix: "tenant_"
import:
  schema_concurrency: 2
  lock_wait_timeout: 300
`), 0o600))

	t.Setenv(ConfigPathEnv, path)
	t.Setenv("PORT", "5000")
	t.Setenv("SYSTEM_ROLE_IDS", "r1, r2 ,")
	t.Setenv("IMPORT_FILE_CONCURRENCY", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Port, "environment wins over file")
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "3306", cfg.Database.Port, "defaults survive partial files")
	assert.Equal(t, 2, cfg.Import.SchemaConcurrency)
	assert.Equal(t, 9, cfg.Import.FileConcurrency)
	assert.Equal(t, []string{"r1", "r2"}, cfg.SystemRoles)
	assert.Equal(t, "tenant_abc", cfg.TenantDatabase("abc"))
	assert.Equal(t, float64(300), cfg.LockWaitTimeout().Seconds())
	assert.Equal(t, path, cfg.ConfigFilePath())
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnv, "")

	t.Run("not a number", func(t *testing.T) {
		t.Setenv("DEADLOCK_MAX_ATTEMPTS", "four")
		_, err := Load()
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("zero concurrency", func(t *testing.T) {
		t.Setenv("IMPORT_SCHEMA_CONCURRENCY", "0")
		_, err := Load()
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, filepath.Join(t.TempDir(), "nope.yml"))
		_, err := Load()
		assert.Error(t, err)
	})
}
