package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithBoltDriver(t *testing.T) {
	t.Setenv("CARIFY_STORAGE__DRIVER", "bolt")
	t.Setenv("CARIFY_JWT__SECRET_KEY", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "carify-identity.db", cfg.Bolt.Path)
	assert.Equal(t, "admin@carify.com", cfg.Admin.Email)
	assert.Equal(t, time.Hour, cfg.Registration.FlowTTL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("CARIFY_JWT__SECRET_KEY", "test-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: "9999"
storage:
  driver: bolt
bolt:
  path: /tmp/test.db
admin:
  email: root@carify.example
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Bolt.Path)
	assert.Equal(t, "root@carify.example", cfg.Admin.Email)
	// Untouched values keep their defaults.
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("CARIFY_JWT__SECRET_KEY", "test-secret")
	t.Setenv("CARIFY_STORAGE__DRIVER", "bolt")
	t.Setenv("CARIFY_SERVER__PORT", "7777")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Server.Port)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("CARIFY_STORAGE__DRIVER", "bolt")

	_, err := Load("")
	assert.ErrorContains(t, err, "jwt.secret_key")
}

func TestLoad_RequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("CARIFY_JWT__SECRET_KEY", "test-secret")

	_, err := Load("")
	assert.ErrorContains(t, err, "database.url")
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("CARIFY_JWT__SECRET_KEY", "test-secret")
	t.Setenv("CARIFY_STORAGE__DRIVER", "redis")

	_, err := Load("")
	assert.ErrorContains(t, err, "unknown storage driver")
}
