package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, 256, cfg.Chat.GroupMaxParticipants)
	assert.Equal(t, 1000, cfg.Chat.ChannelMaxParticipants)
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout())
	assert.Equal(t, 30*time.Second, cfg.RetryPollInterval())
	assert.Equal(t, time.Minute, cfg.ScheduledPollInterval())
	assert.Equal(t, time.Hour, cfg.TokenTTL())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  env: production
database:
  driver: sqlite
  url: "file::memory:"
chat:
  group_max_participants: 50
notifications:
  batch_size: 10
`), 0o600))
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 50, cfg.Chat.GroupMaxParticipants)
	assert.Equal(t, 1000, cfg.Chat.ChannelMaxParticipants)
	assert.Equal(t, 10, cfg.Notifications.BatchSize)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
