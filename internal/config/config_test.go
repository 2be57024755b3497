package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBattleSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
battle:
  question_count: 5
  fallback_wait: 3s
  bot_accuracy: 0.9
relay:
  url: ws://relay:8080/ws
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Battle.QuestionCount)
	assert.Equal(t, 0.9, cfg.Battle.BotAccuracy)
	assert.Equal(t, 3*time.Second, Duration(cfg.Battle.FallbackWait, time.Minute))
	assert.Equal(t, "ws://relay:8080/ws", cfg.Relay.URL)
}

func TestLoadOrDefaultToleratesMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("soon", time.Second))
	assert.Equal(t, 2500*time.Millisecond, Duration("2500ms", time.Second))
}

func TestApplyEnvOverridesConnections(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RELAY_URL", "")

	var cfg Config
	cfg.Postgres.URL = "postgres://file/db"
	cfg.Relay.URL = "ws://file/ws"
	cfg.ApplyEnv()

	assert.Equal(t, "postgres://env/db", cfg.Postgres.URL)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "ws://file/ws", cfg.Relay.URL)
}
