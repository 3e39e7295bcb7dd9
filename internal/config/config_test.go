package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5001", cfg.Remote.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.GuardInterval())
	assert.Equal(t, time.Second, cfg.SettleDelay())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.False(t, cfg.Sync.MirrorStat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadClientEnvOverrides(t *testing.T) {
	t.Setenv("NEXTCHAT_REMOTE_BASE_URL", " https://chat.example.com/ ")
	t.Setenv("NEXTCHAT_SYNC_GUARD_INTERVAL_MS", "500")
	t.Setenv("NEXTCHAT_SYNC_SETTLE_DELAY_MS", "-1")
	t.Setenv("NEXTCHAT_SYNC_MIRROR_STAT", "true")

	cfg, err := LoadClient("")
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.GuardInterval())
	assert.Equal(t, time.Second, cfg.SettleDelay(), "non-positive values fall back")
	assert.True(t, cfg.Sync.MirrorStat)
}

func TestLoadServerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	body := `port: "8080"
database:
  driver: Postgres
  dsn: postgres://chat@localhost/chat
auth:
  jwt_secret: s3cret
encryption_key: k
cors:
  allow_origins: ["https://a.example", " "]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("NEXTCHAT_ALLOW_REGISTER", "false")

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL())
	assert.False(t, cfg.AllowRegister)
	assert.Equal(t, []string{"https://a.example"}, cfg.CORS.AllowOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestServerValidate(t *testing.T) {
	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	assert.ErrorContains(t, cfg.Validate(), "jwt_secret")

	cfg.Auth.JWTSecret = "x"
	cfg.EncryptionKey = "y"
	cfg.Database.Driver = "oracle"
	assert.ErrorContains(t, cfg.Validate(), "not supported")
}

func TestMissingExplicitFileFails(t *testing.T) {
	_, err := LoadServer(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
