package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every REPOSCAN_ env var that Load() reads.
var allConfigKeys = []string{
	"REPOSCAN_LISTEN_ADDR",
	"REPOSCAN_DB_URI",
	"REPOSCAN_SECRET_KEY",
	"REPOSCAN_HOOK_URL",
	"REPOSCAN_HOOK_SECRET",
	"REPOSCAN_HOOK_EVENTS",
	"REPOSCAN_GITHUB_API_URL",
	"REPOSCAN_REDIS_ADDR",
	"REPOSCAN_HOOK_QUEUE_SIZE",
	"REPOSCAN_HOOK_CONCURRENCY",
	"REPOSCAN_LOG_LEVEL",
}

// isolateConfigEnv saves and unsets all REPOSCAN_ env vars so tests don't
// inherit values from the host environment or a developer's .env file.
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("REPOSCAN_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("REPOSCAN_DB_URI", "/tmp/test.db")
	t.Setenv("REPOSCAN_HOOK_URL", "https://scanner.example.com/hooks")
	t.Setenv("REPOSCAN_HOOK_SECRET", "s3cret")
	t.Setenv("REPOSCAN_HOOK_EVENTS", "push, pull_request")
	t.Setenv("REPOSCAN_GITHUB_API_URL", "https://ghe.example.com/api/v3/")
	t.Setenv("REPOSCAN_REDIS_ADDR", "localhost:6379")
	t.Setenv("REPOSCAN_HOOK_QUEUE_SIZE", "8")
	t.Setenv("REPOSCAN_HOOK_CONCURRENCY", "2")
	t.Setenv("REPOSCAN_LOG_LEVEL", "debug")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBURI)
	assert.Equal(t, "https://scanner.example.com/hooks", cfg.HookURL)
	assert.Equal(t, "s3cret", cfg.HookSecret)
	assert.Equal(t, []string{"push", "pull_request"}, cfg.HookEvents)
	assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.GitHubAPIURL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 8, cfg.HookQueueSize)
	assert.Equal(t, 2, cfg.HookConcurrency)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.HooksEnabled())
	assert.True(t, cfg.UsesRedis())
	assert.False(t, cfg.UsesMongo())
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "reposcan.db", cfg.DBURI)
	assert.Nil(t, cfg.SecretKey)
	assert.Equal(t, []string{"push"}, cfg.HookEvents)
	assert.Equal(t, 64, cfg.HookQueueSize)
	assert.Equal(t, 4, cfg.HookConcurrency)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.HooksEnabled())
	assert.False(t, cfg.UsesRedis())
}

func TestConfig_UsesMongo(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"mongodb://localhost:27017/development", true},
		{"mongodb+srv://cluster0.example.net/prod", true},
		{"reposcan.db", false},
		{"/var/lib/reposcan/mongodb.db", false},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			cfg := &Config{DBURI: tt.uri}
			assert.Equal(t, tt.want, cfg.UsesMongo())
		})
	}
}

func TestLoad_InvalidQueueSize(t *testing.T) {
	for _, v := range []string{"lots", "0", "-3"} {
		t.Run(v, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("REPOSCAN_HOOK_QUEUE_SIZE", v)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "REPOSCAN_HOOK_QUEUE_SIZE")
		})
	}
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("REPOSCAN_HOOK_CONCURRENCY", "many")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REPOSCAN_HOOK_CONCURRENCY")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("REPOSCAN_LOG_LEVEL", "chatty")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REPOSCAN_LOG_LEVEL")
}

func TestLoad_HookEvents_Blank(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("REPOSCAN_HOOK_EVENTS", " , ")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"push"}, cfg.HookEvents)
}

func TestLoad_SecretKey_Valid(t *testing.T) {
	isolateConfigEnv(t)
	// 64 hex chars = 32 bytes
	t.Setenv("REPOSCAN_SECRET_KEY", "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Len(t, cfg.SecretKey, 32)
}

func TestLoad_SecretKey_TooShort(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("REPOSCAN_SECRET_KEY", "deadbeef")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REPOSCAN_SECRET_KEY")
}

func TestLoad_SecretKey_NotHex(t *testing.T) {
	isolateConfigEnv(t)
	// 64 chars but not valid hex
	t.Setenv("REPOSCAN_SECRET_KEY", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REPOSCAN_SECRET_KEY")
}
