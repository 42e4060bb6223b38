// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	_ "github.com/joho/godotenv/autoload" // Load .env into the environment before Load runs.
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBURI           string
	SecretKey       []byte
	HookURL         string
	HookSecret      string
	HookEvents      []string
	GitHubAPIURL    string
	RedisAddr       string
	HookQueueSize   int
	HookConcurrency int
	LogLevel        slog.Level
}

// UsesMongo reports whether DBURI points at a MongoDB deployment rather
// than a SQLite file.
func (c *Config) UsesMongo() bool {
	return strings.HasPrefix(c.DBURI, "mongodb://") || strings.HasPrefix(c.DBURI, "mongodb+srv://")
}

// HooksEnabled reports whether a webhook callback URL is configured. Without
// one, repositories are tracked but no webhooks are installed.
func (c *Config) HooksEnabled() bool {
	return c.HookURL != ""
}

// UsesRedis reports whether hook tasks go through the Redis-backed queue.
func (c *Config) UsesRedis() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// All variables are optional. Defaults: REPOSCAN_LISTEN_ADDR (127.0.0.1:8080),
// REPOSCAN_DB_URI (reposcan.db), REPOSCAN_HOOK_EVENTS (push),
// REPOSCAN_HOOK_QUEUE_SIZE (64), REPOSCAN_HOOK_CONCURRENCY (4),
// REPOSCAN_LOG_LEVEL (info). REPOSCAN_SECRET_KEY, when set, must be 64 hex
// characters.
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("REPOSCAN_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbURI := "reposcan.db"
	if v, ok := os.LookupEnv("REPOSCAN_DB_URI"); ok && v != "" {
		dbURI = v
	}

	var secretKey []byte
	if v := os.Getenv("REPOSCAN_SECRET_KEY"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("REPOSCAN_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("REPOSCAN_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		secretKey = key
	}

	hookEvents := splitList(os.Getenv("REPOSCAN_HOOK_EVENTS"))
	if len(hookEvents) == 0 {
		hookEvents = []string{"push"}
	}

	queueSize, err := positiveInt("REPOSCAN_HOOK_QUEUE_SIZE", 64)
	if err != nil {
		return nil, err
	}

	concurrency, err := positiveInt("REPOSCAN_HOOK_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("REPOSCAN_LOG_LEVEL"); ok && v != "" {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("REPOSCAN_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return &Config{
		ListenAddr:      listenAddr,
		DBURI:           dbURI,
		SecretKey:       secretKey,
		HookURL:         os.Getenv("REPOSCAN_HOOK_URL"),
		HookSecret:      os.Getenv("REPOSCAN_HOOK_SECRET"),
		HookEvents:      hookEvents,
		GitHubAPIURL:    os.Getenv("REPOSCAN_GITHUB_API_URL"),
		RedisAddr:       os.Getenv("REPOSCAN_REDIS_ADDR"),
		HookQueueSize:   queueSize,
		HookConcurrency: concurrency,
		LogLevel:        logLevel,
	}, nil
}

func positiveInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	return n, nil
}

// splitList parses a comma-separated list, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
