package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks variables a developer shell may carry.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CHATSYNC_CONFIG", "CHATSYNC_SERVER_URL", "CHATSYNC_LOG_LEVEL",
		"CHATSYNC_CLIENT_TIMEOUT", "CHATSYNC_LLM_MODEL", "CHATSYNC_STUN_URLS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8747", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.ClientTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatsync.yaml")
	yamlContent := `server_url: https://chat.example.com
log_level: debug
client_timeout: 5s
stun_urls:
  - stun:a.example.com:3478
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	clearEnv(t)
	t.Setenv("CHATSYNC_CONFIG", path)
	t.Setenv("CHATSYNC_LLM_MODEL", "llama3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.ServerURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ClientTimeout)
	assert.Equal(t, []string{"stun:a.example.com:3478"}, cfg.STUNURLs)
	assert.Equal(t, "llama3", cfg.LLMModel)

	t.Setenv("CHATSYNC_SERVER_URL", "http://override:9000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", cfg.ServerURL)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATSYNC_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		server string
		path   string
		want   string
	}{
		{"http://localhost:8747", "/ws", "ws://localhost:8747/ws"},
		{"https://chat.example.com/", "ws", "wss://chat.example.com/ws"},
		{"http://10.0.0.1:80", "/socket/", "ws://10.0.0.1:80/socket/"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			cfg := Config{ServerURL: tt.server, SocketPath: tt.path}
			assert.Equal(t, tt.want, cfg.SocketURL())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("socket connected", "user", "u1")
	logger.Debug("hidden")

	assert.Contains(t, stderr.String(), "socket connected")
	assert.Contains(t, file.String(), `"user":"u1"`)
	assert.NotContains(t, file.String(), "hidden")
}
