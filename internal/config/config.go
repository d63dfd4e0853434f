package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// Chat server
	ServerURL        string
	SocketPath       string
	Token            string
	ClientTimeout    time.Duration
	HandshakeTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// AI assistant
	LLMProvider     string
	LLMModel        string
	ImageModel      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string

	// Calls
	STUNURLs []string
}

// fileConfig mirrors Config for YAML overlays. Pointer fields distinguish
// "absent" from "zero".
type fileConfig struct {
	ServerURL        *string  `yaml:"server_url"`
	SocketPath       *string  `yaml:"socket_path"`
	Token            *string  `yaml:"token"`
	ClientTimeout    *string  `yaml:"client_timeout"`
	HandshakeTimeout *string  `yaml:"handshake_timeout"`
	LogFile          *string  `yaml:"log_file"`
	LogLevel         *string  `yaml:"log_level"`
	LLMProvider      *string  `yaml:"llm_provider"`
	LLMModel         *string  `yaml:"llm_model"`
	ImageModel       *string  `yaml:"image_model"`
	OllamaHost       *string  `yaml:"ollama_host"`
	STUNURLs         []string `yaml:"stun_urls"`
}

// Load reads configuration from environment variables.
// If CHATSYNC_CONFIG points at a YAML file, its values are applied first and
// environment variables override them.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CHATSYNC_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func defaults() Config {
	return Config{
		ServerURL:        "http://localhost:8747",
		SocketPath:       "/ws",
		ClientTimeout:    30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		LogFile:          "/tmp/chatsync.log",
		LogLevel:         slog.LevelInfo,
		LLMProvider:      ProviderOpenAI,
		LLMModel:         "gpt-4o-mini",
		ImageModel:       "gpt-image-1",
		OllamaHost:       "http://localhost:11434",
		STUNURLs:         []string{"stun:stun.l.google.com:19302"},
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.ServerURL, fc.ServerURL)
	setString(&c.SocketPath, fc.SocketPath)
	setString(&c.Token, fc.Token)
	setString(&c.LogFile, fc.LogFile)
	setString(&c.LLMProvider, fc.LLMProvider)
	setString(&c.LLMModel, fc.LLMModel)
	setString(&c.ImageModel, fc.ImageModel)
	setString(&c.OllamaHost, fc.OllamaHost)
	if fc.LogLevel != nil {
		c.LogLevel = parseLogLevel(*fc.LogLevel)
	}
	if fc.ClientTimeout != nil {
		c.ClientTimeout = parseDuration(*fc.ClientTimeout, c.ClientTimeout)
	}
	if fc.HandshakeTimeout != nil {
		c.HandshakeTimeout = parseDuration(*fc.HandshakeTimeout, c.HandshakeTimeout)
	}
	if len(fc.STUNURLs) > 0 {
		c.STUNURLs = fc.STUNURLs
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerURL = getEnv("CHATSYNC_SERVER_URL", c.ServerURL)
	c.SocketPath = getEnv("CHATSYNC_SOCKET_PATH", c.SocketPath)
	c.Token = getEnv("CHATSYNC_TOKEN", c.Token)
	c.ClientTimeout = parseDuration(os.Getenv("CHATSYNC_CLIENT_TIMEOUT"), c.ClientTimeout)
	c.HandshakeTimeout = parseDuration(os.Getenv("CHATSYNC_HANDSHAKE_TIMEOUT"), c.HandshakeTimeout)

	c.LogFile = getEnv("CHATSYNC_LOG_FILE", c.LogFile)
	if lvl := os.Getenv("CHATSYNC_LOG_LEVEL"); lvl != "" {
		c.LogLevel = parseLogLevel(lvl)
	}

	c.LLMProvider = strings.ToLower(getEnv("CHATSYNC_LLM_PROVIDER", c.LLMProvider))
	c.LLMModel = getEnv("CHATSYNC_LLM_MODEL", c.LLMModel)
	c.ImageModel = getEnv("CHATSYNC_IMAGE_MODEL", c.ImageModel)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)

	if urls := os.Getenv("CHATSYNC_STUN_URLS"); urls != "" {
		c.STUNURLs = splitList(urls)
	}
}

// SocketURL returns the websocket endpoint derived from ServerURL and SocketPath.
func (c Config) SocketURL() string {
	u := strings.TrimRight(c.ServerURL, "/")
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + "/" + strings.TrimLeft(c.SocketPath, "/")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
