package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendRaw      = "raw"
	BackendChromedp = "chromedp"
)

// Config holds all configuration for the tab trimming daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int
	Backend    string

	// Control API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Rules
	RulesFile       string
	SameWindowOnly  bool
	ProtectPrefixes []string
	DebounceMS      int

	// Trim history (JSONL)
	HistoryDir       string
	HistoryMaxFileMB int
	HistoryBuffer    int

	// Optional ntfy topic notified on every closed tab
	NtfyURL string

	// Optional browser launch
	LaunchBrowser bool
	BrowserPath   string
	Headless      bool
	StartURL      string
	ProfileDir    string

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		Backend:          strings.ToLower(getEnvOrDefault("TABTRIM_BACKEND", BackendRaw)),
		BindAddr:         getEnvOrDefault("TABTRIM_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("TABTRIM_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback: getEnvBoolOrDefault("TABTRIM_PORT_AUTO_FALLBACK", true),
		RulesFile:        getEnvOrDefault("TABTRIM_RULES_FILE", ""),
		SameWindowOnly:   getEnvBoolOrDefault("TABTRIM_SAME_WINDOW_ONLY", false),
		ProtectPrefixes:  getEnvListOrDefault("TABTRIM_PROTECT_PREFIXES", nil),
		DebounceMS:       getEnvIntOrDefault("TABTRIM_DEBOUNCE_MS", 250),
		HistoryDir:       getEnvOrDefault("TABTRIM_HISTORY_DIR", "./trim_history"),
		HistoryMaxFileMB: getEnvIntOrDefault("TABTRIM_HISTORY_MAX_FILE_MB", 50),
		HistoryBuffer:    getEnvIntOrDefault("TABTRIM_HISTORY_BUFFER", 1000),
		NtfyURL:          getEnvOrDefault("TABTRIM_NTFY_URL", ""),
		LaunchBrowser:    getEnvBoolOrDefault("TABTRIM_LAUNCH_BROWSER", false),
		BrowserPath:      getEnvOrDefault("TABTRIM_BROWSER_PATH", ""),
		Headless:         getEnvBoolOrDefault("TABTRIM_HEADLESS", false),
		StartURL:         getEnvOrDefault("TABTRIM_START_URL", "about:blank"),
		ProfileDir:       getEnvOrDefault("TABTRIM_PROFILE_DIR", "./browser_profile"),
		LogLevel:         strings.ToLower(getEnvOrDefault("TABTRIM_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("TABTRIM_LOG_FILE", "logs/tabtrim.log"),
	}

	switch cfg.Backend {
	case BackendRaw, BackendChromedp:
	default:
		return nil, fmt.Errorf("TABTRIM_BACKEND must be %q or %q, got %q", BackendRaw, BackendChromedp, cfg.Backend)
	}
	if cfg.DebounceMS < 0 {
		cfg.DebounceMS = 0
	}
	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
