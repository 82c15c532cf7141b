package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API        APIConfig        `yaml:"api"`
	Chat       ChatConfig       `yaml:"chat"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Pending    PendingConfig    `yaml:"pending"`
	Store      StoreConfig      `yaml:"store"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// APIConfig holds the appliance REST API settings
type APIConfig struct {
	URL                string `yaml:"url"`      // e.g. https://lantern.example.com
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TokenWindowSeconds int    `yaml:"tokenWindowSeconds"` // proactive re-auth window (default: 300)
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"` // disable TLS verification (default: false)
	TimeoutSeconds     int    `yaml:"timeoutSeconds"`     // per-request timeout (default: 30)
}

// ChatConfig holds the chat workspace settings
type ChatConfig struct {
	URL                 string  `yaml:"url"`   // workspace API base URL
	Token               string  `yaml:"token"`
	BotName             string  `yaml:"botName"`
	DefaultChannel      string  `yaml:"defaultChannel"`
	LogChannel          string  `yaml:"logChannel"`          // empty = no chat log mirroring
	AdminChannel        string  `yaml:"adminChannel"`        // channel allowed to run mutating commands
	PollIntervalSeconds float64 `yaml:"pollIntervalSeconds"` // default: 1
	ReconnectAttempts   int     `yaml:"reconnectAttempts"`   // bounded restart attempts (default: 3)
	ReconnectSeconds    int     `yaml:"reconnectSeconds"`    // backoff between attempts (default: 15)
}

// DispatcherConfig holds command handling settings
type DispatcherConfig struct {
	MaxWorkers    int `yaml:"maxWorkers"`    // concurrent commands, 0 = NumCPU
	ListThreshold int `yaml:"listThreshold"` // items before switching to columns (default: 10)
	LineBudget    int `yaml:"lineBudget"`    // column layout width budget (default: 120)
	RateLimit     int `yaml:"rateLimit"`     // max commands per minute per user (0 = disabled)
}

// PendingConfig holds the pending-node watcher settings
type PendingConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"intervalMinutes"` // default: 5
}

// StoreConfig holds the local SQLite store settings
type StoreConfig struct {
	Path string `yaml:"path"` // empty = <config dir>/lanternbot.db
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: info)
	File  string `yaml:"file"`  // append-only log file (default: <config dir>/lanternbot.log)
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"` // default: localhost:9190
	Path    string `yaml:"path"` // default: /metrics
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			TokenWindowSeconds: 300,
			InsecureSkipVerify: false,
			TimeoutSeconds:     30,
		},
		Chat: ChatConfig{
			AdminChannel:        "lanternadmin",
			PollIntervalSeconds: 1,
			ReconnectAttempts:   3,
			ReconnectSeconds:    15,
		},
		Dispatcher: DispatcherConfig{
			MaxWorkers:    runtime.NumCPU(),
			ListThreshold: 10,
			LineBudget:    120,
			RateLimit:     0,
		},
		Pending: PendingConfig{
			Enabled:         false,
			IntervalMinutes: 5,
		},
		Store: StoreConfig{
			Path: filepath.Join(Dir(), "lanternbot.db"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(Dir(), "lanternbot.log"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Bind:    "localhost:9190",
			Path:    "/metrics",
		},
	}
}

// Dir returns the configuration directory
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lanternbot")
}

// Path returns the default config file path
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the config file at path (or the default location when empty),
// merges it over defaults, and applies environment overrides. A missing file
// is not an error: environment variables alone can carry the required values
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config not readable: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// environment variable names, kept compatible with the deployment scripts
const (
	EnvAPIURL         = "LANTERN_API_URL"
	EnvAPIUser        = "LANTERN_API_USER"
	EnvAPIPass        = "LANTERN_API_PASS"
	EnvChatURL        = "CHAT_API_URL"
	EnvChatToken      = "CHAT_BOT_TOKEN"
	EnvChatBotName    = "CHAT_BOT_NAME"
	EnvDefaultChannel = "CHAT_BOT_DEFAULT_CHANNEL"
	EnvLogChannel     = "CHAT_BOT_LOG_CHANNEL"
	EnvAdminChannel   = "CHAT_BOT_ADMIN_CHANNEL"
)

// applyEnv overrides file values with environment variables when present
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.API.URL, EnvAPIURL)
	set(&c.API.Username, EnvAPIUser)
	set(&c.API.Password, EnvAPIPass)
	set(&c.Chat.URL, EnvChatURL)
	set(&c.Chat.Token, EnvChatToken)
	set(&c.Chat.BotName, EnvChatBotName)
	set(&c.Chat.DefaultChannel, EnvDefaultChannel)
	set(&c.Chat.LogChannel, EnvLogChannel)
	set(&c.Chat.AdminChannel, EnvAdminChannel)
}

// ValidationResult holds the result of config validation
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// Validate checks the configuration for required fields and common issues.
// Values are validated for presence only; the backend rejects bad credentials
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if c.API.URL == "" {
		result.Errors = append(result.Errors, "appliance URL required: set api.url or "+EnvAPIURL)
	}
	if c.API.Username == "" {
		result.Errors = append(result.Errors, "appliance username required: set api.username or "+EnvAPIUser)
	}
	if c.API.Password == "" {
		result.Errors = append(result.Errors, "appliance password required: set api.password or "+EnvAPIPass)
	}
	if c.Chat.Token == "" {
		result.Errors = append(result.Errors, "chat token required: set chat.token or "+EnvChatToken)
	}
	if c.Chat.BotName == "" {
		result.Errors = append(result.Errors, "bot name required: set chat.botName or "+EnvChatBotName)
	}
	if c.Chat.DefaultChannel == "" {
		result.Errors = append(result.Errors, "default channel required: set chat.defaultChannel or "+EnvDefaultChannel)
	}

	if c.API.InsecureSkipVerify {
		result.Warnings = append(result.Warnings, "TLS certificate verification is disabled (api.insecureSkipVerify)")
	}
	if c.Chat.LogChannel == "" {
		result.Warnings = append(result.Warnings, "no log channel set: warnings stay in the log file only")
	}
	if c.Dispatcher.RateLimit > 100 {
		result.Warnings = append(result.Warnings, "rate limit > 100 commands/min, consider a lower limit")
	}
	if c.Pending.Enabled && c.Pending.IntervalMinutes < 1 {
		result.Warnings = append(result.Warnings, "pending watcher interval < 1 minute may hammer the appliance")
	}

	return result
}

// Save writes the config to the default location, creating the directory
func Save(cfg *Config) (string, error) {
	if err := os.MkdirAll(Dir(), 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	path := Path()
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
