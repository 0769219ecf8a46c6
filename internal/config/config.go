// Package config loads, validates, and saves the PrizmAgent configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for PrizmAgent.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Providers map[string]ProviderConfig `json:"providers"`
	Server    ServerConfig              `json:"server"`
	Invoke    InvokeConfig              `json:"invoke"`
	Cache     CacheConfig               `json:"cache"`
	Session   SessionConfig             `json:"session"`
	Chains    ChainsConfig              `json:"chains"`
	Tools     ToolsConfig               `json:"tools"`
	Cron      CronConfig                `json:"cron"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"`
	DefaultProvider       string `json:"defaultProvider"`
	MaxIterations         int    `json:"maxIterations"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	SystemPromptExtra     string `json:"systemPromptExtra,omitempty"`
}

type ProviderConfig struct {
	Enabled         bool   `json:"enabled"`
	APIBase         string `json:"apiBase,omitempty"`
	APIKey          string `json:"apiKey,omitempty"`
	DefaultModel    string `json:"defaultModel,omitempty"`
	RateLimitPerMin int    `json:"rateLimitPerMinute,omitempty"`
}

// ServerConfig configures the HTTP/WebSocket surface and the CLI channel.
type ServerConfig struct {
	Web       WebConfig `json:"web"`
	WebSocket WSConfig  `json:"websocket"`
	CLI       CLIConfig `json:"cli"`
}

type WebConfig struct {
	Enabled bool    `json:"enabled"`
	Host    string  `json:"host"`
	Port    int     `json:"port"`
	Auth    WebAuth `json:"auth"`
}

type WebAuth struct {
	Enabled      bool   `json:"enabled"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

type WSConfig struct {
	Enabled bool `json:"enabled"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// InvokeConfig holds the per-invocation defaults applied when a caller does
// not override them.
type InvokeConfig struct {
	TimeoutSeconds int  `json:"timeoutSeconds"`
	UseCache       bool `json:"useCache"`
}

// CacheConfig selects and tunes the result cache backend.
type CacheConfig struct {
	Backend           string `json:"backend"` // "memory" | "redis"
	RedisAddr         string `json:"redisAddr,omitempty"`
	RedisPassword     string `json:"redisPassword,omitempty"`
	RedisDB           int    `json:"redisDb,omitempty"`
	DefaultTTLSeconds int    `json:"defaultTtlSeconds"`
}

type SessionConfig struct {
	Enabled                   bool   `json:"enabled"`
	DBPath                    string `json:"dbPath"`
	MaxHistoryPerConversation int    `json:"maxHistoryPerConversation"`
	RetentionDays             int    `json:"retentionDays"`
}

// ChainsConfig points at the directory of user-defined chain files.
type ChainsConfig struct {
	Dir string `json:"dir"`
}

type ToolsConfig struct {
	Allow []string      `json:"allow,omitempty"` // empty = all registered tools
	Deny  []string      `json:"deny,omitempty"`
	Web   WebToolConfig `json:"web"`
}

type WebToolConfig struct {
	SearchProvider string `json:"searchProvider"`
	SearchAPIKey   string `json:"searchApiKey,omitempty"`
	FetchTimeoutS  int    `json:"fetchTimeoutSeconds"`
}

type CronConfig struct {
	Enabled bool       `json:"enabled"`
	Tasks   []CronTask `json:"tasks"`
}

// CronTask invokes a tool or chain on a schedule.
type CronTask struct {
	ID       string `json:"id"`
	Schedule string `json:"schedule"` // standard 5-field cron expression
	Target   string `json:"target"`   // tool or chain name
	Input    string `json:"input,omitempty"`
	Enabled  bool   `json:"enabled"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.prizmagent).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prizmagent"
	}
	return filepath.Join(home, ".prizmagent")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Session.DBPath = ExpandPath(cfg.Session.DBPath)
	cfg.Chains.Dir = ExpandPath(cfg.Chains.Dir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxIterations < 1 || cfg.General.MaxIterations > 200 {
		errs = append(errs, "general.maxIterations must be between 1 and 200")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}

	if cfg.Server.Web.Port < 0 || cfg.Server.Web.Port > 65535 {
		errs = append(errs, "server.web.port must be between 0 and 65535")
	}

	if cfg.Invoke.TimeoutSeconds < 0 {
		errs = append(errs, "invoke.timeoutSeconds must be >= 0")
	}

	switch cfg.Cache.Backend {
	case "memory", "redis":
		// valid
	default:
		errs = append(errs, "cache.backend must be one of: memory, redis")
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr == "" {
		errs = append(errs, "cache.redisAddr is required for the redis backend")
	}
	if cfg.Cache.DefaultTTLSeconds < 0 {
		errs = append(errs, "cache.defaultTtlSeconds must be >= 0")
	}

	if cfg.Session.Enabled {
		if cfg.Session.MaxHistoryPerConversation < 1 {
			errs = append(errs, "session.maxHistoryPerConversation must be >= 1")
		}
		if cfg.Session.RetentionDays < 1 {
			errs = append(errs, "session.retentionDays must be >= 1")
		}
	}

	for i, task := range cfg.Cron.Tasks {
		if task.Target == "" {
			errs = append(errs, fmt.Sprintf("cron.tasks[%d]: target is required", i))
		}
		if task.Schedule == "" {
			errs = append(errs, fmt.Sprintf("cron.tasks[%d]: schedule is required", i))
		}
	}

	// Validate provider configs.
	for name, pc := range cfg.Providers {
		if pc.Enabled && pc.APIBase == "" {
			errs = append(errs, fmt.Sprintf("providers.%s: apiBase is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
