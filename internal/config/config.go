// Package config provides configuration loading and validation for memo-run.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "MEMO_RUN_CONFIG"
	databaseURLEnv    = "DATABASE_URL"
	dbPathEnv         = "MEMO_RUN_DB_PATH"
	logLevelEnv       = "MEMO_RUN_LOG_LEVEL"
	logFileEnv        = "MEMO_RUN_LOG_FILE"
	agentCommandEnv   = "MEMO_RUN_AGENT_COMMAND"
	agentWorkDirEnv   = "MEMO_RUN_AGENT_WORKDIR"
	corsOriginsEnv    = "CORS_ALLOWED_ORIGINS"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	gistTokenEnv      = "GITHUB_GIST_TOKEN"
	githubTokenEnv    = "GITHUB_TOKEN"
	githubAPIEnv      = "GITHUB_API_URL"
	portEnv           = "PORT"
	rateLimitEnv      = "RATE_LIMIT_ENABLED"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the settings for the server and the batch tools.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Agent         AgentConfig        `yaml:"agent"`
	Monitor       MonitorConfig      `yaml:"monitor"`
	Paths         PathsConfig        `yaml:"paths"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	RateLimit     RateLimitConfig    `yaml:"rateLimit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// DatabaseConfig selects the run registry and dedup backend.
// Driver "postgres" uses URL; driver "sqlite" uses Path.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
	Path   string `yaml:"path"`
}

// AgentConfig describes how the external agent is launched. Args may contain
// the placeholders {keywords} and {run_id}.
type AgentConfig struct {
	Command          string        `yaml:"command"`
	Args             []string      `yaml:"args"`
	WorkDir          string        `yaml:"workDir"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxCapturedLines int           `yaml:"maxCapturedLines"`
}

// MonitorConfig bounds the orchestrator.
type MonitorConfig struct {
	MaxConcurrentRuns int           `yaml:"maxConcurrentRuns"`
	GracePeriod       time.Duration `yaml:"gracePeriod"`
	KeepaliveInterval time.Duration `yaml:"keepaliveInterval"`
}

// PathsConfig points at rule files and the report output directory.
type PathsConfig struct {
	FilterConfig  string `yaml:"filterConfig"`
	ScoringConfig string `yaml:"scoringConfig"`
	ReportsDir    string `yaml:"reportsDir"`
}

// LoggingConfig configures the slog fan-out.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Gist     GistConfig     `yaml:"gist"`
}

// GistConfig enables publishing reports as GitHub gists. An empty token
// disables publishing; an empty APIURL means api.github.com.
type GistConfig struct {
	Token  string `yaml:"token"`
	APIURL string `yaml:"apiUrl"`
}

// Enabled reports whether a token is present.
func (g GistConfig) Enabled() bool {
	return g.Token != ""
}

// TelegramConfig holds the bot credentials. Empty values disable delivery.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// RateLimitConfig throttles API requests per client IP. Run submissions
// get their own, stricter bucket.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DefaultLimit  int           `yaml:"defaultLimit"`
	DefaultWindow time.Duration `yaml:"defaultWindow"`
	StartLimit    int           `yaml:"startLimit"`
	StartWindow   time.Duration `yaml:"startWindow"`
	StartBurst    int           `yaml:"startBurst"`
	Whitelist     []string      `yaml:"whitelist"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "data/memo_run.db",
		},
		Agent: AgentConfig{
			Command: "openclaw",
			Args: []string{
				"agent",
				"--message", "執行 threads-monitor 監控 關鍵字:{keywords}",
				"--local",
				"--channel", "telegram",
				"--session-id", "{run_id}",
			},
			Timeout:          10 * time.Minute,
			MaxCapturedLines: 5000,
		},
		Monitor: MonitorConfig{
			MaxConcurrentRuns: 5,
			GracePeriod:       5 * time.Minute,
			KeepaliveInterval: 60 * time.Second,
		},
		Paths: PathsConfig{
			FilterConfig:  "config/filters.yml",
			ScoringConfig: "config/scoring.yml",
			ReportsDir:    "data/reports",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "memo-run.log",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			DefaultLimit:  600,
			DefaultWindow: time.Minute,
			StartLimit:    30,
			StartWindow:   time.Hour,
			StartBurst:    5,
		},
	}
}

// Load reads the YAML file at path (or $MEMO_RUN_CONFIG when path is empty)
// over the defaults and then applies environment overrides. A missing file
// is not an error when no path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(configPathEnv)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config YAML %s: %w", path, err)
			}
		case explicit || !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseURLEnv); v != "" {
		c.Database.URL = v
		c.Database.Driver = DriverPostgres
	}
	if v := os.Getenv(dbPathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFileEnv); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv(agentCommandEnv); v != "" {
		c.Agent.Command = v
	}
	if v := os.Getenv(agentWorkDirEnv); v != "" {
		c.Agent.WorkDir = v
	}
	if v := os.Getenv(corsOriginsEnv); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(gistTokenEnv); v != "" {
		c.Notifications.Gist.Token = v
	} else if v := os.Getenv(githubTokenEnv); v != "" && c.Notifications.Gist.Token == "" {
		c.Notifications.Gist.Token = v
	}
	if v := os.Getenv(githubAPIEnv); v != "" {
		c.Notifications.Gist.APIURL = v
	}
	if v := os.Getenv(rateLimitEnv); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.RateLimit.Enabled = enabled
		} else {
			slog.Warn("ignoring invalid RATE_LIMIT_ENABLED", "value", v)
		}
	}
	if v := os.Getenv(portEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		} else {
			slog.Warn("ignoring invalid PORT", "value", v)
		}
	}
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' must be between 1 and 65535")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("config error: 'database.path' is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("config error: 'database.url' is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config error: unknown database driver %q", c.Database.Driver)
	}
	if c.Agent.Command == "" {
		return fmt.Errorf("config error: 'agent.command' is required")
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("config error: 'agent.timeout' must be positive")
	}
	if c.Agent.MaxCapturedLines <= 0 {
		return fmt.Errorf("config error: 'agent.maxCapturedLines' must be positive")
	}
	if c.Monitor.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("config error: 'monitor.maxConcurrentRuns' must be positive")
	}
	if c.Monitor.GracePeriod < 0 {
		return fmt.Errorf("config error: 'monitor.gracePeriod' must be non-negative")
	}
	if c.Monitor.KeepaliveInterval <= 0 {
		return fmt.Errorf("config error: 'monitor.keepaliveInterval' must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.DefaultLimit <= 0 || c.RateLimit.DefaultWindow <= 0 {
			return fmt.Errorf("config error: 'rateLimit.defaultLimit' and 'rateLimit.defaultWindow' must be positive")
		}
		if c.RateLimit.StartLimit <= 0 || c.RateLimit.StartWindow <= 0 {
			return fmt.Errorf("config error: 'rateLimit.startLimit' and 'rateLimit.startWindow' must be positive")
		}
	}
	return nil
}

// LogLevel parses the configured level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	return ParseLogLevel(c.Logging.Level)
}

// ParseLogLevel maps debug/info/warn/error to slog levels.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
