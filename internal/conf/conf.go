package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents application configuration
type Config struct {
	// Chat platform: "discord" or "feishu"
	Platform string `mapstructure:"platform"`

	Discord DiscordConfig `mapstructure:"discord"`
	Feishu  FeishuConfig  `mapstructure:"feishu"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Digest  DigestConfig  `mapstructure:"digest"`
	Storage StorageConfig `mapstructure:"storage"`
	API     APIConfig     `mapstructure:"api"`
	Log     LogConfig     `mapstructure:"log"`

	// PromptsPath points at prompts.yaml, empty searches the default locations
	PromptsPath string `mapstructure:"prompts_path"`

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig `mapstructure:"-"`
}

// DiscordConfig contains Discord configuration
type DiscordConfig struct {
	Token string `mapstructure:"token"`
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
}

// LLMConfig contains language model configuration
type LLMConfig struct {
	Provider          string `mapstructure:"provider"` // anthropic or openai
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	ClassifyMaxTokens int    `mapstructure:"classify_max_tokens"`
	DigestMaxTokens   int    `mapstructure:"digest_max_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"` // 0 = unlimited
}

// MonitorConfig controls which messages are captured
type MonitorConfig struct {
	Channels         []string `mapstructure:"channels"`
	Apps             []string `mapstructure:"apps"`
	InternalAuthors  []string `mapstructure:"internal_authors"`
	MaxContentLength int      `mapstructure:"max_content_length"`
	WordBoundary     bool     `mapstructure:"word_boundary"`
}

// BatchConfig controls the capture queue and its drain loop
type BatchConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	QueueCapacity   int           `mapstructure:"queue_capacity"`
	QueueBackend    string        `mapstructure:"queue_backend"` // memory or redis
	RedisURL        string        `mapstructure:"redis_url"`
	RedisKey        string        `mapstructure:"redis_key"`
	RetryCeiling    int           `mapstructure:"retry_ceiling"`
	APIErrorRequeue int           `mapstructure:"api_error_requeue"`
	BackoffUnit     time.Duration `mapstructure:"backoff_unit"`
}

// DigestConfig controls the daily digest
type DigestConfig struct {
	Hour         int           `mapstructure:"hour"`
	TimeZone     string        `mapstructure:"time_zone"`
	Destination  string        `mapstructure:"destination"`
	Lookback     time.Duration `mapstructure:"lookback"`
	HistoryLimit int           `mapstructure:"history_limit"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// StorageConfig contains SQLite configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// APIConfig contains the operator HTTP API configuration
type APIConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the API
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// DefaultMonitoredChannels are the community channels watched out of the box
var DefaultMonitoredChannels = []string{
	"1019678288618205294",
	"821856844137758730",
	"797477569195671592",
	"1389667062569242644",
	"1395804083801165895",
	"1393267393928630473",
	"1395804228336750672",
	"1395804148825329777",
	"1466104194644836620",
}

// setting binds one config key to its environment variable and default
type setting struct {
	key string
	env string
	def interface{}
}

var settings = []setting{
	{"platform", "CHAT_PLATFORM", "discord"},
	{"discord.token", "DISCORD_BOT_TOKEN", ""},
	{"feishu.app_id", "FEISHU_APP_ID", ""},
	{"feishu.app_secret", "FEISHU_APP_SECRET", ""},
	{"llm.provider", "LLM_PROVIDER", "anthropic"},
	{"llm.api_key", "LLM_API_KEY", ""},
	{"llm.base_url", "LLM_BASE_URL", ""},
	{"llm.model", "CLAUDE_MODEL", "claude-haiku-4-5-20251001"},
	{"llm.classify_max_tokens", "MAX_TOKENS", 1000},
	{"llm.digest_max_tokens", "DIGEST_MAX_TOKENS", 1500},
	{"llm.requests_per_minute", "LLM_REQUESTS_PER_MINUTE", 0},
	{"monitor.channels", "MONITORED_CHANNEL_IDS", DefaultMonitoredChannels},
	{"monitor.apps", "MONITORED_APPS", []string{"cora", "spiral", "sparkle", "monologue"}},
	{"monitor.internal_authors", "INTERNAL_AUTHORS", []string{}},
	{"monitor.max_content_length", "MAX_CONTENT_LENGTH", 1000},
	{"monitor.word_boundary", "MENTION_WORD_BOUNDARY", false},
	{"batch.interval", "BATCH_INTERVAL", time.Hour},
	{"batch.queue_capacity", "QUEUE_CAPACITY", 500},
	{"batch.queue_backend", "QUEUE_BACKEND", "memory"},
	{"batch.redis_url", "REDIS_URL", "redis://localhost:6379/0"},
	{"batch.redis_key", "REDIS_QUEUE_KEY", "feedback:queue"},
	{"batch.retry_ceiling", "MAX_RETRIES", 3},
	{"batch.api_error_requeue", "API_ERROR_REQUEUE", 20},
	{"batch.backoff_unit", "BACKOFF_UNIT", time.Second},
	{"digest.hour", "SUMMARY_HOUR", 8},
	{"digest.time_zone", "SUMMARY_TIMEZONE", "America/New_York"},
	{"digest.destination", "SUMMARY_CHANNEL_ID", "1467997889987874980"},
	{"digest.lookback", "SUMMARY_LOOKBACK", 24 * time.Hour},
	{"digest.history_limit", "HISTORY_LIMIT", 500},
	{"digest.concurrency", "HISTORY_CONCURRENCY", 4},
	{"storage.db_path", "DATABASE_PATH", "sentiment.db"},
	{"api.addr", "API_ADDR", "127.0.0.1:9876"},
	{"log.level", "LOG_LEVEL", "info"},
	{"log.json", "LOG_JSON", false},
	{"prompts_path", "PROMPTS_CONFIG_PATH", ""},
}

// Load loads configuration from .env files, an optional YAML file and the environment.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", s.env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	prompts, err := LoadPromptsConfig(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}
	cfg.Prompts = prompts

	return &cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

// normalize trims list entries, lower-cases product names and resolves the API key
func (c *Config) normalize() {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Batch.QueueBackend = strings.ToLower(strings.TrimSpace(c.Batch.QueueBackend))

	c.Monitor.Channels = cleanList(c.Monitor.Channels, false)
	c.Monitor.Apps = cleanList(c.Monitor.Apps, true)
	c.Monitor.InternalAuthors = cleanList(c.Monitor.InternalAuthors, true)

	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if c.Storage.DBPath != "" {
		c.Storage.DBPath = expandPath(c.Storage.DBPath)
	}
}

// cleanList splits comma-joined entries, trims them and drops blanks and duplicates
func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if lower {
				part = strings.ToLower(part)
			}
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Location returns the digest time zone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Digest.TimeZone)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Platform {
	case "discord":
		if c.Discord.Token == "" {
			return &ConfigError{Field: "DISCORD_BOT_TOKEN", Message: "required"}
		}
	case "feishu":
		if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
			return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
		}
	default:
		return &ConfigError{Field: "CHAT_PLATFORM", Message: fmt.Sprintf("unsupported platform %q", c.Platform)}
	}
	return c.ValidateCore()
}

// ValidateCore validates everything except chat platform credentials.
// Offline commands only need storage and the model.
func (c *Config) ValidateCore() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return &ConfigError{Field: "LLM_PROVIDER", Message: fmt.Sprintf("unsupported provider %q", c.LLM.Provider)}
	}
	if c.LLM.APIKey == "" {
		return &ConfigError{Field: "ANTHROPIC_API_KEY", Message: "required"}
	}
	if len(c.Monitor.Apps) == 0 {
		return &ConfigError{Field: "MONITORED_APPS", Message: "at least one app is required"}
	}
	if c.Digest.Hour < 0 || c.Digest.Hour > 23 {
		return &ConfigError{Field: "SUMMARY_HOUR", Message: "must be between 0 and 23"}
	}
	if _, err := c.Location(); err != nil {
		return &ConfigError{Field: "SUMMARY_TIMEZONE", Message: err.Error()}
	}
	if c.Batch.QueueCapacity <= 0 {
		return &ConfigError{Field: "QUEUE_CAPACITY", Message: "must be positive"}
	}
	if c.Batch.Interval <= 0 {
		return &ConfigError{Field: "BATCH_INTERVAL", Message: "must be positive"}
	}
	if c.Batch.RetryCeiling < 0 {
		return &ConfigError{Field: "MAX_RETRIES", Message: "must not be negative"}
	}
	if c.Batch.APIErrorRequeue < 0 {
		return &ConfigError{Field: "API_ERROR_REQUEUE", Message: "must not be negative"}
	}
	if c.Batch.BackoffUnit <= 0 {
		return &ConfigError{Field: "BACKOFF_UNIT", Message: "must be positive"}
	}
	switch c.Batch.QueueBackend {
	case "memory", "redis":
	default:
		return &ConfigError{Field: "QUEUE_BACKEND", Message: fmt.Sprintf("unsupported backend %q", c.Batch.QueueBackend)}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
