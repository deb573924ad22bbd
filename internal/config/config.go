package config

import (
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Provider    ProviderConfig    `mapstructure:"provider" yaml:"provider"`
	Agent       AgentConfig       `mapstructure:"agent" yaml:"agent"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StabilizeQuiet    time.Duration `mapstructure:"stabilize_quiet" yaml:"stabilize_quiet"`
	StabilizeTimeout  time.Duration `mapstructure:"stabilize_timeout" yaml:"stabilize_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	TypingDelay       time.Duration `mapstructure:"typing_delay" yaml:"typing_delay"`
	MaxElements       int           `mapstructure:"max_elements" yaml:"max_elements"`
	SummaryMaxChars   int           `mapstructure:"summary_max_chars" yaml:"summary_max_chars"`
}

// ProviderBackend names a supported decision-provider backend.
type ProviderBackend string

const (
	BackendGemini ProviderBackend = "gemini"
	BackendOpenAI ProviderBackend = "openai"
	BackendOllama ProviderBackend = "ollama"
)

// ProviderConfig defines the decision-provider backend and its tuning.
type ProviderConfig struct {
	Backend           string        `mapstructure:"backend" yaml:"backend"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP              float32       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RetryMaxElapsed   time.Duration `mapstructure:"retry_max_elapsed" yaml:"retry_max_elapsed"`
	RetryMaxInterval  time.Duration `mapstructure:"retry_max_interval" yaml:"retry_max_interval"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	HistoryWindow     int           `mapstructure:"history_window" yaml:"history_window"`
}

// AgentConfig holds the step-loop termination and pacing policy.
type AgentConfig struct {
	MaxSteps               int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepDelay              time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

// StoreConfig selects and configures the session record store.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	DataDir  string         `mapstructure:"data_dir" yaml:"data_dir"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the keyword/value connection string pgx expects.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// ServerConfig tunes the HTTP front door.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	MaxSessions     int64         `mapstructure:"max_sessions" yaml:"max_sessions"`
	AuthSecret      string        `mapstructure:"auth_secret" yaml:"-"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// CredentialsConfig points at the optional credential vault file.
type CredentialsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.stabilize_quiet", "500ms")
	v.SetDefault("browser.stabilize_timeout", "10s")
	v.SetDefault("browser.post_load_wait", "1s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.typing_delay", "40ms")
	v.SetDefault("browser.max_elements", 60)
	v.SetDefault("browser.summary_max_chars", 4000)

	// -- Provider --
	v.SetDefault("provider.backend", "gemini")
	v.SetDefault("provider.model", "gemini-2.5-flash")
	v.SetDefault("provider.api_timeout", "90s")
	v.SetDefault("provider.temperature", 0.2)
	v.SetDefault("provider.top_p", 0.95)
	v.SetDefault("provider.max_tokens", 2048)
	v.SetDefault("provider.retry_max_elapsed", "2m")
	v.SetDefault("provider.retry_max_interval", "30s")
	v.SetDefault("provider.requests_per_minute", 0)
	v.SetDefault("provider.history_window", 8)

	// -- Agent --
	v.SetDefault("agent.max_steps", 25)
	v.SetDefault("agent.step_delay", "1s")
	v.SetDefault("agent.max_consecutive_failures", 3)

	// -- Store --
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.data_dir", "~/.webpilot")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.dbname", "webpilot")
	v.SetDefault("store.postgres.sslmode", "disable")

	// -- Server --
	v.SetDefault("server.addr", ":8721")
	v.SetDefault("server.max_sessions", 4)
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Credentials --
	v.SetDefault("credentials.file", "")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come from the environment, never the config file.
	v.BindEnv("provider.api_key", "WEBPILOT_API_KEY")
	v.BindEnv("store.postgres.password", "WEBPILOT_PG_PASSWORD")
	v.BindEnv("server.auth_secret", "WEBPILOT_AUTH_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("agent.max_consecutive_failures must be a positive integer")
	}
	if strings.TrimSpace(c.Provider.Backend) == "" {
		return fmt.Errorf("provider.backend is a required configuration field")
	}
	switch c.Store.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", "file", "postgres", c.Store.Backend)
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be a positive integer")
	}
	return nil
}

// ResolveDataDir expands the configured data directory (including a leading
// tilde) to an absolute path.
func (s StoreConfig) ResolveDataDir() (string, error) {
	dir := strings.TrimSpace(s.DataDir)
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return home + "/.webpilot", nil
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expanding data dir %q: %w", dir, err)
	}
	return expanded, nil
}
