// Package config loads the service configuration from YAML with environment
// overrides. Core logic never reads the process environment; everything it
// needs is resolved here and passed in explicitly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/storyland-ai/storyland/internal/retry"
)

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	AuthSecret  string `mapstructure:"auth_secret"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// DatabaseConfig selects the durable preference store. Driver is postgres
// or sqlite3.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type ToolsConfig struct {
	GoogleBooksAPIKey string `mapstructure:"google_books_api_key"`
	SerperAPIKey      string `mapstructure:"serper_api_key"`
	GeocodeUserAgent  string `mapstructure:"geocode_user_agent"`
}

// WorkflowConfig carries the orchestration tunables. These are hot-reloadable
// through the Watcher; a change applies to runs started afterwards.
type WorkflowConfig struct {
	WorkflowTimeoutSeconds int    `mapstructure:"workflow_timeout_seconds"`
	PhaseTimeoutSeconds    int    `mapstructure:"phase_timeout_seconds"`
	JoinPolicy             string `mapstructure:"join_policy"`
	AutoSelectAll          bool   `mapstructure:"auto_select_all"`
}

// WorkflowTimeout returns the cumulative deadline shared by the timed
// phases of a run. The selection wait does not count against it.
func (w WorkflowConfig) WorkflowTimeout() time.Duration {
	return time.Duration(w.WorkflowTimeoutSeconds) * time.Second
}

// PhaseTimeout returns the configured per-phase deadline.
func (w WorkflowConfig) PhaseTimeout() time.Duration {
	return time.Duration(w.PhaseTimeoutSeconds) * time.Second
}

// RetryConfig tunes the classified backoff applied inside tool and LLM
// calls. The schedule is initial_delay * base^attempt.
type RetryConfig struct {
	MaxAttempts         int     `mapstructure:"max_attempts"`
	InitialDelaySeconds float64 `mapstructure:"initial_delay_seconds"`
	Base                float64 `mapstructure:"base"`
}

// Policy converts the configured knobs into the policy the clients consume.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: time.Duration(r.InitialDelaySeconds * float64(time.Second)),
		Base:         r.Base,
	}
}

type StreamingConfig struct {
	ReplayCapacity int `mapstructure:"replay_capacity"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "storyland-tasks")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "storyland.db")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("tools.geocode_user_agent", "storyland/1.0")
	v.SetDefault("workflow.workflow_timeout_seconds", 1800)
	v.SetDefault("workflow.phase_timeout_seconds", 300)
	v.SetDefault("workflow.join_policy", "best_effort")
	v.SetDefault("workflow.auto_select_all", false)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_delay_seconds", 1.0)
	v.SetDefault("retry.base", 7.0)
	v.SetDefault("streaming.replay_capacity", 256)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("STORYLAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads the configuration file at path, if given, applies STORYLAND_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Workflow.JoinPolicy {
	case "best_effort", "strict":
	default:
		return fmt.Errorf("config: unknown join policy %q", c.Workflow.JoinPolicy)
	}
	if c.Workflow.PhaseTimeoutSeconds <= 0 {
		return fmt.Errorf("config: phase timeout must be positive")
	}
	if c.Workflow.WorkflowTimeoutSeconds <= 0 {
		return fmt.Errorf("config: workflow timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry max attempts must be at least 1")
	}
	if c.Retry.InitialDelaySeconds <= 0 {
		return fmt.Errorf("config: retry initial delay must be positive")
	}
	if c.Retry.Base < 1 {
		return fmt.Errorf("config: retry base must be at least 1")
	}
	return nil
}
