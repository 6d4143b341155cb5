package config

import (
	"strings"
	"time"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Engine    EngineConfig    `mapstructure:"engine" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	Generator GeneratorConfig `mapstructure:"generator"`
	NATS      NATSConfig      `mapstructure:"nats"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// AuthConfig contains the operator API authentication settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// StorageConfig selects and configures the persistence backend of the task store.
type StorageConfig struct {
	// Backend is "file" (directory on disk) or "postgres" (key/value table).
	Backend     string `mapstructure:"backend" validate:"required,oneof=file postgres"`
	Dir         string `mapstructure:"dir" validate:"required_if=Backend file"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Backend postgres"`
}

// EngineConfig contains the orchestration loop settings.
type EngineConfig struct {
	Concurrency        int           `mapstructure:"concurrency" validate:"required,gt=0"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"required,gt=0"`
	ZombieTimeout      time.Duration `mapstructure:"zombie_timeout" validate:"required,gt=0"`
	ActivePollInterval time.Duration `mapstructure:"active_poll_interval" validate:"required,gt=0"`
	IdlePollInterval   time.Duration `mapstructure:"idle_poll_interval" validate:"required,gt=0"`
	Retention          time.Duration `mapstructure:"retention" validate:"required,gt=0"`
	Autostart          bool          `mapstructure:"autostart"`
}

// LLMConfig contains all upstream language-model settings.
type LLMConfig struct {
	Provider         string        `mapstructure:"provider" validate:"required,oneof=openai google"`
	FallbackProvider string        `mapstructure:"fallback_provider" validate:"omitempty,oneof=openai google,nefield=Provider"`
	KeyStrategy      string        `mapstructure:"key_strategy" validate:"required,oneof=exhaustion round-robin"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" validate:"required,gt=0"`
	Cooldown         time.Duration `mapstructure:"cooldown" validate:"required,gt=0"`

	// Credential lists are newline-delimited secrets (commas are accepted too).
	OpenAIAPIKeys string `mapstructure:"openai_api_keys"`
	OpenAIBaseURL string `mapstructure:"openai_base_url" validate:"required,url"`
	OpenAIModel   string `mapstructure:"openai_model" validate:"required"`
	GoogleAPIKeys string `mapstructure:"google_api_keys"`
	GoogleModel   string `mapstructure:"google_model" validate:"required"`
}

// Credentials returns the parsed credential list for the named provider.
func (c LLMConfig) Credentials(provider string) []string {
	switch provider {
	case "openai":
		return ParseCredentials(c.OpenAIAPIKeys)
	case "google":
		return ParseCredentials(c.GoogleAPIKeys)
	default:
		return nil
	}
}

// GeneratorConfig configures the reference generation worker.
type GeneratorConfig struct {
	PromptTemplate string `mapstructure:"prompt_template"`
	OutputDir      string `mapstructure:"output_dir"`
}

// NATSConfig configures the optional lifecycle event bridge.
type NATSConfig struct {
	URL           string `mapstructure:"url" validate:"omitempty,url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// ParseCredentials splits a newline- or comma-delimited secret list, trimming
// whitespace and dropping blanks and duplicates while keeping the configured order.
func ParseCredentials(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})

	seen := make(map[string]struct{}, len(fields))
	creds := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		creds = append(creds, f)
	}
	return creds
}
