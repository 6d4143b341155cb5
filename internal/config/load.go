package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "AGENTKIT"

// ErrNoCredentials is returned when neither the primary nor the fallback
// provider has any credential configured.
var ErrNoCredentials = errors.New("no upstream credentials configured")

// LoadOption customises Load.
type LoadOption func(v *viper.Viper)

// WithConfigFile reads configuration from an explicit file path instead of
// searching the default locations.
func WithConfigFile(path string) LoadOption {
	return func(v *viper.Viper) {
		v.SetConfigFile(path)
	}
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(opts ...LoadOption) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("agentkit")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.agentkit")

	for _, opt := range opts {
		opt(v)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key must be bound
	// explicitly for env-only configuration to work.
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct-level constraints and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if len(cfg.LLM.Credentials(cfg.LLM.Provider)) == 0 &&
		len(cfg.LLM.Credentials(cfg.LLM.FallbackProvider)) == 0 {
		return fmt.Errorf("invalid configuration: %w for provider %q", ErrNoCredentials, cfg.LLM.Provider)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime_minutes", 60*24)

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.dir", "./data")

	v.SetDefault("engine.concurrency", 3)
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.zombie_timeout", "5m")
	v.SetDefault("engine.active_poll_interval", "500ms")
	v.SetDefault("engine.idle_poll_interval", "2s")
	v.SetDefault("engine.retention", "15m")
	v.SetDefault("engine.autostart", true)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.key_strategy", "exhaustion")
	v.SetDefault("llm.request_timeout", "90s")
	v.SetDefault("llm.cooldown", "300s")
	v.SetDefault("llm.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.google_model", "gemini-2.0-flash")

	v.SetDefault("generator.prompt_template", DefaultPromptTemplate)
	v.SetDefault("generator.output_dir", "notes")

	v.SetDefault("nats.subject_prefix", "agentkit")
}

// DefaultPromptTemplate is used by the generation worker when none is configured.
const DefaultPromptTemplate = "Write a concise, well-structured markdown note explaining the concept \"{{.Concept}}\"."

var configKeys = []string{
	"server.port",
	"server.log_level",
	"auth.jwt_secret",
	"auth.token_lifetime_minutes",
	"storage.backend",
	"storage.dir",
	"storage.database_url",
	"engine.concurrency",
	"engine.max_retries",
	"engine.zombie_timeout",
	"engine.active_poll_interval",
	"engine.idle_poll_interval",
	"engine.retention",
	"engine.autostart",
	"llm.provider",
	"llm.fallback_provider",
	"llm.key_strategy",
	"llm.request_timeout",
	"llm.cooldown",
	"llm.openai_api_keys",
	"llm.openai_base_url",
	"llm.openai_model",
	"llm.google_api_keys",
	"llm.google_model",
	"generator.prompt_template",
	"generator.output_dir",
	"nats.url",
	"nats.subject_prefix",
}
