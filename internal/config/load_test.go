package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the variables that have no default.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AGENTKIT_AUTH_JWT_SECRET", "thisisasecretkeythatis32charslong!!")
	t.Setenv("AGENTKIT_LLM_OPENAI_API_KEYS", "sk-one\nsk-two")
}

// TestLoadDefaults verifies that Load fills every defaulted setting when only
// the required variables are present.
func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "./data", cfg.Storage.Dir)

	assert.Equal(t, 3, cfg.Engine.Concurrency)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Engine.ZombieTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.ActivePollInterval)
	assert.Equal(t, 2*time.Second, cfg.Engine.IdlePollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Engine.Retention)
	assert.True(t, cfg.Engine.Autostart)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "exhaustion", cfg.LLM.KeyStrategy)
	assert.Equal(t, 90*time.Second, cfg.LLM.RequestTimeout)
	assert.Equal(t, 300*time.Second, cfg.LLM.Cooldown)
	assert.Equal(t, []string{"sk-one", "sk-two"}, cfg.LLM.Credentials("openai"))
	assert.Empty(t, cfg.LLM.Credentials("google"))
	assert.Equal(t, DefaultPromptTemplate, cfg.Generator.PromptTemplate)
}

// TestLoadFromEnv verifies that environment variables override defaults.
func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AGENTKIT_SERVER_PORT", "9090")
	t.Setenv("AGENTKIT_SERVER_LOG_LEVEL", "debug")
	t.Setenv("AGENTKIT_ENGINE_CONCURRENCY", "2")
	t.Setenv("AGENTKIT_ENGINE_ZOMBIE_TIMEOUT", "90s")
	t.Setenv("AGENTKIT_LLM_PROVIDER", "google")
	t.Setenv("AGENTKIT_LLM_FALLBACK_PROVIDER", "openai")
	t.Setenv("AGENTKIT_LLM_KEY_STRATEGY", "round-robin")
	t.Setenv("AGENTKIT_LLM_GOOGLE_API_KEYS", "g-1, g-2 ,g-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 2, cfg.Engine.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Engine.ZombieTimeout)
	assert.Equal(t, "google", cfg.LLM.Provider)
	assert.Equal(t, "openai", cfg.LLM.FallbackProvider)
	assert.Equal(t, "round-robin", cfg.LLM.KeyStrategy)
	assert.Equal(t, []string{"g-1", "g-2"}, cfg.LLM.Credentials("google"))
}

// TestLoadFromFile verifies that a config file is read and that environment
// variables still take precedence over it.
func TestLoadFromFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AGENTKIT_ENGINE_MAX_RETRIES", "7")

	dir := t.TempDir()
	path := filepath.Join(dir, "agentkit.yaml")
	content := []byte(`
engine:
  concurrency: 5
  max_retries: 2
llm:
  google_model: gemini-test
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.Concurrency, "file value should apply")
	assert.Equal(t, 7, cfg.Engine.MaxRetries, "env should win over file")
	assert.Equal(t, "gemini-test", cfg.LLM.GoogleModel)
}

// TestLoadValidationErrors verifies that invalid settings are rejected.
func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"short jwt secret", map[string]string{"AGENTKIT_AUTH_JWT_SECRET": "short"}},
		{"bad log level", map[string]string{"AGENTKIT_SERVER_LOG_LEVEL": "verbose"}},
		{"bad port", map[string]string{"AGENTKIT_SERVER_PORT": "70000"}},
		{"bad provider", map[string]string{"AGENTKIT_LLM_PROVIDER": "anthropic"}},
		{"fallback equals primary", map[string]string{"AGENTKIT_LLM_FALLBACK_PROVIDER": "openai"}},
		{"bad strategy", map[string]string{"AGENTKIT_LLM_KEY_STRATEGY": "random"}},
		{"postgres without url", map[string]string{"AGENTKIT_STORAGE_BACKEND": "postgres"}},
		{"zero concurrency", map[string]string{"AGENTKIT_ENGINE_CONCURRENCY": "0"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadWithoutCredentials(t *testing.T) {
	t.Setenv("AGENTKIT_AUTH_JWT_SECRET", "thisisasecretkeythatis32charslong!!")

	_, err := Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestParseCredentials(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "c"}, ParseCredentials(" a \r\nb\n\n,c,a\n"))
	assert.Empty(t, ParseCredentials(""))
	assert.Empty(t, ParseCredentials("\n , \n"))
}
