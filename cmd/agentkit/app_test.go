package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/agentkit/internal/config"
	"github.com/phrazzld/agentkit/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Port: 0, LogLevel: "error"},
		Auth:   config.AuthConfig{JWTSecret: "test-jwt-secret-that-is-32-chars-long", TokenLifetimeMinutes: 60},
		Storage: config.StorageConfig{
			Backend: "file",
			Dir:     filepath.Join(dir, "data"),
		},
		Engine: config.EngineConfig{
			Concurrency:        2,
			MaxRetries:         3,
			ZombieTimeout:      time.Minute,
			ActivePollInterval: 10 * time.Millisecond,
			IdlePollInterval:   20 * time.Millisecond,
			Retention:          time.Hour,
		},
		LLM: config.LLMConfig{
			Provider:       "openai",
			KeyStrategy:    "exhaustion",
			RequestTimeout: time.Second,
			Cooldown:       time.Minute,
			OpenAIAPIKeys:  "sk-test-1\nsk-test-2",
			OpenAIBaseURL:  "http://127.0.0.1:1",
			OpenAIModel:    "gpt-4o-mini",
			GoogleModel:    "gemini-2.0-flash",
		},
		Generator: config.GeneratorConfig{
			PromptTemplate: config.DefaultPromptTemplate,
			OutputDir:      filepath.Join(dir, "notes"),
		},
	}
}

func TestNewApplication_WiresFileBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApplication(ctx, testConfig(t), logger)
	require.NoError(t, err)
	defer app.cleanup()

	assert.False(t, app.engine.IsRunning(), "engine starts only in Run")
	assert.Nil(t, app.db)
	assert.Nil(t, app.nc)

	id, err := app.dispatcher.Enqueue(ctx, generation.QueueName, map[string]string{"concept": "Entropy"}, "")
	require.NoError(t, err)

	got, err := app.dispatcher.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generation.QueueName, got.QueueName)

	stats := app.dispatcher.Stats()
	assert.Contains(t, stats.Queues, generation.QueueName)
}

func TestNewUpstreamClient_RejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t).LLM
	cfg.KeyStrategy = "random"
	_, err := newUpstreamClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
