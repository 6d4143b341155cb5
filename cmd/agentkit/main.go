// Package main implements the agentkit server: the task engine, the
// generation worker and the operator HTTP API in one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/agentkit/internal/config"
	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/phrazzld/agentkit/internal/redact"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to ./agentkit.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("agentkit: %v", err)
	}
}

func run(configPath string) error {
	var opts []config.LoadOption
	if configPath != "" {
		opts = append(opts, config.WithConfigFile(configPath))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	// Credentials must never show up in logs or persisted errors.
	redact.RegisterSecrets(cfg.LLM.Credentials("openai")...)
	redact.RegisterSecrets(cfg.LLM.Credentials("google")...)
	redact.RegisterSecrets(cfg.Auth.JWTSecret)

	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"storage_backend", cfg.Storage.Backend,
		"provider", cfg.LLM.Provider,
		"fallback_provider", cfg.LLM.FallbackProvider,
		"key_strategy", cfg.LLM.KeyStrategy,
		"nats_enabled", cfg.NATS.URL != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
