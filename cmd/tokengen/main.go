// Command tokengen prints an operator token for the agentkit API, signed
// with the configured auth.jwt_secret.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/phrazzld/agentkit/internal/config"
	"github.com/phrazzld/agentkit/internal/service/auth"
)

func main() {
	subject := flag.String("subject", "", "operator name stored in the token subject (required)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if *subject == "" {
		log.Fatal("tokengen: -subject is required")
	}

	var opts []config.LoadOption
	if *configPath != "" {
		opts = append(opts, config.WithConfigFile(*configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		log.Fatalf("tokengen: failed to load configuration: %v", err)
	}

	svc, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		log.Fatalf("tokengen: %v", err)
	}

	token, err := svc.GenerateToken(context.Background(), *subject, *ttl)
	if err != nil {
		log.Fatalf("tokengen: %v", err)
	}
	fmt.Println(token)
}
