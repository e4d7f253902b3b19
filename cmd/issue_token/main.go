package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/usecase"
)

// issue_token signs a session credential with the configured secret so the
// guarded routes can be exercised locally:
//
//	go run ./cmd/issue_token -user 1 -ttl 2h
func main() {
	userID := flag.String("user", "", "user id to embed in the credential (must exist in newsroom.users)")
	ttl := flag.Duration("ttl", time.Hour, "credential lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatalf("-user is required")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Identity.Mode == "remote" {
		log.Fatalf("identity mode is remote; credentials are issued by the external provider")
	}

	tokens := usecase.NewTokenIdentityProvider([]byte(cfg.Identity.JWTSecret), cfg.Identity.JWTIssuer, nil, cfg.Identity.Timeout, zap.NewNop())
	token, err := tokens.Issue(*userID, *ttl)
	if err != nil {
		log.Fatalf("issue credential: %v", err)
	}

	fmt.Println(token)
}
