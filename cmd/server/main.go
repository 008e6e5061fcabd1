package main // Entry point package

import (
	"context"
	"log"  // Logging library
	"time" // GC loop interval

	"github.com/joho/godotenv"    // Loads .env files in local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/auth-service/internal/auth"
	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/router"
	queue_publisher "github.com/iliyamo/auth-service/internal/service/queue_publisher"
)

func main() {
	// Load a local .env when present; real deployments set the environment
	// directly and the file is simply absent.
	_ = godotenv.Load()

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	// Redis is optional: a nil client disables rate limiting.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}

	// Background audit consumer and expired-token sweeper.  Both are
	// housekeeping: the service is correct without them.
	go func() {
		if err := queue.StartAuthAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()
	go sweepExpiredTokens(tokens, cfg.TokenGCInterval)

	provider := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	states := auth.NewStateSigner(cfg.StateSecret)
	authHandler := handler.NewAuthHandler(cfg, users, tokens, states, provider, queue_publisher.PublishAuthEvent)

	e := echo.New() // Create Echo instance
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, cfg, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err)
	}
}

// sweepExpiredTokens periodically deletes refresh rows past their expiry.
// Validity is computed from row fields, so this loop is storage hygiene
// only; an error is logged and the next tick tries again.
func sweepExpiredTokens(tokens *repository.TokenRepo, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := tokens.DeleteExpired(ctx); err != nil {
			log.Printf("token gc: %v", err)
		}
		cancel()
	}
}
