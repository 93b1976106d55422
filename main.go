package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/radhhh/flae-bot/internal/config"
	"github.com/radhhh/flae-bot/internal/dispatch"
	"github.com/radhhh/flae-bot/internal/repository"
	"github.com/radhhh/flae-bot/internal/service"
	server "github.com/radhhh/flae-bot/internal/transport/http"
	"github.com/radhhh/flae-bot/policy"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting flae-bot...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Store: %s", cfg.StoreDriver)
	log.Printf("Week: starts %s (%s)", cfg.WeekStart, cfg.Location)
	log.Printf("Reopen window: %s, count unconfirmed: %v", cfg.ReopenWindow, cfg.CountUnconfirmed)

	// Initialize store
	db, err := repository.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.Load(ctx, cfg.PolicyFile)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize service and dispatcher
	svc := service.New(db, service.SystemClock{}, cfg, policyEngine)
	dispatcher := dispatch.New(svc)

	e, err := server.NewServer(cfg, dispatcher)
	if err != nil {
		log.Fatalf("Failed to configure server: %v", err)
	}
	e.Debug = cfg.LogLevel == "debug"

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down flae-bot...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("flae-bot stopped")
}
