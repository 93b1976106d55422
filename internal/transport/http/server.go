// Package http provides the HTTP server implementation for the bot.
package http

import (
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/radhhh/flae-bot/internal/config"
	"github.com/radhhh/flae-bot/internal/transport/http/discord"
	v1 "github.com/radhhh/flae-bot/internal/transport/http/v1"
)

// Dispatcher is what both the Discord endpoint and the v1 API drive.
type Dispatcher interface {
	discord.Dispatcher
}

// NewServer creates and configures the HTTP server. The Discord endpoint is
// only mounted when a public key is configured.
func NewServer(cfg *config.Config, dispatcher Dispatcher) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Handlers
	v1.NewHandler(dispatcher, cfg.APIKey, cfg.RequestTimeout).RegisterRoutes(e)

	if cfg.DiscordPublicKey == "" {
		log.Printf("WARN: discord.public_key is not set; /interactions is disabled")
		return e, nil
	}
	key, err := discord.ParsePublicKey(cfg.DiscordPublicKey)
	if err != nil {
		return nil, fmt.Errorf("configure interactions endpoint: %w", err)
	}
	discord.NewHandler(dispatcher, cfg.RequestTimeout).RegisterRoutes(e, key)

	return e, nil
}
