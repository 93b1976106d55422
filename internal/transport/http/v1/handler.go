// Package v1 provides the JSON API used by flaectl and other non-Discord clients.
package v1

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/radhhh/flae-bot/internal/domain"
)

// Dispatcher handles invocations.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv domain.Invocation) *domain.Response
}

// Handler handles HTTP requests.
type Handler struct {
	dispatcher Dispatcher
	apiKey     string
	timeout    time.Duration
}

// NewHandler creates a new handler. An empty apiKey disables the invocation
// endpoint.
func NewHandler(dispatcher Dispatcher, apiKey string, timeout time.Duration) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)

	if h.apiKey == "" {
		log.Printf("WARN: http.api_key is not set; /v1/invocations is disabled")
		return
	}
	g := e.Group("/v1")
	g.Use(middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) == 1, nil
	}))
	g.POST("/invocations", h.Invoke)
}

// Root identifies the service.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "flae-bot",
	})
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Invoke dispatches one invocation. The invocation id is the idempotency
// key: posting the same body twice returns the same response.
// POST /v1/invocations
func (h *Handler) Invoke(c echo.Context) error {
	var inv domain.Invocation
	if err := c.Bind(&inv); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if inv.ID == "" || inv.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "id and user_id are required"})
	}
	switch inv.Kind {
	case domain.InvocationKindCommand, domain.InvocationKindButton, domain.InvocationKindModal:
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown invocation kind"})
	}

	ctx := c.Request().Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	return c.JSON(http.StatusOK, h.dispatcher.Dispatch(ctx, inv))
}
