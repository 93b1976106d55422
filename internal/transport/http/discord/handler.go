package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/radhhh/flae-bot/internal/domain"
)

// Dispatcher handles verified invocations.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv domain.Invocation) *domain.Response
}

// Handler serves the Discord interactions endpoint.
type Handler struct {
	dispatcher Dispatcher
	timeout    time.Duration
}

// NewHandler creates a handler. timeout bounds each dispatch so the reply
// lands inside Discord's response window.
func NewHandler(dispatcher Dispatcher, timeout time.Duration) *Handler {
	return &Handler{dispatcher: dispatcher, timeout: timeout}
}

// RegisterRoutes mounts the signed interactions endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo, key ed25519.PublicKey) {
	e.POST("/interactions", h.Interactions, VerifySignature(key))
}

// Interactions answers one interaction webhook.
func (h *Handler) Interactions(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	var in Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if in.Type == InteractionPing {
		return c.JSON(http.StatusOK, &InteractionResponse{Type: ResponsePong})
	}

	inv, err := in.Invocation()
	if err != nil {
		log.Printf("WARN: unhandled interaction %s of type %d: %v", in.ID, in.Type, err)
		return c.JSON(http.StatusOK, Render(&domain.Response{Summary: "Unhandled interaction type.", Ephemeral: true}))
	}

	ctx := c.Request().Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	resp := h.dispatcher.Dispatch(ctx, inv)
	return c.JSON(http.StatusOK, Render(resp))
}
