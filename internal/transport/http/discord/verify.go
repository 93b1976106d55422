package discord

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	headerSignature = "X-Signature-Ed25519"
	headerTimestamp = "X-Signature-Timestamp"

	maxBodyBytes = 1 << 20
)

// ParsePublicKey decodes the hex application public key.
func ParsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode discord public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("discord public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// VerifySignature rejects requests whose Ed25519 signature over
// timestamp||body does not match key. The body is restored for the handler.
func VerifySignature(key ed25519.PublicKey) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			sig, err := hex.DecodeString(req.Header.Get(headerSignature))
			timestamp := req.Header.Get(headerTimestamp)
			if err != nil || len(sig) != ed25519.SignatureSize || timestamp == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid request signature"})
			}

			body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			}
			msg := make([]byte, 0, len(timestamp)+len(body))
			msg = append(msg, timestamp...)
			msg = append(msg, body...)
			if !ed25519.Verify(key, msg, sig) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid request signature"})
			}

			req.Body = io.NopCloser(bytes.NewReader(body))
			return next(c)
		}
	}
}
