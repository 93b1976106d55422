package discord

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radhhh/flae-bot/internal/config"
	"github.com/radhhh/flae-bot/internal/dispatch"
	"github.com/radhhh/flae-bot/internal/domain"
	"github.com/radhhh/flae-bot/internal/service"
	"github.com/radhhh/flae-bot/policy"
	"github.com/radhhh/flae-bot/tests/helpers"
)

func decode(t *testing.T, raw string) *Interaction {
	t.Helper()
	var in Interaction
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	return &in
}

func TestCommandInvocation(t *testing.T) {
	in := decode(t, `{
		"id": "i1", "type": 2,
		"member": {"user": {"id": "u1"}},
		"data": {"name": "alloc", "options": [
			{"name": "set", "type": 1, "options": [
				{"name": "subject", "type": 3, "value": "math"},
				{"name": "hours", "type": 10, "value": 7.5}
			]}
		]}
	}`)

	inv, err := in.Invocation()
	require.NoError(t, err)
	assert.Equal(t, "i1", inv.ID)
	assert.Equal(t, "u1", inv.UserID)
	assert.Equal(t, domain.InvocationKindCommand, inv.Kind)
	assert.Equal(t, dispatch.CommandAllocSet, inv.Command)
	assert.Equal(t, "math", inv.Field("subject"))
	assert.Equal(t, "7.5", inv.Field("hours"))
}

func TestComponentAndModalInvocation(t *testing.T) {
	in := decode(t, `{"id": "i2", "type": 3, "user": {"id": "u1"}, "data": {"custom_id": "out:s1"}}`)
	inv, err := in.Invocation()
	require.NoError(t, err)
	assert.Equal(t, domain.InvocationKindButton, inv.Kind)
	assert.Equal(t, domain.ControlClockOut, inv.Control)
	assert.Equal(t, "s1", inv.Target)

	in = decode(t, `{"id": "i3", "type": 5, "user": {"id": "u1"}, "data": {
		"custom_id": "modal_adjust:s1",
		"components": [{"type": 1, "components": [{"type": 4, "custom_id": "duration", "value": "+15m"}]}]
	}}`)
	inv, err = in.Invocation()
	require.NoError(t, err)
	assert.Equal(t, domain.InvocationKindModal, inv.Kind)
	assert.Equal(t, domain.ControlAdjustTime, inv.Control)
	assert.Equal(t, "+15m", inv.Field("duration"))

	in = decode(t, `{"id": "i4", "type": 3, "user": {"id": "u1"}, "data": {"custom_id": "nonsense"}}`)
	_, err = in.Invocation()
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	out := Render(&domain.Response{
		Summary:  "hi",
		Controls: []domain.ControlID{domain.ControlPause, domain.ControlClockOut},
		Session:  &domain.SessionView{SessionID: "s1"},
		Update:   true,
	})
	assert.Equal(t, ResponseUpdateMessage, out.Type)
	require.Len(t, out.Data.Components, 1)
	row := out.Data.Components[0].Components
	require.Len(t, row, 2)
	assert.Equal(t, "pause:s1", row[0].CustomID)
	assert.Equal(t, "out:s1", row[1].CustomID)
	assert.Equal(t, styleDanger, row[1].Style)

	out = Render(&domain.Response{Summary: "nope", Ephemeral: true, Update: true})
	assert.Equal(t, ResponseMessage, out.Type)
	assert.Equal(t, flagEphemeral, out.Data.Flags)
	assert.Empty(t, out.Data.Components)

	out = Render(&domain.Response{Modal: &domain.Modal{
		Control: domain.ControlEditGoal, Target: "s1", Title: "Edit",
		Fields: []domain.ModalField{{ID: "goal", Label: "Goal", Paragraph: true}},
	}})
	assert.Equal(t, ResponseModal, out.Type)
	assert.Equal(t, "modal_goal:s1", out.Data.CustomID)
	assert.Equal(t, textParagraph, out.Data.Components[0].Components[0].Style)
}

type signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newSigner(t *testing.T) *signer {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &signer{priv: priv, pub: pub}
}

func (s *signer) request(body string) *http.Request {
	ts := "1700000000"
	sig := ed25519.Sign(s.priv, append([]byte(ts), body...))
	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerSignature, hex.EncodeToString(sig))
	return req
}

func newServer(t *testing.T, key ed25519.PublicKey) *echo.Echo {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	clock := helpers.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	svc := service.New(helpers.NewTestSQLiteStore(t), clock, config.Default(), engine)

	e := echo.New()
	NewHandler(dispatch.New(svc), time.Second).RegisterRoutes(e, key)
	return e
}

func TestInteractionsEndpoint(t *testing.T) {
	s := newSigner(t)
	e := newServer(t, s.pub)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, s.request(`{"id":"p","type":1}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":1}`, rec.Body.String())

	body := `{"id":"i1","type":2,"member":{"user":{"id":"u1"}},"data":{"name":"session","options":[{"name":"in","type":1,"options":[{"name":"subject","type":3,"value":"math"}]}]}}`
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, s.request(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var out InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, ResponseMessage, out.Type)
	assert.Contains(t, out.Data.Content, "Clocked in!")
	require.Len(t, out.Data.Components, 1)
	assert.True(t, strings.HasPrefix(out.Data.Components[0].Components[0].CustomID, "pause:"))

	// Redelivery answers with the same content.
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, s.request(body))
	var again InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, out, again)
}

func TestInteractionsRejectsBadSignature(t *testing.T) {
	s := newSigner(t)
	e := newServer(t, s.pub)

	req := s.request(`{"id":"p","type":1}`)
	req.Body = io.NopCloser(strings.NewReader(`{"id":"p","type":2}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = s.request(`{"id":"p","type":1}`)
	req.Header.Del(headerSignature)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParsePublicKey(t *testing.T) {
	s := newSigner(t)
	key, err := ParsePublicKey(hex.EncodeToString(s.pub))
	require.NoError(t, err)
	assert.Equal(t, s.pub, key)

	_, err = ParsePublicKey("abcd")
	assert.Error(t, err)
	_, err = ParsePublicKey("zz")
	assert.Error(t, err)
}
