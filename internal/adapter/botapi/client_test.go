package botapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radhhh/flae-bot/internal/domain"
)

func TestInvokePostsInvocation(t *testing.T) {
	var got domain.Invocation
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invocations", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary":"ok","controls":["pause"],"ephemeral":false,"state":"ACTIVE"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret")
	inv := domain.Invocation{ID: "i1", UserID: "u1", Kind: domain.InvocationKindCommand, Command: "session in",
		Fields: map[string]string{"subject": "math"}}

	resp, err := client.Invoke(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, inv, got)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, domain.SessionStatusActive, resp.State)
	assert.Equal(t, []domain.ControlID{domain.ControlPause}, resp.Controls)
}

func TestDispatchReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	resp := NewClient(server.URL, "").Dispatch(context.Background(), domain.Invocation{ID: "i1"})
	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Summary, "401")
}
