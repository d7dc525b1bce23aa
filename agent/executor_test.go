package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/llm"
)

func TestWebhookExecutor_Execute(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var received webhookToolRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		mu.Lock()
		assert.NoError(t, json.Unmarshal(raw, &received))
		mu.Unlock()
		json.NewEncoder(w).Encode(ToolResult{Success: true, Text: "light is on"})
	}))
	t.Cleanup(server.Close)

	executor := NewWebhookExecutor(server.URL, server.Client(), 5*time.Second)
	result, err := executor.Execute(context.Background(), llm.ToolCall{
		Id:        "call_1",
		Name:      "light_turn_on",
		Arguments: `{"entity":"light.kitchen"}`,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "light is on", result.Text)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "call_1", received.CallId)
	assert.Equal(t, "light_turn_on", received.Name)
	assert.JSONEq(t, `{"entity":"light.kitchen"}`, string(received.Arguments))
}

func TestWebhookExecutor_EmptyArgumentsSentAsEmptyObject(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request webhookToolRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.JSONEq(t, `{}`, string(request.Arguments))
		json.NewEncoder(w).Encode(ToolResult{Success: true, Text: "ok"})
	}))
	t.Cleanup(server.Close)

	executor := NewWebhookExecutor(server.URL, server.Client(), 5*time.Second)
	_, err := executor.Execute(context.Background(), llm.ToolCall{Id: "c", Name: "no_args"})
	require.NoError(t, err)
}

func TestWebhookExecutor_ErrorStatusIsUnsuccessfulNotFatal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "entity not allowed", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	executor := NewWebhookExecutor(server.URL, server.Client(), 5*time.Second)
	result, err := executor.Execute(context.Background(), llm.ToolCall{Id: "c", Name: "denied", Arguments: "{}"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Text, "403")
}

func TestWebhookExecutor_TransportErrorIsFatal(t *testing.T) {
	t.Parallel()

	executor := NewWebhookExecutor("http://127.0.0.1:1/nope", nil, time.Second)
	_, err := executor.Execute(context.Background(), llm.ToolCall{Id: "c", Name: "x", Arguments: "{}"})
	assert.Error(t, err)
}
