package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/opmesh/core"
)

func newTestExecutor(t *testing.T, status int, body string, seen *map[string]any) *Executor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	return NewFromClient(&client)
}

func TestExecutor_Execute(t *testing.T) {
	var seen map[string]any
	e := newTestExecutor(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-sonnet-20241022",
		"content": [{"type": "text", "text": "{\"id\": 1}"}],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`, &seen)

	res, err := e.Execute(context.Background(), "alpha", core.NewOperation("alpha", "create", "vm", map[string]any{"size": "s"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 1.0}, res)

	require.NotNil(t, seen)
	assert.Equal(t, "claude-3-5-sonnet-20241022", seen["model"])
	messages, ok := seen["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Contains(t, mustJSON(t, messages[0]), `create`)
	assert.NotEmpty(t, seen["system"])
}

func TestExecutor_NoText(t *testing.T) {
	e := newTestExecutor(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-sonnet-20241022",
		"content": [],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 10, "output_tokens": 0}
	}`, nil)

	_, err := e.Execute(context.Background(), "alpha", core.Operation{Action: "create"})
	assert.Error(t, err)
}

func TestExecutor_APIError(t *testing.T) {
	e := newTestExecutor(t, http.StatusInternalServerError,
		`{"type": "error", "error": {"type": "api_error", "message": "overloaded"}}`, nil)

	_, err := e.Execute(context.Background(), "alpha", core.Operation{Action: "create"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic api error")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
