package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vernacular/pkg/llm"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
}

func TestOpenAIClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(completion("test response"))
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "test-key", Model: "gpt-4o-mini"})

	resp, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Content)
	assert.Equal(t, llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, resp.Usage)
}

func TestOpenAIClientRequestFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// base_url includes /v1, client appends /chat/completions
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var reqBody map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "gpt-4", reqBody["model"])
		assert.Equal(t, float64(500), reqBody["max_tokens"])
		assert.Equal(t, map[string]any{"type": "json_object"}, reqBody["response_format"])

		messages, ok := reqBody["messages"].([]any)
		assert.True(t, ok)
		assert.Len(t, messages, 2)

		json.NewEncoder(w).Encode(completion("{}"))
	}))
	defer server.Close()

	client := New(&llm.Config{
		BaseURL:   server.URL + "/v1",
		APIKey:    "key",
		Model:     "gpt-4",
		MaxTokens: 500,
		JSONMode:  true,
	})

	_, err := client.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "return JSON"},
		{Role: llm.RoleUser, Content: "test"},
	})
	require.NoError(t, err)
}

func TestOpenAIClientOmitsResponseFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		_, has := reqBody["response_format"]
		assert.False(t, has)
		json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer server.Close()

	_, err := New(&llm.Config{BaseURL: server.URL, Model: "m"}).
		Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	require.NoError(t, err)
}

func TestOpenAIClientAPIError(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error":{"message":"nope"}}`))
		}))

		_, err := New(&llm.Config{BaseURL: server.URL, APIKey: "bad-key", Model: "gpt-4"}).
			Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
		server.Close()

		var apiErr *llm.APIError
		require.True(t, errors.As(err, &apiErr), "status %d", tt.status)
		assert.Equal(t, tt.status, apiErr.StatusCode)
		assert.Equal(t, tt.temporary, apiErr.Temporary())
	}
}

func TestOpenAIClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := New(&llm.Config{BaseURL: server.URL}).
		Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	assert.Error(t, err)
}

func TestOpenAIClientProviderInterface(t *testing.T) {
	var _ llm.Provider = (*Client)(nil)
}
