// File: internal/llmclient/openai_client_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
)

func TestOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(config.LLMConfig{Provider: config.ProviderOpenAI}, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestOpenAIClientGenerateResponse(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "connect_follow"}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(config.LLMConfig{
		Provider:   config.ProviderOpenAI,
		Model:      "gpt-4o-mini",
		APIKey:     "sk-test",
		Endpoint:   server.URL,
		APITimeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	got, err := client.GenerateResponse(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "classify",
		UserPrompt:   "Connect with 2 engineers",
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, MaxTokens: 64},
	})
	require.NoError(t, err)
	assert.Equal(t, "connect_follow", got)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	respFormat, ok := captured["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", respFormat["type"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
}

func TestNewClientFactory(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("gemini", func(t *testing.T) {
		client, err := NewClient(config.LLMConfig{Provider: config.ProviderGemini, APIKey: "k", Model: "m"}, logger)
		require.NoError(t, err)
		assert.IsType(t, &GeminiClient{}, client)
	})

	t.Run("openai", func(t *testing.T) {
		client, err := NewClient(config.LLMConfig{Provider: config.ProviderOpenAI, APIKey: "k", Model: "m"}, logger)
		require.NoError(t, err)
		assert.IsType(t, &OpenAIClient{}, client)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClient(config.LLMConfig{Provider: "mystery"}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})
}
