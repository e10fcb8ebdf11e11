package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	_ "github.com/lacquerai/sentiment/internal/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
		}},
		"usage": map[string]any{
			"prompt_tokens":     60,
			"completion_tokens": 12,
			"total_tokens":      72,
		},
	})
	return string(body)
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewProvider(context.Background(), "", &Config{
		APIKey:  "sk-test",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return p
}

func TestProvider_Classify(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedLabel sentiment.Label
		expectedConf  float64
		errContains   string
	}{
		{
			name:          "positive",
			content:       `{"stars": 5, "confidence": 0.92}`,
			expectedLabel: "5 stars",
			expectedConf:  0.92,
		},
		{
			name:          "negative in a code fence",
			content:       "```json\n{\"stars\": 1, \"confidence\": 0.8}\n```",
			expectedLabel: "1 star",
			expectedConf:  0.8,
		},
		{
			name:          "missing confidence",
			content:       `{"stars": 3}`,
			expectedLabel: "3 stars",
			expectedConf:  1,
		},
		{
			name:          "out of range stars still produce a label",
			content:       `{"stars": 7, "confidence": 0.5}`,
			expectedLabel: "7 stars",
			expectedConf:  0.5,
		},
		{
			name:        "prose reply",
			content:     "The sentiment is positive.",
			errContains: "not a JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)

				var req map[string]any
				require.NoError(t, json.Unmarshal(body, &req))
				assert.Equal(t, DefaultModel, req["model"])
				assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])

				messages := req["messages"].([]any)
				require.Len(t, messages, 2)
				assert.Equal(t, "Tohle je skvělé!", messages[1].(map[string]any)["content"])

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(completion(tt.content)))
			})

			result, err := p.Classify(context.Background(), "Tohle je skvělé!")
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedLabel, result.Label)
			assert.Equal(t, tt.expectedConf, result.Confidence)
		})
	}
}

func TestProvider_ClassifyAPIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	})

	_, err := p.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create OpenAI completion")

	_, err = p.Classify(context.Background(), "   ")
	assert.ErrorIs(t, err, sentiment.ErrEmptyText)
}

func TestProvider_ListModels(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"id":"gpt-4o-mini","object":"model","created":1721172741,"owned_by":"system"},
			{"id":"text-embedding-3-small","object":"model","created":1705948997,"owned_by":"system"}
		]}`))
	})

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, provider.Info{
		ID:          "gpt-4o-mini",
		Name:        "gpt-4o-mini",
		Provider:    "openai",
		CreatedAt:   "2024-07-16T23:32:21Z",
		Description: "Model owned by system",
		Features:    []string{"chat", "sentiment-rating"},
	}, models[0])
}

func TestNewProvider(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("OPENAI_KEY", "")
		t.Setenv("OPENAI_TOKEN", "")

		_, err := NewProvider(context.Background(), "gpt-4o", &Config{})
		assert.Error(t, err)
	})

	t.Run("reads the key from the environment", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-env")

		p, err := NewProvider(context.Background(), "gpt-4o", nil)
		require.NoError(t, err)
		assert.Equal(t, "sk-env", p.config.APIKey)
		assert.Equal(t, "gpt-4o", p.model)
		assert.Equal(t, "openai", p.GetName())
	})
}
