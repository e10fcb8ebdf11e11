package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	_ "github.com/lacquerai/sentiment/internal/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "nlptown/bert-base-multilingual-uncased-sentiment"

func testConfig(url string) *Config {
	return &Config{
		Token:       "hf_test",
		BaseURL:     url,
		HubURL:      url,
		Timeout:     5 * time.Second,
		LoadTimeout: 2 * time.Second,
		RetryDelay:  5 * time.Millisecond,
	}
}

func TestProvider_Classify(t *testing.T) {
	t.Run("picks the highest scoring label", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models/"+testModel, r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req inferenceRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.Options.WaitForModel)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[[
				{"label":"1 star","score":0.02},
				{"label":"5 stars","score":0.9},
				{"label":"4 stars","score":0.06},
				{"label":"3 stars","score":0.01},
				{"label":"2 stars","score":0.01}
			]]`))
		}))
		defer server.Close()

		p, err := NewProvider(context.Background(), testModel, testConfig(server.URL))
		require.NoError(t, err)

		result, err := p.Classify(context.Background(), "Tohle je skvělé!")
		require.NoError(t, err)
		assert.Equal(t, sentiment.Label("5 stars"), result.Label)
		assert.Equal(t, 0.9, result.Confidence)
	})

	t.Run("server error is returned", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				_, _ = w.Write([]byte(`[{"label":"3 stars","score":0.5}]`))
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Input is too long"}`))
		}))
		defer server.Close()

		p, err := NewProvider(context.Background(), testModel, testConfig(server.URL))
		require.NoError(t, err)

		_, err = p.Classify(context.Background(), "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.Contains(t, err.Error(), "Input is too long")
	})

	t.Run("blank text is rejected without a request", func(t *testing.T) {
		p := &Provider{name: "huggingface", model: testModel, config: testConfig("http://invalid"), httpClient: http.DefaultClient}
		_, err := p.Classify(context.Background(), "  ")
		assert.ErrorIs(t, err, sentiment.ErrEmptyText)
	})
}

func TestNewProvider(t *testing.T) {
	t.Run("waits for a loading model", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":0.001}`))
				return
			}
			_, _ = w.Write([]byte(`[[{"label":"3 stars","score":0.5}]]`))
		}))
		defer server.Close()

		_, err := NewProvider(context.Background(), testModel, testConfig(server.URL))
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("auth failure fails initialization", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid credentials in Authorization header"}`))
		}))
		defer server.Close()

		_, err := NewProvider(context.Background(), testModel, testConfig(server.URL))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid credentials")
	})

	t.Run("model that never loads times out", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
		}))
		defer server.Close()

		config := testConfig(server.URL)
		config.LoadTimeout = 50 * time.Millisecond

		_, err := NewProvider(context.Background(), testModel, config)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "did not load")
	})

	t.Run("empty model", func(t *testing.T) {
		_, err := NewProvider(context.Background(), "", testConfig("http://invalid"))
		assert.Error(t, err)
	})
}

func TestProvider_ListModels(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []provider.Info
	}{
		{
			name: "text classification model",
			body: `{"id":"` + testModel + `","pipeline_tag":"text-classification","tags":["bert","sentiment"]}`,
			expected: []provider.Info{{
				ID:          testModel,
				Name:        testModel,
				Provider:    "huggingface",
				Description: "bert, sentiment",
				Features:    []string{"text-classification"},
			}},
		},
		{
			name:     "other pipeline",
			body:     `{"id":"gpt2","pipeline_tag":"text-generation"}`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/models/"+testModel, r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := &Provider{name: "huggingface", model: testModel, config: testConfig(server.URL), httpClient: server.Client()}
			models, err := p.ListModels(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, models)
		})
	}

	t.Run("unknown model", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Repository not found"}`))
		}))
		defer server.Close()

		p := &Provider{name: "huggingface", model: "nobody/nothing", config: testConfig(server.URL), httpClient: server.Client()}
		_, err := p.ListModels(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Repository not found")
	})
}

func TestDecodePredictions(t *testing.T) {
	nested, err := DecodePredictions([]byte(`[[{"label":"2 stars","score":0.7}]]`))
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{Label: "2 stars", Score: 0.7}}, nested)

	flat, err := DecodePredictions([]byte(`[{"label":"4 stars","score":0.6}]`))
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{Label: "4 stars", Score: 0.6}}, flat)

	_, err = DecodePredictions([]byte(`[]`))
	assert.Error(t, err)

	_, err = DecodePredictions([]byte(`{"label":"x"}`))
	assert.Error(t, err)
}

func TestBest(t *testing.T) {
	best, err := Best([]Prediction{{"1 star", 0.1}, {"3 stars", 0.6}, {"5 stars", 0.3}})
	require.NoError(t, err)
	assert.Equal(t, "3 stars", best.Label)

	_, err = Best(nil)
	assert.Error(t, err)
}

func TestGetHuggingFaceTokenFromEnv(t *testing.T) {
	t.Setenv("HF_TOKEN", "")
	t.Setenv("HUGGINGFACE_API_KEY", "hf_key")
	assert.Equal(t, "hf_key", GetHuggingFaceTokenFromEnv())
}
