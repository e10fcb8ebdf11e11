package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lacquerai/sentiment/internal/protocol"
	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	_ "github.com/lacquerai/sentiment/internal/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, mock *provider.MockProvider) *provider.Registry {
	t.Helper()

	registry := provider.NewRegistry(true)
	require.NoError(t, registry.Register(provider.Backend{
		Name:         "mock",
		DefaultModel: "stars-v1",
		New: func(ctx context.Context, model string) (provider.Provider, error) {
			return mock, nil
		},
	}))
	require.NoError(t, registry.Register(provider.Backend{
		Name:         "broken",
		DefaultModel: "stars-v1",
		New: func(ctx context.Context, model string) (provider.Provider, error) {
			return nil, errors.New("weights not found")
		},
	}))
	return registry
}

func newMock() *provider.MockProvider {
	return provider.NewMockProvider("mock", []provider.Info{{ID: "stars-v1", Provider: "mock"}})
}

func TestServe_Transcript(t *testing.T) {
	mock := newMock().
		SetResponse("Skvělé jídlo", "5 stars", 0.9).
		SetResponse("Hrozné", "1 star", 0.8).
		SetResponse("odd", "6 stars", 0.5).
		SetError("fail", errors.New("backend unavailable"))

	in := strings.NewReader("Skvělé jídlo\n\n   \nHrozné\nfail\nodd\n")
	var out bytes.Buffer

	err := serve(context.Background(), newTestRegistry(t, mock), serveOptions{Provider: "mock"}, in, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, protocol.ReadySentinel, lines[0])
	assert.JSONEq(t, `{"score":2,"confidence":0.9}`, lines[1])
	assert.JSONEq(t, `{"score":-2,"confidence":0.8}`, lines[2])
	assert.JSONEq(t, `{"error":"backend unavailable"}`, lines[3])
	assert.Contains(t, lines[4], "out of range")

	assert.Equal(t, []string{"Skvělé jídlo", "Hrozné", "fail", "odd"}, mock.Calls())
	assert.True(t, mock.Closed())
}

func TestServe_EmptyInput(t *testing.T) {
	mock := newMock()
	var out bytes.Buffer

	err := serve(context.Background(), newTestRegistry(t, mock), serveOptions{Provider: "mock"}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, "READY\n", out.String())
	assert.Empty(t, mock.Calls())
}

func TestServe_InitFailure(t *testing.T) {
	tests := []struct {
		name     string
		opts     serveOptions
		expected string
	}{
		{
			name:     "factory fails",
			opts:     serveOptions{Provider: "broken"},
			expected: `{"error":"weights not found"}`,
		},
		{
			name:     "unknown provider",
			opts:     serveOptions{Provider: "nope"},
			expected: `{"error":"provider nope not found"}`,
		},
		{
			name:     "unsupported model",
			opts:     serveOptions{Provider: "mock", Model: "stars-v9"},
			expected: `{"error":"model stars-v9 not supported by provider mock"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock()
			var out bytes.Buffer

			err := serve(context.Background(), newTestRegistry(t, mock), tt.opts, strings.NewReader("never read\n"), &out)
			require.Error(t, err)

			var initErr *sentiment.InitError
			assert.ErrorAs(t, err, &initErr)
			assert.Equal(t, tt.expected+"\n", out.String())
			assert.NotContains(t, out.String(), protocol.ReadySentinel)
			assert.Empty(t, mock.Calls())
		})
	}
}

func TestServe_MetricsListenFailure(t *testing.T) {
	mock := newMock()
	var out bytes.Buffer

	opts := serveOptions{Provider: "mock", MetricsAddr: "256.0.0.1:99999"}
	err := serve(context.Background(), newTestRegistry(t, mock), opts, strings.NewReader("hello\n"), &out)
	require.Error(t, err)

	assert.Contains(t, out.String(), `"error":"failed to listen on 256.0.0.1:99999`)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Empty(t, mock.Calls())
	assert.False(t, mock.Closed())
}

func TestServe_Lexicon(t *testing.T) {
	registry, err := newRegistry(true)
	require.NoError(t, err)

	var out bytes.Buffer
	err = serve(context.Background(), registry, serveOptions{Provider: "lexicon"}, strings.NewReader("super\nne super\n"), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "READY", lines[0])
	assert.JSONEq(t, `{"score":2,"confidence":0.9}`, lines[1])
	assert.JSONEq(t, `{"score":-2,"confidence":0.75}`, lines[2])
}

func TestBackends(t *testing.T) {
	assert.Equal(t, []string{"python", "huggingface", "openai", "anthropic", "lexicon"}, backendNames())

	registry, err := newRegistry(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "huggingface", "lexicon", "openai", "python"}, registry.ListProviders())

	backend, err := registry.Backend(defaultProvider)
	require.NoError(t, err)
	assert.Equal(t, provider.DefaultModel, backend.DefaultModel)
}
