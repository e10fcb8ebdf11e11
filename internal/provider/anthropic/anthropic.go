package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/lacquerai/sentiment/internal/utils"
	"github.com/rs/zerolog/log"
)

// DefaultModel is used when no model is configured
const DefaultModel = "claude-3-5-haiku"

// modelSuffix matches the release date at the end of a model id
var modelSuffix = regexp.MustCompile(`-(\d{8})$`)

// Provider rates sentiment with an Anthropic model
type Provider struct {
	name   string
	model  string
	client *anthropic.Client
	config *Config
}

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	MaxTokens  int           `yaml:"max_tokens"`
	UserAgent  string        `yaml:"user_agent"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	config := &Config{
		BaseURL:    "https://api.anthropic.com",
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		MaxTokens:  64,
		UserAgent:  "sentiment/1.0",
	}
	if baseURL := os.Getenv("SENTIMENT_ANTHROPIC_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}

	return config
}

// NewProvider creates a new Anthropic provider. A model given without a
// release date is resolved to the latest matching release.
func NewProvider(ctx context.Context, model string, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		defaults := DefaultConfig()
		if config.BaseURL == "" {
			config.BaseURL = defaults.BaseURL
		}
		if config.Timeout == 0 {
			config.Timeout = defaults.Timeout
		}
		if config.MaxRetries == 0 {
			config.MaxRetries = defaults.MaxRetries
		}
		if config.MaxTokens == 0 {
			config.MaxTokens = defaults.MaxTokens
		}
		if config.UserAgent == "" {
			config.UserAgent = defaults.UserAgent
		}
	}

	if config.APIKey == "" {
		config.APIKey = GetAnthropicAPIKeyFromEnv()
		if config.APIKey == "" {
			return nil, errors.New("anthropic API key is required")
		}
	}

	if model == "" {
		model = DefaultModel
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(config.MaxRetries),
		option.WithHeader("User-Agent", config.UserAgent),
		option.WithHTTPClient(&http.Client{
			Timeout: config.Timeout,
		}),
	)

	p := &Provider{
		name:   "anthropic",
		model:  model,
		client: &client,
		config: config,
	}

	if !modelSuffix.MatchString(model) && !strings.HasSuffix(model, "-latest") {
		p.resolveAlias(ctx)
	}

	log.Info().
		Str("base_url", config.BaseURL).
		Str("model", p.model).
		Msg("Anthropic provider initialized")

	return p, nil
}

func (p *Provider) resolveAlias(ctx context.Context) {
	models, err := p.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Str("model", p.model).Msg("Could not resolve model alias")
		return
	}

	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}

	resolved, err := p.ModelAlias(p.model, ids)
	if err != nil {
		return
	}
	if resolved != p.model {
		log.Debug().Str("alias", p.model).Str("model", resolved).Msg("Resolved model alias")
		p.model = resolved
	}
}

// Classify asks the model for a star rating of text
func (p *Provider) Classify(ctx context.Context, text string) (*sentiment.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return nil, sentiment.ErrEmptyText
	}

	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(p.config.MaxTokens),
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: provider.RatingPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API call failed: %w", err)
	}

	log.Debug().
		Str("model", p.model).
		Int64("input_tokens", response.Usage.InputTokens).
		Int64("output_tokens", response.Usage.OutputTokens).
		Msg("Anthropic API call completed")

	var content strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return provider.ParseRating(content.String())
}

// GetName returns the provider name
func (p *Provider) GetName() string {
	return p.name
}

// ListModels dynamically fetches available models from the Anthropic API
func (p *Provider) ListModels(ctx context.Context) ([]provider.Info, error) {
	models, err := p.client.Models.List(ctx, anthropic.ModelListParams{
		Limit: anthropic.Int(1000),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	modelInfos := make([]provider.Info, len(models.Data))
	for i, model := range models.Data {
		modelInfos[i] = provider.Info{
			ID:        model.ID,
			Name:      model.DisplayName,
			Provider:  p.name,
			CreatedAt: model.CreatedAt.Format(time.RFC3339),
			Features:  []string{"chat", "sentiment-rating"},
		}
	}

	log.Debug().
		Int("model_count", len(models.Data)).
		Str("provider", p.name).
		Msg("Successfully fetched models from Anthropic API")

	return modelInfos, nil
}

// ResolveModel maps an alias onto one of the available model ids
func (p *Provider) ResolveModel(model string, available []string) (string, error) {
	return p.ModelAlias(model, available)
}

// ModelAlias returns the newest available model whose id starts with model.
// Releases are ordered by their date suffix; ids without a valid date sort
// last, alphabetically. When nothing matches, model is returned unchanged.
func (p *Provider) ModelAlias(model string, available []string) (string, error) {
	if model == "" {
		return "", errors.New("model name is required")
	}

	var matches []string
	for _, id := range available {
		if strings.HasPrefix(id, model) {
			matches = append(matches, id)
		}
	}
	if len(matches) == 0 {
		return model, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		di, iok := releaseDate(matches[i])
		dj, jok := releaseDate(matches[j])
		switch {
		case iok && jok && !di.Equal(dj):
			return di.After(dj)
		case iok != jok:
			return iok
		default:
			return matches[i] < matches[j]
		}
	})

	return matches[0], nil
}

func releaseDate(id string) (time.Time, bool) {
	m := modelSuffix.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, false
	}
	date, err := time.Parse("20060102", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// Close cleans up resources
func (p *Provider) Close() error {
	return nil
}

// GetAnthropicAPIKeyFromEnv retrieves the API key from common environment variables
func GetAnthropicAPIKeyFromEnv() string {
	envVars := []string{
		"ANTHROPIC_API_KEY",
		"CLAUDE_API_KEY",
		"ANTHROPIC_KEY",
	}

	for _, envVar := range envVars {
		if key := strings.TrimSpace(getEnvVar(envVar)); key != "" {
			return key
		}
	}

	return ""
}

// getEnvVar is a helper to get environment variables (can be mocked for testing)
var getEnvVar = func(key string) string {
	env := utils.GetEnvironmentVars()
	return env[key]
}
