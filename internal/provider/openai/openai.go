package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/lacquerai/sentiment/internal/utils"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o-mini"

// Provider rates sentiment with an OpenAI chat model
type Provider struct {
	name   string
	model  string
	client *openai.Client
	config *Config
}

// Config contains configuration for the OpenAI provider
type Config struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	MaxTokens  int           `yaml:"max_tokens"`
	UserAgent  string        `yaml:"user_agent"`
	OrgID      string        `yaml:"organization_id"`
	JSONMode   *bool         `yaml:"json_mode"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	jsonMode := true
	config := &Config{
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		MaxTokens:  64,
		UserAgent:  "sentiment/1.0",
		JSONMode:   &jsonMode,
	}

	if baseURL := os.Getenv("SENTIMENT_OPENAI_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}

	return config
}

// NewProvider creates a new OpenAI provider
func NewProvider(ctx context.Context, model string, config *Config) (*Provider, error) {
	if config == nil {
		config = &Config{}
	}

	defaults := DefaultConfig()
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
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.JSONMode == nil {
		config.JSONMode = defaults.JSONMode
	}

	if config.APIKey == "" {
		config.APIKey = GetOpenAIAPIKeyFromEnv()
	}
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(config.MaxRetries),
		option.WithHeader("User-Agent", config.UserAgent),
		option.WithHTTPClient(&http.Client{
			Timeout: config.Timeout,
		}),
	}
	if config.OrgID != "" {
		opts = append(opts, option.WithOrganization(config.OrgID))
	}

	client := openai.NewClient(opts...)

	log.Info().
		Str("base_url", config.BaseURL).
		Str("model", model).
		Msg("OpenAI provider initialized")

	return &Provider{
		name:   "openai",
		model:  model,
		client: &client,
		config: config,
	}, nil
}

// Classify asks the chat model for a star rating of text
func (p *Provider) Classify(ctx context.Context, text string) (*sentiment.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return nil, sentiment.ErrEmptyText
	}

	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(provider.RatingPrompt),
			openai.UserMessage(text),
		},
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(int64(p.config.MaxTokens)),
		N:                   openai.Int(1),
	}
	if *p.config.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI completion: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, errors.New("OpenAI returned no choices")
	}

	log.Debug().
		Str("model", p.model).
		Int64("prompt_tokens", response.Usage.PromptTokens).
		Int64("completion_tokens", response.Usage.CompletionTokens).
		Msg("OpenAI API call completed")

	return provider.ParseRating(response.Choices[0].Message.Content)
}

// GetName returns the provider name
func (p *Provider) GetName() string {
	return p.name
}

// ListModels fetches the chat models available to the API key
func (p *Provider) ListModels(ctx context.Context) ([]provider.Info, error) {
	response, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]provider.Info, 0, len(response.Data))
	for _, model := range response.Data {
		if strings.Contains(model.ID, "embedding") {
			continue
		}

		models = append(models, provider.Info{
			ID:          model.ID,
			Name:        model.ID,
			Provider:    p.name,
			CreatedAt:   time.Unix(model.Created, 0).UTC().Format(time.RFC3339),
			Description: fmt.Sprintf("Model owned by %s", model.OwnedBy),
			Features:    []string{"chat", "sentiment-rating"},
		})
	}

	log.Debug().
		Int("model_count", len(models)).
		Str("provider", p.name).
		Msg("Successfully fetched models from OpenAI API")

	return models, nil
}

// Close cleans up resources
func (p *Provider) Close() error {
	return nil
}

// GetOpenAIAPIKeyFromEnv retrieves the OpenAI API key from environment variables
func GetOpenAIAPIKeyFromEnv() string {
	return utils.FirstEnv(
		"OPENAI_API_KEY",
		"OPENAI_KEY",
		"OPENAI_TOKEN",
	)
}
