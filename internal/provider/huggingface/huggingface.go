package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/lacquerai/sentiment/internal/utils"
	"github.com/rs/zerolog/log"
)

const textClassification = "text-classification"

// Provider classifies text through the Hugging Face Inference API
type Provider struct {
	name       string
	model      string
	config     *Config
	httpClient *http.Client
}

// Config contains configuration for the Hugging Face provider
type Config struct {
	Token       string        `yaml:"token"`
	BaseURL     string        `yaml:"base_url"`
	HubURL      string        `yaml:"hub_url"`
	Timeout     time.Duration `yaml:"timeout"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	UserAgent   string        `yaml:"user_agent"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	config := &Config{
		BaseURL:     "https://router.huggingface.co/hf-inference",
		HubURL:      "https://huggingface.co",
		Timeout:     60 * time.Second,
		LoadTimeout: 5 * time.Minute,
		RetryDelay:  2 * time.Second,
		UserAgent:   "sentiment/1.0",
	}

	if baseURL := os.Getenv("SENTIMENT_HUGGINGFACE_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}

	return config
}

// inferenceRequest is the body sent to the inference endpoint
type inferenceRequest struct {
	Inputs  string           `json:"inputs"`
	Options inferenceOptions `json:"options"`
}

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

// Prediction is one label/score pair returned by a text-classification pipeline
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// apiError is the error body returned by the inference endpoint
type apiError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// modelInfo is the subset of the hub model metadata we check
type modelInfo struct {
	ID          string   `json:"id"`
	ModelID     string   `json:"modelId"`
	PipelineTag string   `json:"pipeline_tag"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"createdAt"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode    int
	Message       string
	EstimatedTime float64
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Hugging Face API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("Hugging Face API returned status %d: %s", e.StatusCode, e.Message)
}

// Loading reports whether the model is still being loaded server side
func (e *StatusError) Loading() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// NewProvider creates a provider for model and waits until the model answers.
func NewProvider(ctx context.Context, model string, config *Config) (*Provider, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.HubURL == "" {
		config.HubURL = defaults.HubURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.LoadTimeout == 0 {
		config.LoadTimeout = defaults.LoadTimeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.Token == "" {
		config.Token = GetHuggingFaceTokenFromEnv()
	}

	if model == "" {
		return nil, errors.New("model name is required")
	}

	p := &Provider{
		name:   "huggingface",
		model:  model,
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}

	if err := p.warmUp(ctx); err != nil {
		return nil, err
	}

	log.Info().
		Str("base_url", config.BaseURL).
		Str("model", model).
		Bool("authenticated", config.Token != "").
		Msg("Hugging Face provider initialized")

	return p, nil
}

// warmUp sends a probe request so the model is loaded before READY is
// signalled. A loading model is polled until LoadTimeout.
func (p *Provider) warmUp(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.LoadTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		_, err := p.predict(ctx, "warm up")
		if err == nil {
			return nil
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.Loading() {
			return err
		}

		delay := p.config.RetryDelay
		if estimated := time.Duration(statusErr.EstimatedTime * float64(time.Second)); estimated > delay {
			delay = min(estimated, 10*p.config.RetryDelay)
		}

		log.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Str("model", p.model).
			Msg("Model is loading, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("model %s did not load: %w", p.model, err)
		case <-time.After(delay):
		}
	}
}

// Classify returns the highest scoring label for text
func (p *Provider) Classify(ctx context.Context, text string) (*sentiment.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return nil, sentiment.ErrEmptyText
	}

	predictions, err := p.predict(ctx, text)
	if err != nil {
		return nil, err
	}

	best, err := Best(predictions)
	if err != nil {
		return nil, err
	}

	return &sentiment.Classification{
		Label:      sentiment.Label(best.Label),
		Confidence: best.Score,
	}, nil
}

func (p *Provider) predict(ctx context.Context, text string) ([]Prediction, error) {
	body, err := json.Marshal(inferenceRequest{
		Inputs:  text,
		Options: inferenceOptions{WaitForModel: true, UseCache: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(p.config.BaseURL, "/") + "/models/" + p.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp.StatusCode, respBody)
	}

	return DecodePredictions(respBody)
}

// DecodePredictions accepts both the nested [[...]] shape returned for a
// single input and the flat [...] shape.
func DecodePredictions(body []byte) ([]Prediction, error) {
	var nested [][]Prediction
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, errors.New("empty prediction list")
		}
		return nested[0], nil
	}

	var flat []Prediction
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return flat, nil
}

// Best returns the prediction with the highest score
func Best(predictions []Prediction) (Prediction, error) {
	if len(predictions) == 0 {
		return Prediction{}, errors.New("empty prediction list")
	}

	best := predictions[0]
	for _, pr := range predictions[1:] {
		if pr.Score > best.Score {
			best = pr
		}
	}
	return best, nil
}

func newStatusError(status int, body []byte) *StatusError {
	statusErr := &StatusError{StatusCode: status}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		statusErr.Message = apiErr.Error
		statusErr.EstimatedTime = apiErr.EstimatedTime
	} else {
		statusErr.Message = strings.TrimSpace(utils.Truncate(string(body), 200))
	}

	return statusErr
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", p.config.UserAgent)
	if p.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.Token)
	}
}

// GetName returns the provider name
func (p *Provider) GetName() string {
	return p.name
}

// ListModels fetches the hub metadata of the configured model. Only
// text-classification models are reported.
func (p *Provider) ListModels(ctx context.Context) ([]provider.Info, error) {
	endpoint := strings.TrimSuffix(p.config.HubURL, "/") + "/api/models/" + p.model

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp.StatusCode, body)
	}

	var info modelInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode model info: %w", err)
	}

	if info.PipelineTag != textClassification {
		log.Warn().
			Str("model", p.model).
			Str("pipeline_tag", info.PipelineTag).
			Msg("Model is not a text-classification model")
		return nil, nil
	}

	id := info.ID
	if id == "" {
		id = info.ModelID
	}

	return []provider.Info{{
		ID:          id,
		Name:        id,
		Provider:    p.name,
		CreatedAt:   info.CreatedAt,
		Description: strings.Join(info.Tags, ", "),
		Features:    []string{textClassification},
	}}, nil
}

// Close cleans up resources
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// GetHuggingFaceTokenFromEnv retrieves the access token from the environment
func GetHuggingFaceTokenFromEnv() string {
	return utils.FirstEnv(
		"HF_TOKEN",
		"HUGGINGFACE_API_KEY",
		"HUGGINGFACEHUB_API_TOKEN",
		"HUGGING_FACE_HUB_TOKEN",
	)
}
