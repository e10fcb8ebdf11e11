package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/lacquerai/sentiment/internal/sentiment"
)

// MockProvider is a scripted provider for testing
type MockProvider struct {
	name      string
	models    []Info
	responses map[string]sentiment.Classification
	errors    map[string]error
	panics    map[string]any
	fallback  *sentiment.Classification
	calls     []string
	closed    bool
	mu        sync.Mutex
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string, models []Info) *MockProvider {
	return &MockProvider{
		name:      name,
		models:    models,
		responses: make(map[string]sentiment.Classification),
		errors:    make(map[string]error),
		panics:    make(map[string]any),
	}
}

// SetResponse sets the classification returned for text
func (mp *MockProvider) SetResponse(text string, label sentiment.Label, confidence float64) *MockProvider {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.responses[text] = sentiment.Classification{Label: label, Confidence: confidence}
	return mp
}

// SetError makes Classify fail for text
func (mp *MockProvider) SetError(text string, err error) *MockProvider {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.errors[text] = err
	return mp
}

// SetPanic makes Classify panic for text
func (mp *MockProvider) SetPanic(text string, value any) *MockProvider {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.panics[text] = value
	return mp
}

// SetFallback sets the classification returned for unscripted text
func (mp *MockProvider) SetFallback(label sentiment.Label, confidence float64) *MockProvider {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.fallback = &sentiment.Classification{Label: label, Confidence: confidence}
	return mp
}

// Classify returns the scripted result for text
func (mp *MockProvider) Classify(ctx context.Context, text string) (*sentiment.Classification, error) {
	mp.mu.Lock()
	mp.calls = append(mp.calls, text)
	p, shouldPanic := mp.panics[text]
	err, shouldFail := mp.errors[text]
	resp, scripted := mp.responses[text]
	fallback := mp.fallback
	mp.mu.Unlock()

	if shouldPanic {
		panic(p)
	}
	if shouldFail {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scripted {
		return &resp, nil
	}
	if fallback != nil {
		c := *fallback
		return &c, nil
	}

	return nil, fmt.Errorf("no mock response for %q", text)
}

// Calls returns the texts passed to Classify, in order
func (mp *MockProvider) Calls() []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]string(nil), mp.calls...)
}

// GetName returns the provider name
func (mp *MockProvider) GetName() string {
	return mp.name
}

// ListModels returns the configured models
func (mp *MockProvider) ListModels(ctx context.Context) ([]Info, error) {
	return mp.models, nil
}

// Closed reports whether Close was called
func (mp *MockProvider) Closed() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.closed
}

// Close cleans up resources
func (mp *MockProvider) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.closed = true
	return nil
}
