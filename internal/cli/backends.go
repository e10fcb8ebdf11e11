package cli

import (
	"context"
	"fmt"

	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/provider/anthropic"
	"github.com/lacquerai/sentiment/internal/provider/huggingface"
	"github.com/lacquerai/sentiment/internal/provider/lexicon"
	"github.com/lacquerai/sentiment/internal/provider/openai"
	"github.com/lacquerai/sentiment/internal/provider/python"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// defaultProvider runs the transformers pipeline locally
const defaultProvider = "python"

// backends lists every model service the CLI can start. Each factory reads
// its own section of the config file, e.g.
//
//	huggingface:
//	  token: hf_xxx
//	  load_timeout: 2m
func backends() []provider.Backend {
	return []provider.Backend{
		{
			Name:         "python",
			DefaultModel: provider.DefaultModel,
			Description:  "transformers pipeline in a local Python worker",
			New: func(ctx context.Context, model string) (provider.Provider, error) {
				config := python.DefaultConfig()
				if err := loadSection("python", config); err != nil {
					return nil, err
				}
				return python.NewProvider(ctx, model, config)
			},
		},
		{
			Name:         "huggingface",
			DefaultModel: provider.DefaultModel,
			Description:  "Hugging Face hosted inference",
			New: func(ctx context.Context, model string) (provider.Provider, error) {
				config := huggingface.DefaultConfig()
				if err := loadSection("huggingface", config); err != nil {
					return nil, err
				}
				return huggingface.NewProvider(ctx, model, config)
			},
		},
		{
			Name:         "openai",
			DefaultModel: openai.DefaultModel,
			Description:  "OpenAI chat model asked for a star rating",
			New: func(ctx context.Context, model string) (provider.Provider, error) {
				config := openai.DefaultConfig()
				if err := loadSection("openai", config); err != nil {
					return nil, err
				}
				return openai.NewProvider(ctx, model, config)
			},
		},
		{
			Name:         "anthropic",
			DefaultModel: anthropic.DefaultModel,
			Description:  "Anthropic model asked for a star rating",
			New: func(ctx context.Context, model string) (provider.Provider, error) {
				config := anthropic.DefaultConfig()
				if err := loadSection("anthropic", config); err != nil {
					return nil, err
				}
				return anthropic.NewProvider(ctx, model, config)
			},
		},
		{
			Name:         "lexicon",
			DefaultModel: lexicon.DefaultModel,
			Description:  "offline word list with negation",
			New: func(ctx context.Context, model string) (provider.Provider, error) {
				config := &lexicon.Config{}
				if err := loadSection("lexicon", config); err != nil {
					return nil, err
				}
				return lexicon.NewProvider(ctx, model, config)
			},
		},
	}
}

func backendNames() []string {
	list := backends()
	names := make([]string, len(list))
	for i, b := range list {
		names[i] = b.Name
	}
	return names
}

// newRegistry registers every backend
func newRegistry(disableCache bool) (*provider.Registry, error) {
	registry := provider.NewRegistry(disableCache)
	for _, backend := range backends() {
		if err := registry.Register(backend); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// loadSection decodes the named config section over out. Keys follow the
// yaml tags of the provider config, so out keeps its defaults for keys the
// section leaves unset.
func loadSection(key string, out any) error {
	section := viper.GetStringMap(key)
	if len(section) == 0 {
		return nil
	}

	data, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Errorf("failed to read %s config: %w", key, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid %s config: %w", key, err)
	}
	return nil
}
