package lexicon

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"

	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// DefaultModel names the embedded lexicon
const DefaultModel = "czech"

// MaxWeight bounds the absolute weight of a single word
const MaxWeight = 5

// Lexicon is a word weight table with negation
type Lexicon struct {
	Name     string         `yaml:"name"`
	Words    map[string]int `yaml:"words"`
	Negators []string       `yaml:"negators"`

	negators map[string]struct{}
}

// Config contains configuration for the lexicon provider
type Config struct {
	// Path replaces the embedded lexicon with a YAML file of the same shape
	Path string `yaml:"path"`
}

// Parse decodes and validates a YAML lexicon
func Parse(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}

	if len(lex.Words) == 0 {
		return nil, errors.New("lexicon has no words")
	}

	words := make(map[string]int, len(lex.Words))
	for word, weight := range lex.Words {
		if weight < -MaxWeight || weight > MaxWeight {
			return nil, fmt.Errorf("weight of %q is %d, must be within [-%d, %d]", word, weight, MaxWeight, MaxWeight)
		}
		words[strings.ToLower(word)] = weight
	}
	lex.Words = words

	lex.negators = make(map[string]struct{}, len(lex.Negators))
	for _, n := range lex.Negators {
		lex.negators[strings.ToLower(n)] = struct{}{}
	}

	if lex.Name == "" {
		lex.Name = DefaultModel
	}

	return &lex, nil
}

// Load reads a lexicon from path, or the embedded one when path is empty
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Parse(defaultLexicon)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon: %w", err)
	}
	return Parse(data)
}

// Tokenize lowercases text and splits it into words. Hyphens inside a word
// are kept so that "ne-e" stays one token.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// Result is the outcome of scoring a text
type Result struct {
	Score   int
	Matched int
}

// Score sums the weights of known words. A word directly after a negator
// counts with the opposite sign.
func (l *Lexicon) Score(text string) Result {
	var res Result

	tokens := Tokenize(text)
	for i, token := range tokens {
		token = strings.Trim(token, "-")
		weight, ok := l.Words[token]
		if !ok {
			continue
		}

		if i > 0 {
			if _, negated := l.negators[strings.Trim(tokens[i-1], "-")]; negated {
				weight = -weight
			}
		}

		res.Score += weight
		res.Matched++
	}

	return res
}

// Stars buckets a score onto the 1-5 scale
func (r Result) Stars() sentiment.Stars {
	switch {
	case r.Score <= -4:
		return 1
	case r.Score < 0:
		return 2
	case r.Score == 0:
		return 3
	case r.Score < 4:
		return 4
	default:
		return 5
	}
}

// Confidence grows with the average weight of the matched words. Text with
// no known words is neutral at 0.5.
func (r Result) Confidence() float64 {
	if r.Matched == 0 {
		return 0.5
	}
	strength := math.Abs(float64(r.Score)) / float64(MaxWeight*r.Matched)
	return 0.5 + 0.5*math.Min(1, strength)
}

// Provider classifies text with a lexicon. It needs no network or model files.
type Provider struct {
	name    string
	lexicon *Lexicon
}

// NewProvider loads the lexicon. Without Config.Path the model must name the
// embedded lexicon.
func NewProvider(ctx context.Context, model string, config *Config) (*Provider, error) {
	if config == nil {
		config = &Config{}
	}

	lex, err := Load(config.Path)
	if err != nil {
		return nil, err
	}

	if config.Path == "" && model != "" && model != lex.Name {
		return nil, fmt.Errorf("lexicon %q not found (loaded %q)", model, lex.Name)
	}

	log.Info().
		Str("lexicon", lex.Name).
		Int("words", len(lex.Words)).
		Msg("Lexicon provider initialized")

	return &Provider{name: "lexicon", lexicon: lex}, nil
}

// Classify scores text against the lexicon
func (p *Provider) Classify(ctx context.Context, text string) (*sentiment.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, sentiment.ErrEmptyText
	}

	res := p.lexicon.Score(text)
	return &sentiment.Classification{
		Label:      sentiment.LabelFor(res.Stars()),
		Confidence: res.Confidence(),
	}, nil
}

// GetName returns the provider name
func (p *Provider) GetName() string {
	return p.name
}

// IsLocal reports that the lexicon is loaded in-process
func (p *Provider) IsLocal() bool {
	return true
}

// ListModels reports the loaded lexicon
func (p *Provider) ListModels(ctx context.Context) ([]provider.Info, error) {
	return []provider.Info{{
		ID:          p.lexicon.Name,
		Name:        p.lexicon.Name,
		Provider:    p.name,
		Description: fmt.Sprintf("%d words, %d negators", len(p.lexicon.Words), len(p.lexicon.negators)),
		Features:    []string{"lexicon", "negation"},
	}}, nil
}

// Close is a no-op
func (p *Provider) Close() error {
	return nil
}
