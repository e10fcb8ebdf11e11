package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/lacquerai/sentiment/internal/utils"
)

// RatingPrompt instructs a chat model to answer like a star-rating classifier.
const RatingPrompt = `You are a sentiment classifier for product and service reviews written in any language (most often Czech).
Rate the sentiment of the user's text on a scale of 1 to 5 stars, where 1 is very negative, 3 is neutral and 5 is very positive.
Reply with a single JSON object and nothing else: {"stars": <integer 1-5>, "confidence": <number between 0 and 1>}.`

// Rating is the JSON object chat models are asked to produce
type Rating struct {
	Stars      *int     `json:"stars"`
	Confidence *float64 `json:"confidence"`
}

// ParseRating decodes a chat model reply into a classification. The stars
// are rendered as a canonical label so the usual label checks apply.
func ParseRating(content string) (*sentiment.Classification, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("model reply is not a JSON object: %q", utils.Truncate(content, 120))
	}

	var rating Rating
	if err := json.Unmarshal([]byte(content[start:end+1]), &rating); err != nil {
		return nil, fmt.Errorf("failed to decode model reply %q: %w", utils.Truncate(content, 120), err)
	}

	if rating.Stars == nil {
		return nil, errors.New("model reply has no stars")
	}
	confidence := 1.0
	if rating.Confidence != nil {
		confidence = *rating.Confidence
	}

	return &sentiment.Classification{
		Label:      sentiment.LabelFor(sentiment.Stars(*rating.Stars)),
		Confidence: confidence,
	}, nil
}
