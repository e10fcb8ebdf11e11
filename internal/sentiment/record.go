package sentiment

import (
	"fmt"
	"math"
)

// Classification is what a model service returns for one piece of text.
type Classification struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Validate checks that the confidence is a finite probability.
func (c Classification) Validate() error {
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return &ClassifyError{Err: fmt.Errorf("%w: %v", ErrConfidenceOutOfRange, c.Confidence)}
	}
	return nil
}

// Response is a single line written back to the parent process. Exactly one
// of the two shapes is populated: score and confidence, or error.
type Response struct {
	Score      *Score   `json:"score,omitempty" jsonschema:"minimum=-2,maximum=2"`
	Confidence *float64 `json:"confidence,omitempty" jsonschema:"minimum=0,maximum=1"`
	Error      string   `json:"error,omitempty"`
}

// Success builds a score response.
func Success(score Score, confidence float64) Response {
	return Response{Score: &score, Confidence: &confidence}
}

// Failure builds an error response. A nil or blank error still yields a
// non-empty message so the record never serializes as {}.
func Failure(err error) Response {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Response{Error: msg}
}

// IsError reports whether r is an error response.
func (r Response) IsError() bool {
	return r.Score == nil
}

// Evaluate turns a classification into the response written for it.
func Evaluate(c Classification) Response {
	if err := c.Validate(); err != nil {
		return Failure(err)
	}

	stars, err := ParseStars(c.Label)
	if err != nil {
		return Failure(err)
	}

	score, err := ScoreFor(stars)
	if err != nil {
		return Failure(err)
	}

	return Success(score, c.Confidence)
}
