package sentiment

import (
	"fmt"
	"strconv"
	"strings"
)

// Label is the raw label produced by a classifier, e.g. "4 stars".
type Label string

// Stars is a star rating in the closed range 1..5.
type Stars int

// Score is the final sentiment score consumed by the parent process, -2..2.
type Score int

const (
	MinStars Stars = 1
	MaxStars Stars = 5
)

// starScores maps every valid star rating onto its final score.
var starScores = map[Stars]Score{
	1: -2,
	2: -1,
	3: 0,
	4: 1,
	5: 2,
}

// Valid reports whether s is one of the five known ratings.
func (s Stars) Valid() bool {
	_, ok := starScores[s]
	return ok
}

// ScoreFor maps a star rating onto the final score.
func ScoreFor(stars Stars) (Score, error) {
	score, ok := starScores[stars]
	if !ok {
		return 0, &ClassifyError{Err: fmt.Errorf("%w: %d", ErrRatingOutOfRange, stars)}
	}
	return score, nil
}

// LabelFor renders the canonical label for a rating ("1 star", "2 stars", ...).
func LabelFor(stars Stars) Label {
	if stars == 1 {
		return "1 star"
	}
	return Label(fmt.Sprintf("%d stars", stars))
}

// ParseStars extracts the star rating from a label such as "5 stars".
//
// The label must be exactly two whitespace-delimited tokens: an integer and the
// word "star" or "stars". Anything else is a malformed label, and an integer
// outside 1..5 is out of range. Both are reported as *ClassifyError.
func ParseStars(label Label) (Stars, error) {
	fields := strings.Fields(string(label))
	if len(fields) != 2 {
		return 0, &ClassifyError{Err: fmt.Errorf("%w: %q", ErrMalformedLabel, label)}
	}

	unit := strings.ToLower(fields[1])
	if unit != "star" && unit != "stars" {
		return 0, &ClassifyError{Err: fmt.Errorf("%w: %q", ErrMalformedLabel, label)}
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, &ClassifyError{Err: fmt.Errorf("%w: %q", ErrMalformedLabel, label)}
	}

	stars := Stars(n)
	if !stars.Valid() {
		return 0, &ClassifyError{Err: fmt.Errorf("%w: %d", ErrRatingOutOfRange, n)}
	}

	return stars, nil
}
