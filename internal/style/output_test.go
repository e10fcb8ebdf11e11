package style

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/stretchr/testify/assert"
)

func TestRenderStars(t *testing.T) {
	tests := []struct {
		score  sentiment.Score
		filled int
	}{
		{-2, 1}, {-1, 2}, {0, 3}, {1, 4}, {2, 5},
	}

	for _, tt := range tests {
		out := RenderStars(tt.score)
		assert.Equal(t, tt.filled, bytes.Count([]byte(out), []byte("★")), "score %d", tt.score)
		assert.Equal(t, int(sentiment.MaxStars)-tt.filled, bytes.Count([]byte(out), []byte("☆")), "score %d", tt.score)
	}
}

func TestRenderResponse(t *testing.T) {
	ok := RenderResponse("Tohle je skvělé!", sentiment.Success(2, 0.87))
	assert.Contains(t, ok, "+2 very positive")
	assert.Contains(t, ok, "(87%)")
	assert.Contains(t, ok, "Tohle je skvělé!")

	failed := RenderResponse("text", sentiment.Failure(errors.New("model exploded")))
	assert.Contains(t, failed, "model exploded")
	assert.Contains(t, failed, "✗")
}

func TestPrintJSONAndYAML(t *testing.T) {
	var buf bytes.Buffer
	PrintJSON(&buf, map[string]any{"score": 1, "text": "<b>"})
	assert.Equal(t, "{\n  \"score\": 1,\n  \"text\": \"<b>\"\n}\n", buf.String())

	buf.Reset()
	PrintYAML(&buf, map[string]any{"score": -1})
	assert.Equal(t, "score: -1\n", buf.String())
}

func TestTestSpinner(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	s := NewTestSpinner(&buf)
	s.SetSuffix(" loading model")
	s.SetFinalMSG("done\n")
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	assert.Equal(t, "[SET SUFFIX]  loading model\n[SPINNER START]  loading model\n[SPINNER STOP]\n[FINAL MSG] done\n", buf.String())
}

func TestNewSpinner(t *testing.T) {
	t.Setenv("SENTIMENT_TEST", "true")
	_, ok := NewSpinner(&bytes.Buffer{}).(*TestSpinner)
	assert.True(t, ok)

	t.Setenv("SENTIMENT_TEST", "")
	_, ok = NewSpinner(&bytes.Buffer{}).(*TerminalSpinner)
	assert.True(t, ok)
}
