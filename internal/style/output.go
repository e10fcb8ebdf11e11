package style

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"gopkg.in/yaml.v3"
)

var (
	// Color palette
	ErrorColor   = lipgloss.Color("#FF6B6B")
	WarningColor = lipgloss.Color("#FFA726")
	SuccessColor = lipgloss.Color("#66BB6A")
	InfoColor    = lipgloss.Color("#42A5F5")
	MutedColor   = lipgloss.Color("#6C757D")
	AccentColor  = lipgloss.Color("#7C3AED")

	PrimaryTextColor = lipgloss.Color("#E4E4E7")
	CodeColor        = lipgloss.Color("#27272A")
	ErrorBgColor     = lipgloss.Color("#3F1D1D")

	// Base styles
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	InfoStyle    = lipgloss.NewStyle().Foreground(InfoColor).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(MutedColor)
	AccentStyle  = lipgloss.NewStyle().Foreground(AccentColor)

	TextStyle = lipgloss.NewStyle().
			Foreground(PrimaryTextColor)

	ConfidenceStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)
)

// scoreNames describe each score in words
var scoreNames = map[sentiment.Score]string{
	-2: "very negative",
	-1: "negative",
	0:  "neutral",
	1:  "positive",
	2:  "very positive",
}

// ScoreStyle returns the style for a sentiment score
func ScoreStyle(score sentiment.Score) lipgloss.Style {
	switch {
	case score < 0:
		return ErrorStyle
	case score > 0:
		return SuccessStyle
	default:
		return WarningStyle
	}
}

// RenderStars renders a 1-5 star bar for a score
func RenderStars(score sentiment.Score) string {
	total := int(sentiment.MaxStars)
	filled := min(max(int(score)+3, 0), total)
	return ScoreStyle(score).Render(strings.Repeat("★", filled)) +
		MutedStyle.Render(strings.Repeat("☆", total-filled))
}

// RenderResponse renders one classification for humans
func RenderResponse(text string, resp sentiment.Response) string {
	if resp.IsError() {
		return fmt.Sprintf("%s %s  %s", ErrorIcon(), ErrorStyle.Render(resp.Error), MutedStyle.Render(text))
	}

	score := *resp.Score
	return fmt.Sprintf("%s %s %s  %s",
		RenderStars(score),
		ScoreStyle(score).Render(fmt.Sprintf("%+d %s", int(score), scoreNames[score])),
		ConfidenceStyle.Render(fmt.Sprintf("(%.0f%%)", *resp.Confidence*100)),
		TextStyle.Render(text),
	)
}

// PrintJSON outputs data as formatted JSON
func PrintJSON(w io.Writer, data interface{}) {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(w, "Error encoding JSON: %v\n", err)
	}
}

// PrintYAML outputs data as YAML
func PrintYAML(w io.Writer, data interface{}) {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(w, "Error encoding YAML: %v\n", err)
	}
	encoder.Close()
}

func SuccessIcon() string {
	return SuccessStyle.Render("✓")
}

func ErrorIcon() string {
	return ErrorStyle.Render("✗")
}

func WarningIcon() string {
	return WarningStyle.Render("⚠")
}

// Success prints a success message with styling
func Success(w io.Writer, message string) {
	msg := lipgloss.NewStyle().Foreground(SuccessColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", SuccessIcon(), msg)
}

// Error prints an error message with styling
func Error(w io.Writer, message string) {
	msg := lipgloss.NewStyle().Foreground(ErrorColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", ErrorIcon(), msg)
}

// Warning prints a warning message with styling
func Warning(w io.Writer, message string) {
	msg := lipgloss.NewStyle().Foreground(WarningColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", WarningIcon(), msg)
}

// Info prints an info message with styling
func Info(w io.Writer, message string) {
	icon := InfoStyle.Render("ℹ")
	msg := lipgloss.NewStyle().Foreground(InfoColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", icon, msg)
}
