package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lacquerai/sentiment/internal/protocol"
	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/lacquerai/sentiment/internal/style"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Classify text once and print the result",
	Long: `Classify the given text, or every line of stdin when no text is given, and
print the result for humans.

Examples:
  sentiment classify "Skvělá obsluha, určitě přijdeme znovu"
  sentiment classify --provider lexicon < reviews.txt
  sentiment classify --output json "Terrible service"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := newRegistry(false)
		if err != nil {
			return err
		}
		return runClassify(cmd, registry, args)
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

// ClassifyResult is one classified text
type ClassifyResult struct {
	Text       string           `json:"text" yaml:"text"`
	Score      *sentiment.Score `json:"score,omitempty" yaml:"score,omitempty"`
	Confidence *float64         `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Error      string           `json:"error,omitempty" yaml:"error,omitempty"`
}

func runClassify(cmd *cobra.Command, registry *provider.Registry, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	texts, err := classifyInputs(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	var spin style.Spinner
	if !viper.GetBool("quiet") {
		spin = style.NewSpinner(cmd.ErrOrStderr())
	}

	return classifyTexts(ctx, registry, serveOptionsFromConfig(), texts, viper.GetString("output"), cmd.OutOrStdout(), spin)
}

// classifyTexts loads the model once and prints a result per text. spin may
// be nil.
func classifyTexts(ctx context.Context, registry *provider.Registry, opts serveOptions, texts []string, format string, w io.Writer, spin style.Spinner) error {
	if len(texts) == 0 {
		return errors.New("no text to classify")
	}

	if spin != nil {
		spin.SetSuffix(fmt.Sprintf(" Loading %s model...", opts.Provider))
		spin.Start()
	}
	p, err := registry.Initialize(ctx, opts.Provider, opts.Model)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}
	defer p.Close()

	results := classifyAll(ctx, p, texts, opts.Timeout)

	switch format {
	case "json":
		style.PrintJSON(w, results)
	case "yaml":
		style.PrintYAML(w, results)
	default:
		for _, r := range results {
			fmt.Fprintln(w, style.RenderResponse(r.Text, sentiment.Response{
				Score:      r.Score,
				Confidence: r.Confidence,
				Error:      r.Error,
			}))
		}
	}

	return nil
}

// classifyInputs returns the joined arguments, or the non-blank lines of in
func classifyInputs(in io.Reader, args []string) ([]string, error) {
	if len(args) > 0 {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return nil, nil
		}
		return []string{text}, nil
	}

	var texts []string
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if text := strings.TrimSpace(scanner.Text()); text != "" {
			texts = append(texts, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return texts, nil
}

func classifyAll(ctx context.Context, clf protocol.Classifier, texts []string, timeout time.Duration) []ClassifyResult {
	results := make([]ClassifyResult, len(texts))
	for i, text := range texts {
		resp := protocol.Classify(ctx, clf, text, timeout)
		results[i] = ClassifyResult{
			Text:       text,
			Score:      resp.Score,
			Confidence: resp.Confidence,
			Error:      resp.Error,
		}
	}
	return results
}
