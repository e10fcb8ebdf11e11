package cli

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/lacquerai/sentiment/internal/protocol"
	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/spf13/cobra"
	"github.com/stoewer/go-strcase"
)

// SchemaOutput describes the wire format of the line protocol
type SchemaOutput struct {
	Ready     string          `json:"ready"`
	Response  json.RawMessage `json:"response"`
	Providers []Model         `json:"providers"`
}

// Model names a provider and the model it loads by default
type Model struct {
	Provider     string `json:"provider"`
	DefaultModel string `json:"default_model"`
}

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Output the JSON schema of the response records",
	Long:  `Output the READY sentinel, the JSON schema of the records written for each line, and the providers that can be selected.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := newRegistry(true)
		if err != nil {
			return err
		}

		output, err := buildSchema(registry)
		if err != nil {
			return err
		}

		outputBytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(outputBytes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

// newReflector names definitions and keys in snake case
func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		KeyNamer: strcase.SnakeCase,
		Namer: func(t reflect.Type) string {
			return strcase.SnakeCase(t.Name())
		},
		ExpandedStruct: true,
		DoNotReference: true,
	}
}

func buildSchema(registry *provider.Registry) (*SchemaOutput, error) {
	schema := newReflector().Reflect(&sentiment.Response{})
	schema.Title = "response"
	schema.Description = "One record per non-blank input line: score and confidence, or error."

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	var models []Model
	for _, name := range registry.ListProviders() {
		backend, err := registry.Backend(name)
		if err != nil {
			return nil, err
		}
		models = append(models, Model{Provider: backend.Name, DefaultModel: backend.DefaultModel})
	}

	return &SchemaOutput{
		Ready:     protocol.ReadySentinel,
		Response:  schemaBytes,
		Providers: models,
	}, nil
}
