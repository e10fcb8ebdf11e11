package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/style"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	modelsRefresh   bool
	modelsProviders bool
)

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models a provider can serve",
	Long: `List the models available from the configured provider. Model lists are
cached for 24 hours under the user cache directory.

Examples:
  sentiment models --provider openai
  sentiment models --provider anthropic --refresh --output json
  sentiment models --providers`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := newRegistry(false)
		if err != nil {
			return err
		}
		if modelsProviders {
			printBackends(cmd.OutOrStdout(), registry)
			return nil
		}
		return runModels(cmd, registry)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().BoolVar(&modelsRefresh, "refresh", false, "ignore the cached model list")
	modelsCmd.Flags().BoolVar(&modelsProviders, "providers", false, "list the available providers instead")
}

func runModels(cmd *cobra.Command, registry *provider.Registry) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts := serveOptionsFromConfig()

	p, err := registry.Initialize(ctx, opts.Provider, opts.Model)
	if err != nil {
		return err
	}
	defer p.Close()

	models, err := registry.Models(ctx, p, modelsRefresh)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	w := cmd.OutOrStdout()
	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(w, models)
	case "yaml":
		style.PrintYAML(w, models)
	default:
		if len(models) == 0 {
			style.Warning(w, fmt.Sprintf("Provider %s reported no models", p.GetName()))
			return nil
		}
		rows := make([][]string, len(models))
		for i, m := range models {
			rows[i] = []string{m.ID, m.CreatedAt, m.Description}
		}
		printTable(w, []string{"ID", "CREATED", "DESCRIPTION"}, rows)
	}

	return nil
}

func printBackends(w io.Writer, registry *provider.Registry) {
	names := registry.ListProviders()

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		backend, err := registry.Backend(name)
		if err != nil {
			continue
		}
		rows = append(rows, []string{backend.Name, backend.DefaultModel, backend.Description})
	}

	printTable(w, []string{"PROVIDER", "DEFAULT MODEL", "DESCRIPTION"}, rows)
}
