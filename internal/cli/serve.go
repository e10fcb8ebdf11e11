package cli

import (
	"context"
	"io"
	"time"

	"github.com/lacquerai/sentiment/internal/protocol"
	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/lacquerai/sentiment/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer classification requests on stdin/stdout",
	Long: `Load the model, print READY and answer one JSON record per line of stdin.

This is what the root command runs when no subcommand is given.

Examples:
  sentiment serve                                  # transformers pipeline in a Python worker
  sentiment serve --provider huggingface           # hosted inference
  sentiment serve --provider lexicon               # offline word list
  sentiment serve --timeout 30s --metrics-addr localhost:9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serveOptions selects the model service and the adapter settings
type serveOptions struct {
	Provider    string
	Model       string
	Timeout     time.Duration
	MetricsAddr string
}

func serveOptionsFromConfig() serveOptions {
	return serveOptions{
		Provider:    viper.GetString("provider"),
		Model:       viper.GetString("model"),
		Timeout:     viper.GetDuration("timeout"),
		MetricsAddr: viper.GetString("metrics-addr"),
	}
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry, err := newRegistry(false)
	if err != nil {
		return err
	}

	return serve(ctx, registry, serveOptionsFromConfig(), cmd.InOrStdin(), cmd.OutOrStdout())
}

// serve runs the line protocol over in and out until in is exhausted. A
// failed initialization is reported on out and returned.
func serve(ctx context.Context, registry *provider.Registry, opts serveOptions, in io.Reader, out io.Writer) error {
	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	adapter := protocol.New(in, out,
		protocol.WithTimeout(opts.Timeout),
		protocol.WithRecorder(protocol.NewMetrics(metricsRegistry)),
	)

	var startErr error
	if opts.MetricsAddr != "" {
		config := server.DefaultConfig()
		config.Addr = opts.MetricsAddr
		srv := server.New(config, adapter,
			server.WithGatherer(metricsRegistry),
			server.WithModel(opts.Provider, opts.Model),
		)

		startErr = srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Metrics server did not shut down cleanly")
			}
		}()
	}

	var loaded provider.Provider
	defer func() {
		if loaded == nil {
			return
		}
		if err := loaded.Close(); err != nil {
			log.Warn().Err(err).Str("provider", opts.Provider).Msg("Failed to close model service")
		}
	}()

	err := adapter.Run(ctx, func(ctx context.Context) (protocol.Classifier, error) {
		if startErr != nil {
			return nil, &sentiment.InitError{Provider: opts.Provider, Model: opts.Model, Err: startErr}
		}

		p, err := registry.Initialize(ctx, opts.Provider, opts.Model)
		if err != nil {
			return nil, err
		}
		loaded = p
		return p, nil
	})

	log.Debug().
		Int64("handled", adapter.Handled()).
		Str("provider", opts.Provider).
		Msg("Serve loop finished")

	return err
}
