package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/theNullP0inter/odinmcp/internal/config"
	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/internal/telemetry"
	"github.com/theNullP0inter/odinmcp/internal/worker"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Start the worker runtime",
	Long: `Work runs the asynchronous execution plane: it consumes tasks from
the broker, executes registered handlers, drives server-initiated client
requests, and publishes server-to-client messages into the Hermod push
proxy.`,
	RunE: runWork,
}

func init() {
	rootCmd.AddCommand(workCmd)
}

func runWork(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := telemetry.NewLogger(cfg.Server.LogLevel, cfg.Debug)

	shutdownTracing, err := telemetry.InitTracing(cfg.Debug)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := buildInfra(cfg, logger)
	if err != nil {
		return err
	}
	defer components.close()

	odin := buildServer(cfg, logger)
	tokens := identity.NewChannelTokens([]byte(cfg.Hermod.TokenSecret))

	runtime := worker.NewRuntime(
		components.broker,
		components.backend,
		components.publisher,
		odin.Handlers(),
		tokens,
		odin.InitOptions(),
		worker.WithLogger(logger),
		worker.WithLifespan(odin.Lifespan()),
		worker.WithMetricsRegistry(prometheus.DefaultRegisterer),
	)

	err = runtime.Run(ctx)
	_ = shutdownTracing(context.Background())
	return err
}
