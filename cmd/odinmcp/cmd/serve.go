package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theNullP0inter/odinmcp/internal/adapter/inbound/web"
	"github.com/theNullP0inter/odinmcp/internal/config"
	"github.com/theNullP0inter/odinmcp/internal/dispatch"
	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP frontend",
	Long: `Serve runs the stateless web tier: the single streamable-HTTP MCP
endpoint plus /health and /metrics. Client messages are validated and
enqueued on the broker; server-to-client streaming is delegated to the
Hermod push proxy via GRIP hold responses.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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
	dispatcher := dispatch.NewDispatcher(components.broker, logger)

	transport := web.NewTransport(odin.InitializeResult, tokens, dispatcher, cfg.Hermod.KeepAliveTimeout)
	srv := web.NewServer(transport, tokens,
		cfg.Auth.UserInfoHeader, cfg.Hermod.StreamingHeader,
		web.WithAddr(cfg.Server.HTTPAddr),
		web.WithLogger(logger),
		web.WithHealthChecker(web.NewHealthChecker(components.backend, cfg.Server.Version)),
	)

	err = srv.Start(ctx)
	_ = shutdownTracing(context.Background())
	return err
}
