package cmd

import (
	"fmt"
	"log/slog"

	"github.com/theNullP0inter/odinmcp/internal/adapter/outbound/hermod"
	"github.com/theNullP0inter/odinmcp/internal/adapter/outbound/redisbroker"
	"github.com/theNullP0inter/odinmcp/internal/adapter/outbound/sqlitebroker"
	"github.com/theNullP0inter/odinmcp/internal/config"
	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
	"github.com/theNullP0inter/odinmcp/internal/server"
)

// infra bundles the outbound adapters a tier needs.
type infra struct {
	broker    outbound.Broker
	backend   outbound.ResultBackend
	publisher *hermod.Publisher
	close     func()
}

// buildInfra wires the broker driver and the Hermod publisher from config.
func buildInfra(cfg *config.Config, logger *slog.Logger) (*infra, error) {
	publisher := hermod.NewPublisher(cfg.Hermod.ZeroMQURLs, logger)

	switch cfg.Broker.Driver {
	case "sqlite":
		store, err := sqlitebroker.NewStore(cfg.Broker.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite broker: %w", err)
		}
		return &infra{
			broker:    store,
			backend:   store,
			publisher: publisher,
			close: func() {
				_ = store.Close()
				_ = publisher.Close()
			},
		}, nil
	default:
		broker, err := redisbroker.NewBroker(cfg.Broker.RedisURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting broker: %w", err)
		}
		backend, err := redisbroker.NewBackend(cfg.Broker.BackendURL)
		if err != nil {
			_ = broker.Close()
			return nil, fmt.Errorf("connecting result backend: %w", err)
		}
		return &infra{
			broker:    broker,
			backend:   backend,
			publisher: publisher,
			close: func() {
				_ = broker.Close()
				_ = backend.Close()
				_ = publisher.Close()
			},
		}, nil
	}
}

// buildServer assembles the OdinMCP server from config. Deployments that
// embed odinmcp as a library register their tools before starting the
// tiers; the standalone binary serves the bare protocol surface.
func buildServer(cfg *config.Config, logger *slog.Logger) *server.OdinMCP {
	return server.New(
		cfg.Server.Name,
		server.WithVersion(cfg.Server.Version),
		server.WithInstructions(cfg.Server.Instructions),
		server.WithLogger(logger),
	)
}
