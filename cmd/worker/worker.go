package main

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sudior04/iot-backend/internal/config"
	"github.com/sudior04/iot-backend/internal/db"
	"github.com/sudior04/iot-backend/internal/dispatcher"
	"github.com/sudior04/iot-backend/internal/mq"
	"github.com/sudior04/iot-backend/internal/normalizer"
	"github.com/sudior04/iot-backend/internal/policy"
	"github.com/sudior04/iot-backend/internal/push"
	"github.com/sudior04/iot-backend/internal/registry"
	"github.com/sudior04/iot-backend/internal/repository"
	"github.com/sudior04/iot-backend/internal/service"
	"github.com/sudior04/iot-backend/internal/telemetry"
	"github.com/sudior04/iot-backend/internal/transport"
)

// startWorker subscribes the ingestion pipeline to the broker wildcard.
// Inbound delivery flows through the single injected handler; the
// transport never calls back into business logic any other way.
func startWorker(
	lc fx.Lifecycle,
	client *transport.Client,
	cfg *config.Config,
	logger *zap.Logger,
	ingest *service.IngestService,
) error {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting ingestion",
				zap.String("topic", cfg.Topics.Wildcard),
				zap.String("broker", cfg.MQTT.BrokerURL),
			)
			return client.Subscribe(cfg.Topics.Wildcard, ingest.HandleMessage)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("ingestion stopped")
			return nil
		},
	})
	return nil
}

// startPushServer serves the websocket attach point for live subscribers
func startPushServer(lc fx.Lifecycle, hub *push.Hub, cfg *config.Config, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Push.Path, hub)
	server := &http.Server{Addr: cfg.Push.Addr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("push endpoint listening",
				zap.String("addr", cfg.Push.Addr),
				zap.String("path", cfg.Push.Path),
			)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("push server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// ProvideDBPool creates the database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates the repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideRegistry creates the device registry instance
func ProvideRegistry(repo *repository.Repository, cfg *config.Config, logger *zap.Logger) *registry.Registry {
	return registry.NewRegistry(repo, cfg, logger)
}

// ProvideNormalizer creates the payload normalizer instance
func ProvideNormalizer(cfg *config.Config) *normalizer.Normalizer {
	return normalizer.NewNormalizer(normalizer.DefaultAliases(), cfg.Devices.DefaultID)
}

// ProvideTelemetryStore creates the telemetry store instance
func ProvideTelemetryStore(repo *repository.Repository, cfg *config.Config, logger *zap.Logger) *telemetry.Store {
	return telemetry.NewStore(repo, cfg.Alerts.SuggestionMinSamples, logger)
}

// ProvidePolicyEngine creates the notification policy engine instance
func ProvidePolicyEngine(repo *repository.Repository, logger *zap.Logger) *policy.Engine {
	return policy.NewEngine(repo, repo, logger)
}

// ProvideMQTTClient creates the broker transport instance
func ProvideMQTTClient(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*transport.Client, error) {
	return transport.NewClient(lc, logger, cfg)
}

// ProvidePushHub creates the live push hub instance
func ProvidePushHub(logger *zap.Logger) *push.Hub {
	return push.NewHub(logger)
}

// ProvideMQConnection creates the optional RabbitMQ relay connection
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideRelayPublisher creates the downstream event relay publisher
func ProvideRelayPublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.Exchange, logger)
}

// ProvideDispatcher creates the device command dispatcher instance
func ProvideDispatcher(client *transport.Client, reg *registry.Registry, cfg *config.Config, logger *zap.Logger) *dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(client, reg, cfg, logger)
}

// ProvideIngestService creates the ingestion pipeline instance
func ProvideIngestService(
	cfg *config.Config,
	reg *registry.Registry,
	norm *normalizer.Normalizer,
	store *telemetry.Store,
	engine *policy.Engine,
	hub *push.Hub,
	relay *mq.Publisher,
	logger *zap.Logger,
) *service.IngestService {
	return service.NewIngestService(cfg, reg, norm, store, engine, hub, relay, logger)
}
