package main

import (
	"context"
	"database/sql"

	"saga-transaction/internal/application/audit"
	"saga-transaction/internal/application/runner"
	sagaapp "saga-transaction/internal/application/saga"
	"saga-transaction/internal/common/configs"
	"saga-transaction/internal/common/health"
	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/common/metrics"
	"saga-transaction/internal/common/telemetry"
	"saga-transaction/internal/domain/saga"
	"saga-transaction/internal/infrastructure/eventbus"
	"saga-transaction/internal/infrastructure/eventstore"
	"saga-transaction/internal/infrastructure/failures"
	"saga-transaction/internal/infrastructure/stages"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// dependencies is everything a command needs, built from one config
type dependencies struct {
	config   *configs.Config
	logger   logger.Logger
	db       *sql.DB
	journal  eventstore.EventStore
	failures failures.Log
	bus      eventbus.EventBus
	registry *prometheus.Registry
	runner   *runner.Service
	checker  health.HealthChecker

	closers []func()
}

// newDependencies wires the orchestrator. Offline skips the database and Kafka, leaving only
// in-process stage types and no journal.
func newDependencies(ctx context.Context, configPath string, offline bool) (*dependencies, error) {
	cfg, err := configs.Load(configPath)
	if err != nil {
		return nil, err
	}

	l := logger.New(cfg.LogLevel, cfg.ServiceName)
	d := &dependencies{
		config:   cfg,
		logger:   l,
		registry: prometheus.NewRegistry(),
	}

	var (
		execer stages.Execer
		pinger health.Pinger
	)
	observers := saga.Observers{}

	if !offline {
		db, err := eventstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.db = db
		d.closers = append(d.closers, func() { _ = db.Close() })

		store := eventstore.NewPostgresEventStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			d.Close()
			return nil, err
		}
		d.journal = store

		failureLog := failures.NewPostgresLog(db)
		if err := failureLog.EnsureSchema(ctx); err != nil {
			d.Close()
			return nil, err
		}
		d.failures = failureLog
		execer = db
		pinger = db

		d.bus = eventbus.NewKafkaEventBus(cfg.Kafka.Brokers, l)
		d.closers = append(d.closers, func() {
			if err := d.bus.Close(); err != nil {
				l.Error("Failed to close event bus", logger.Field{Key: "error", Value: err})
			}
		})

		observers = append(observers,
			audit.NewObserver(store, d.bus, cfg.Kafka.Topic, cfg.ServiceName, l).WithEmitTimeout(cfg.AuditTimeout),
			audit.NewFailureRecorder(failureLog, l),
		)
	}
	d.checker = health.NewSQLChecker(pinger)

	collector, err := metrics.NewPrometheusCollector(d.registry)
	if err != nil {
		d.Close()
		return nil, errors.Wrap(err, "failed to register metrics")
	}
	observers = append(observers, metrics.NewObserver(collector))

	provider, shutdown, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closers = append(d.closers, shutdown)
	observers = append(observers, telemetry.NewTracingObserver(provider.Tracer(cfg.ServiceName)))

	factory := stages.NewFactory(stages.NewRetryingClient(l), execer, d.bus, cfg.Kafka.CommandTopic, cfg.ServiceName)
	d.runner = runner.NewService(factory, observers, l,
		sagaapp.WithMaxParallelism(cfg.Saga.MaxParallelism),
		sagaapp.WithStragglerWait(cfg.Saga.StragglerPollInterval, cfg.Saga.StragglerMaxRetries),
		sagaapp.WithCompensateOnCancel(cfg.Saga.CompensateOnCancel),
	)

	return d, nil
}

// Close releases resources in reverse order of acquisition
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
