package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"deliverynet/config"
	"deliverynet/core/events"
	"deliverynet/core/market"
	"deliverynet/core/state"
	"deliverynet/integrations/payouts"
	"deliverynet/observability"
	"deliverynet/rpc"
	"deliverynet/services/indexer"
	"deliverynet/storage"
)

// node holds everything a running daemon owns so it can be torn down in
// reverse order.
type node struct {
	db        storage.Database
	engine    *market.Engine
	hub       *rpc.Hub
	publisher *payouts.Publisher
	index     *indexer.Store
	handler   http.Handler
	logger    *slog.Logger
}

func assemble(cfg *config.Config, logger *slog.Logger, allowMigrate bool) (*node, error) {
	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	n := &node{db: db, logger: logger}

	st := state.NewManager(db)
	fresh, err := st.EnsureSchema(cfg.TokenPrecision, allowMigrate)
	if err != nil {
		n.close()
		return nil, fmt.Errorf("check state schema: %w", err)
	}
	if fresh {
		logger.Info("initialised state schema",
			slog.Uint64("version", state.SchemaVersion),
			slog.Int("token_precision", int(cfg.TokenPrecision)))
	}

	engine := market.NewEngine(st)
	engine.SetTokenPrecision(cfg.TokenPrecision)
	engine.SetLogger(logger)
	engine.SetMetrics(observability.Market())
	n.engine = engine

	n.hub = rpc.NewHub(logger)
	sinks := events.Fanout{n.hub, observability.Events()}

	if len(cfg.Kafka.Brokers) > 0 {
		writer := payouts.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher, err := payouts.NewPublisher(writer,
			payouts.WithLogger(logger),
			payouts.WithMetrics(observability.Payouts()),
		)
		if err != nil {
			n.close()
			return nil, fmt.Errorf("payout publisher: %w", err)
		}
		n.publisher = publisher
		sinks = append(sinks, publisher)
		logger.Info("payout notifications enabled",
			slog.String("topic", cfg.Kafka.Topic),
			slog.String("brokers", strings.Join(cfg.Kafka.Brokers, ",")))
	}

	if driver := strings.TrimSpace(cfg.Indexer.Driver); driver != "" {
		gdb, err := indexer.Open(driver, cfg.Indexer.DSN)
		if err != nil {
			n.close()
			return nil, fmt.Errorf("open indexer: %w", err)
		}
		store, err := indexer.NewStore(gdb, logger)
		if err != nil {
			n.close()
			return nil, fmt.Errorf("indexer store: %w", err)
		}
		n.index = store
		sinks = append(sinks, store)
		logger.Info("event indexer enabled", slog.String("driver", driver))
	}
	engine.SetEmitter(sinks)

	server := rpc.NewServer(engine, rpc.Config{
		Auth: rpc.AuthConfig{
			Enabled:        cfg.Auth.Enabled,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			ClockSkew:      time.Duration(cfg.Auth.ClockSkewSecs) * time.Second,
			AdminAccounts:  cfg.Auth.AdminAccounts,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Hub:     n.hub,
		Indexer: n.index,
		Logger:  logger,
	})
	n.handler = server.Handler()
	return n, nil
}

// close flushes the asynchronous sinks before the database goes away.
func (n *node) close() error {
	var errs []error
	if n.publisher != nil {
		if err := n.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close payout publisher: %w", err))
		}
	}
	if n.index != nil {
		n.index.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
	return errors.Join(errs...)
}
