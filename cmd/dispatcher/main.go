// Command dispatcher runs the Monitor standalone, independent of cmd/api
// and cmd/dashboard but sharing the same database.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ledger-core/internal/config"
	"ledger-core/internal/dispatcher"
	"ledger-core/internal/infrastructure/messaging"
	"ledger-core/internal/infrastructure/messaging/kafka"
	"ledger-core/internal/infrastructure/postgres"
	"ledger-core/internal/lookup"
	"ledger-core/internal/occ"
	"ledger-core/internal/pkg/logging"
	"ledger-core/internal/registry"
	"ledger-core/internal/scheduler"
	"ledger-core/internal/workers"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	logging.Init(cfg)

	store, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	publisher := newPublisher(cfg)
	defer publisher.Close()

	w := workers.New(workers.Deps{
		Store:     store,
		Lookup:    lookup.New(store),
		Publisher: publisher,
		OCCPolicy: occ.Policy{
			MaxRetries:   cfg.Queue.OCCMaxRetries,
			BaseInterval: cfg.Queue.OCCBaseInterval,
		},
		QueuePolicy: scheduler.BackoffPolicy{
			Base:       cfg.Queue.BaseRetryDelay,
			Max:        cfg.Queue.MaxRetryDelay,
			MaxRetries: cfg.Queue.MaxRetries,
		},
	})

	reg := registry.New()
	d := dispatcher.New(store, reg, w, cfg.Queue, cfg.Queue.ProcessorName)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		d.Run(runCtx)
		close(done)
	}()

	logging.Info("dispatcher started", map[string]interface{}{
		"processor_name": cfg.Queue.ProcessorName,
		"poll_interval":  cfg.Queue.PollInterval.String(),
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("dispatcher shutting down...", nil)
	cancel()
	<-done
	logging.Info("dispatcher shutdown complete", nil)
}

func newPublisher(cfg *config.Config) messaging.JournalPublisher {
	if !cfg.Kafka.Enabled {
		logging.Info("kafka disabled, using no-op journal publisher", nil)
		return messaging.NewNoOpJournalPublisher()
	}
	kafkaConfig := kafka.NewConfigFromEnv()
	publisher, err := messaging.NewKafkaJournalPublisher(kafkaConfig)
	if err != nil {
		logging.Warn("failed to initialize kafka, using no-op journal publisher", map[string]interface{}{
			"error": err.Error(),
		})
		return messaging.NewNoOpJournalPublisher()
	}
	return publisher
}
