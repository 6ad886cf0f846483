// Package components wires the core's dependency graph as a singleton
// Container: one newContainer() builds every collaborator in dependency
// order, and Start/Shutdown manage the HTTP server and the dispatcher's
// background goroutines together.
package components

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ledger-core/internal/api/handlers"
	"ledger-core/internal/api/routes"
	"ledger-core/internal/config"
	"ledger-core/internal/core"
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

// Container holds every application component and its dependencies.
type Container struct {
	Config     *config.Config
	Store      *postgres.Store
	Publisher  messaging.JournalPublisher
	Registry   *registry.Registry
	Workers    *workers.Workers
	Dispatcher *dispatcher.Dispatcher
	Core       *core.Core
	Router     *gin.Engine
	Server     *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	instance     *Container
	instanceOnce sync.Once
	instanceErr  error
)

// GetInstance returns the singleton container instance, built once.
func GetInstance(ctx context.Context) (*Container, error) {
	instanceOnce.Do(func() {
		instance, instanceErr = newContainer(ctx)
	})
	return instance, instanceErr
}

// New creates and initializes all application components. Kept as an
// alias to GetInstance for cmd/api/main.go's call shape.
func New(ctx context.Context) (*Container, error) {
	return GetInstance(ctx)
}

func newContainer(ctx context.Context) (*Container, error) {
	c := &Container{}

	c.initConfig()
	c.initLogger()

	if err := c.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.initEventPublisher()
	c.initWorkers()
	c.initDispatcher()
	c.initCore()
	c.initServer()

	logging.Info("all components initialized successfully", nil)
	return c, nil
}

func (c *Container) initConfig() {
	c.Config = config.Load()
}

func (c *Container) initLogger() {
	logging.Init(c.Config)
	logging.Info("logger initialized", map[string]interface{}{"level": c.Config.Logging.Level})
}

func (c *Container) initDatabase(ctx context.Context) error {
	store, err := postgres.New(ctx, c.Config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	c.Store = store
	logging.Info("database initialized", map[string]interface{}{
		"host":     c.Config.Database.Host,
		"database": c.Config.Database.Database,
	})
	return nil
}

// initEventPublisher sets up the Kafka journal publisher, falling back to
// a no-op publisher when Kafka is disabled or unreachable so the core can
// still accept and process commands without a broker: journal fan-out is
// best-effort, never part of the write-ahead guarantee a Command row
// already provides.
func (c *Container) initEventPublisher() {
	if !c.Config.Kafka.Enabled {
		logging.Info("kafka disabled, using no-op journal publisher", nil)
		c.Publisher = messaging.NewNoOpJournalPublisher()
		return
	}

	kafkaConfig := kafka.NewConfigFromEnv()
	publisher, err := messaging.NewKafkaJournalPublisher(kafkaConfig)
	if err != nil {
		logging.Warn("failed to initialize kafka, using no-op journal publisher", map[string]interface{}{
			"error": err.Error(),
		})
		c.Publisher = messaging.NewNoOpJournalPublisher()
		return
	}
	c.Publisher = publisher
	logging.Info("kafka journal publisher initialized", map[string]interface{}{"brokers": kafkaConfig.Brokers})
}

func (c *Container) initWorkers() {
	c.Workers = workers.New(workers.Deps{
		Store:     c.Store,
		Lookup:    lookup.New(c.Store),
		Publisher: c.Publisher,
		OCCPolicy: occ.Policy{
			MaxRetries:   c.Config.Queue.OCCMaxRetries,
			BaseInterval: c.Config.Queue.OCCBaseInterval,
		},
		QueuePolicy: scheduler.BackoffPolicy{
			Base:       c.Config.Queue.BaseRetryDelay,
			Max:        c.Config.Queue.MaxRetryDelay,
			MaxRetries: c.Config.Queue.MaxRetries,
		},
	})
}

func (c *Container) initDispatcher() {
	c.Registry = registry.New()
	c.Dispatcher = dispatcher.New(c.Store, c.Registry, c.Workers, c.Config.Queue, c.Config.Queue.ProcessorName)
}

func (c *Container) initCore() {
	c.Core = core.New(c.Store, c.Workers, func(instanceID uuid.UUID) {
		c.Registry.WakeIfRegistered(instanceID)
	})
}

func (c *Container) initServer() {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	c.Router = gin.Default()
	routes.RegisterRoutes(c.Router, c, c.Config)

	c.Server = &http.Server{
		Addr:           ":" + c.Config.Server.Port,
		Handler:        c.Router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	logging.Info("http server configured", map[string]interface{}{"port": c.Config.Server.Port})
}

// Start begins serving HTTP requests and runs the dispatcher's Monitor
// loop (which sweeps stalled items on every poll tick) in the background,
// then blocks until shutdown.
func (c *Container) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Dispatcher.Run(ctx)
	}()

	logging.Info("starting http server", map[string]interface{}{"address": c.Server.Addr})
	go func() {
		if err := c.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("server failed to start", err, nil)
			os.Exit(1)
		}
	}()

	c.waitForShutdown()
	return nil
}

func (c *Container) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down server...", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Shutdown(ctx); err != nil {
		logging.Error("server forced to shutdown", err, nil)
	}
	logging.Info("server shutdown complete", nil)
}

// Shutdown gracefully stops the HTTP server, the dispatcher's background
// goroutines, and the journal publisher, in that order.
func (c *Container) Shutdown(ctx context.Context) error {
	if err := c.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			logging.Error("failed to close journal publisher", err, nil)
		}
	}
	c.Store.Close()
	return nil
}

// GetCore satisfies handlers.HandlerDependencies.
func (c *Container) GetCore() *core.Core {
	return c.Core
}

// GetStore satisfies handlers.HandlerDependencies.
func (c *Container) GetStore() handlers.DeadLetterStore {
	return c.Store
}

// GetConfig returns the configuration.
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRouter returns the Gin router.
func (c *Container) GetRouter() *gin.Engine {
	return c.Router
}
