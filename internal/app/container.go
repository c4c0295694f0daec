// Package app provides the dependency injection container for the application.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/infra/config"
	"github.com/runoshun/relay/internal/infra/executor"
	"github.com/runoshun/relay/internal/infra/filestore"
	"github.com/runoshun/relay/internal/infra/logging"
	"github.com/runoshun/relay/internal/infra/sqlitestore"
	"github.com/runoshun/relay/internal/infra/telegram"
	"github.com/runoshun/relay/internal/usecase"
)

// Config holds the application paths and options.
type Config struct {
	Console io.Writer // Mirror of the log files, nil to disable
	DataDir string
}

// Container provides dependency injection for the application.
// It holds all port implementations and provides factory methods for use cases.
type Container struct {
	// Ports (interfaces bound to implementations)
	Store         domain.CoordinatorStore
	Transport     domain.Transport // nil without a bot token
	Sender        domain.Sender    // nil without a bot token
	Worker        domain.Worker    // nil without a worker command
	Clock         domain.Clock
	ConfigLoader  domain.ConfigLoader
	ConfigManager domain.ConfigManager
	Logger        domain.Logger

	// Pointer fields
	Diag      *slog.Logger // Process diagnostics on stderr
	AppConfig *domain.Config

	closers []io.Closer

	// Configuration
	Config Config
}

// New loads the configuration of dataDir and wires every port.
func New(cfg Config) (*Container, error) {
	diag := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	configLoader := config.NewLoader(cfg.DataDir)
	appConfig, err := configLoader.Load()
	if err != nil {
		return nil, err
	}
	for _, w := range appConfig.Warnings {
		diag.Warn("config", "warning", w)
	}

	logger := logging.New(cfg.DataDir, logging.Options{
		Console: cfg.Console,
		Level:   logging.ParseLevel(appConfig.Log.Level),
	})
	c := &Container{
		Clock:         domain.RealClock{},
		ConfigLoader:  configLoader,
		ConfigManager: config.NewManager(cfg.DataDir),
		Logger:        logger,
		Diag:          diag,
		AppConfig:     appConfig,
		Config:        cfg,
		closers:       []io.Closer{logger},
	}

	switch appConfig.Store.Backend {
	case domain.StoreBackendSQLite:
		store, err := sqlitestore.Open(cfg.DataDir, logger)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Store = store
		c.closers = append(c.closers, store)
	default:
		c.Store = filestore.New(cfg.DataDir, logger)
	}

	if tg := appConfig.Telegram; tg.Token != "" {
		client := telegram.NewClient(telegram.Config{
			Token:       tg.Token,
			APIRoot:     tg.APIRoot,
			PollTimeout: tg.PollTimeout.Std(),
		})
		c.Transport = telegram.NewTransport(client, c.Store, logger, cfg.DataDir, tg.AllowedUsers)
		c.Sender = telegram.NewSender(client)
	} else {
		diag.Debug("telegram disabled: no bot token")
	}

	if w := appConfig.Worker; w.Command != "" {
		c.Worker = executor.NewWorker(executor.Config{
			Command: w.Command,
			Args:    w.Args,
			DataDir: cfg.DataDir,
		}, c.Clock, logger)
	}

	return c, nil
}

// NewWithDeps creates a new Container with custom dependencies for testing.
func NewWithDeps(cfg Config, appConfig *domain.Config, store domain.CoordinatorStore, clock domain.Clock, logger domain.Logger) *Container {
	return &Container{
		Store:     store,
		Clock:     clock,
		Logger:    logger,
		Diag:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		AppConfig: appConfig,
		Config:    cfg,
	}
}

// Close releases the store and the log files.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close container: %w", errors.Join(errs...))
	}
	return nil
}

// RunInput returns the RunTask input built from the configuration.
func (c *Container) RunInput() usecase.RunTaskInput {
	return usecase.RunTaskInput{
		Retention:  c.AppConfig.Retention.Policy(),
		StaleAfter: c.AppConfig.Lease.StaleAfter.Std(),
		AckStart:   c.AppConfig.Telegram.AckStart,
	}
}

// UseCase factory methods

// InitStoreUseCase returns a new InitStore use case.
func (c *Container) InitStoreUseCase() *usecase.InitStore {
	return usecase.NewInitStore(c.Store, c.ConfigManager)
}

// CheckPendingUseCase returns a new CheckPending use case.
func (c *Container) CheckPendingUseCase() *usecase.CheckPendingUseCase {
	return usecase.NewCheckPending(c.Store, c.Transport, c.Clock, c.Logger)
}

// BuildTaskUseCase returns a new BuildTask use case.
func (c *Container) BuildTaskUseCase() *usecase.BuildTask {
	return usecase.NewBuildTask(c.Store, c.Transport, c.Sender, c.Clock, c.Logger)
}

// RunTaskUseCase returns a new RunTask use case.
func (c *Container) RunTaskUseCase() *usecase.RunTask {
	return usecase.NewRunTask(c.Store, c.Transport, c.Sender, c.Worker, c.Clock, c.Logger, c.Config.DataDir)
}

// ServeUseCase returns a new Serve use case.
func (c *Container) ServeUseCase() *usecase.Serve {
	return usecase.NewServe(c.RunTaskUseCase())
}

// HeartbeatUseCase returns a new Heartbeat use case.
func (c *Container) HeartbeatUseCase() *usecase.Heartbeat {
	return usecase.NewHeartbeat(c.Store, c.Clock, c.Logger)
}

// PollInterruptsUseCase returns a new PollInterrupts use case.
func (c *Container) PollInterruptsUseCase() *usecase.PollInterrupts {
	return usecase.NewPollInterrupts(c.Store, c.Transport, c.Clock, c.Logger)
}

// ShowLeaseUseCase returns a new ShowLease use case.
func (c *Container) ShowLeaseUseCase() *usecase.ShowLease {
	return usecase.NewShowLease(c.Store, c.Clock)
}

// ReclaimLeaseUseCase returns a new ReclaimLease use case.
func (c *Container) ReclaimLeaseUseCase() *usecase.ReclaimLease {
	return usecase.NewReclaimLease(c.Store, c.Sender, c.Clock, c.Logger)
}

// SearchMemoryUseCase returns a new SearchMemory use case.
func (c *Container) SearchMemoryUseCase() *usecase.SearchMemory {
	return usecase.NewSearchMemory(c.Store)
}

// ShowMemoryUseCase returns a new ShowMemory use case.
func (c *Container) ShowMemoryUseCase() *usecase.ShowMemory {
	return usecase.NewShowMemory(c.Store)
}

// PurgeMessagesUseCase returns a new PurgeMessages use case.
func (c *Container) PurgeMessagesUseCase() *usecase.PurgeMessages {
	return usecase.NewPurgeMessages(c.Store, c.Clock, c.Logger)
}

// ShowConfigUseCase returns a new ShowConfig use case.
func (c *Container) ShowConfigUseCase() *usecase.ShowConfig {
	return usecase.NewShowConfig(c.ConfigManager, c.ConfigLoader)
}
