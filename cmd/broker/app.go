package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/faxretriever/broker/internal/audit"
	"github.com/faxretriever/broker/internal/db"
	"github.com/faxretriever/broker/internal/handlers"
	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/obs"
	"github.com/faxretriever/broker/internal/repository"
	"github.com/faxretriever/broker/internal/repository/postgres"
	"github.com/faxretriever/broker/internal/service/assignment"
	"github.com/faxretriever/broker/internal/service/bearer"
	"github.com/faxretriever/broker/internal/service/issuer"
	"github.com/faxretriever/broker/internal/service/provider"
	"github.com/faxretriever/broker/internal/service/refresher"
	"github.com/faxretriever/broker/internal/service/registry"
	"github.com/faxretriever/broker/internal/service/resellers"
	"github.com/faxretriever/broker/internal/vault"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	storage   repository.Storage
	recorder  *audit.Recorder
	refresher *refresher.Refresher
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Audit recorder feeds every service below; its writer goroutine is
	// started in Run
	recorder := audit.NewRecorder(audit.Config{}, storage.Audit(), logger)

	credVault, err := vault.New(vault.Config{MasterKey: c.MasterKey}, recorder)
	if err != nil {
		return nil, fmt.Errorf("error while creating credential vault: %w", err)
	}

	// Initialize services
	tokenManager, err := issuer.NewTokenManager(issuer.TokenConfig{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager: %w", err)
	}

	providerClient := provider.NewClient(c.ProviderTokenURL, logger)
	bearerService := bearer.NewService(bearer.Config{}, storage.Resellers(), credVault, providerClient, recorder, logger)
	registryService := registry.NewService(storage, recorder, logger)
	resellerService := resellers.NewService(storage.Resellers(), credVault, recorder, logger)
	assignmentService := assignment.NewService(storage.Assignments(), recorder, logger)
	issuerService := issuer.NewService(registryService, assignmentService, tokenManager, recorder, logger)

	obs.Init()

	mux := handlers.NewRouter(handlers.RouterConfig{
		Issuer:      issuerService,
		Bearer:      bearerService,
		Registry:    registryService,
		Resellers:   resellerService,
		Assignments: assignmentService,
		Audit:       storage.Audit(),
		AdminKey:    c.AdminKey,
		Logger:      logger,
	})

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		storage:    storage,
		recorder:   recorder,
		refresher:  refresher.New(refresher.Config{}, storage.Resellers(), bearerService, logger),
	}, nil
}

// Run starts the background workers and the http server, then closes
// everything gracefully on context cancellation.
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	auditStopped := s.recorder.Run(workerCtx)
	refresherStopped := s.refresher.Process(workerCtx)

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	// Stop workers after the server so late requests still get audited
	workerCancel()
	<-refresherStopped
	<-auditStopped

	return err
}
