package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnngondi/vito/internal/api"
	"github.com/johnngondi/vito/internal/config"
	"github.com/johnngondi/vito/internal/database"
	"github.com/johnngondi/vito/internal/jobs"
	"github.com/johnngondi/vito/internal/logger"
	"github.com/johnngondi/vito/internal/monitoring"
	"github.com/johnngondi/vito/internal/queue"
	"github.com/johnngondi/vito/internal/remote"
	"github.com/johnngondi/vito/internal/services"
	"github.com/johnngondi/vito/internal/storage"
	"github.com/johnngondi/vito/internal/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up database
	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	executor, err := remote.NewSSHExecutorFromFile(cfg.SSHPrivateKeyPath, remote.SSHConfig{
		KnownHostsPath: cfg.SSHKnownHostsPath,
		ConnectTimeout: cfg.SSHConnectTimeout,
		CommandTimeout: cfg.RemoteCommandTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SSH executor")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()

	q := queue.New(db, queue.Config{
		Lanes: []queue.LaneConfig{
			{Name: cfg.SSHLane, Concurrency: cfg.SSHLaneConcurrency, PerKeyConcurrency: cfg.SSHLanePerServer},
			{Name: config.DefaultLane, Concurrency: cfg.DefaultLaneConcurrency},
		},
		Defaults: queue.Options{
			MaxAttempts: cfg.JobMaxAttempts,
			BackoffBase: cfg.JobBackoffBase,
			BackoffMax:  cfg.JobBackoffMax,
			Timeout:     cfg.JobLease,
		},
		PollInterval: cfg.QueuePollInterval,
	})
	dispatcher := jobs.Dispatcher{Queue: q, Lanes: jobs.Lanes{SSH: cfg.SSHLane, Default: config.DefaultLane}}

	// Set up services
	eventService := services.NewEventService(db, hub)
	serverService := services.NewServerService(db, eventService)
	sshKeyService := services.NewSshKeyService(db, dispatcher, eventService)
	storageService := services.NewStorageService(db)
	databaseService := services.NewDatabaseService(db)
	backupService := services.NewBackupService(db, dispatcher, eventService)

	jobs.Register(q, jobs.Deps{
		DB:              db,
		Dispatcher:      dispatcher,
		Executor:        executor,
		Storage:         storage.DefaultFactory{LocalRoot: cfg.LocalStoragePath},
		Notifier:        eventService,
		RemoteBackupDir: cfg.RemoteBackupDir,
		CommandTimeout:  cfg.RemoteCommandTimeout,
	}, queue.Options{})

	scheduler := monitoring.NewScheduler(backupService, eventService, cfg.SchedulerInterval)
	sweeper := monitoring.NewSweeper(db, q, eventService, cfg.JobLease, cfg.SweepInterval)

	router := api.NewRouter(hub, api.Services{
		Servers:   serverService,
		SshKeys:   sshKeyService,
		Storage:   storageService,
		Databases: databaseService,
		Backups:   backupService,
		Events:    eventService,
		Jobs:      q,
	}, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return q.Start(gctx)
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exiting")
}
