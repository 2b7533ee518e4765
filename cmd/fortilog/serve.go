package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/fortilog-systems/fortilog/internal/alert"
	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/directory"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/parser"
	"github.com/fortilog-systems/fortilog/internal/pipeline"
	"github.com/fortilog-systems/fortilog/internal/server"
	"github.com/fortilog-systems/fortilog/internal/store"
	"github.com/fortilog-systems/fortilog/internal/sysmon"
	"github.com/fortilog-systems/fortilog/internal/tailer"
)

var migrationsPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector and API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&migrationsPath, "migrations", "migrations", "path to migration files")
}

func runServe(cfg *config.Config) error {
	log := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connString := cfg.Database.ConnString()
	m, err := migrate.New("file://"+migrationsPath, connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	dirs := directory.NewProvider(directory.NewPostgresLoader(pool), cfg.Dirs.RefreshInterval, log)
	if err := dirs.Refresh(ctx); err != nil {
		log.Warn("initial directory load failed, starting with empty directories", "error", err)
	}

	enricher, err := parser.NewEnricher(cfg.Parser)
	if err != nil {
		return fmt.Errorf("failed to create enricher: %w", err)
	}

	pg := store.NewPostgres(pool, cfg.Store)
	writer := store.NewWriter(pg, cfg.Store, log)
	sampler := sysmon.New(cfg.Monitor, log)

	limiter, err := newLimiter(cfg)
	if err != nil {
		return err
	}
	defer limiter.Close()

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer notifier.Close()

	dispatcher := alert.NewDispatcher(cfg.Alerts, cfg.Monitor.SampleInterval, sampler, limiter, notifier, log)

	ingestion := pipeline.NewIngestion(
		tailer.New(cfg.Tailer, log),
		parser.New(enricher, dirs),
		writer,
		log,
	)

	handler := server.NewHandler(pg, sampler, dispatcher, dirs, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	writerDone := make(chan struct{})
	go func() {
		writer.Run(ctx)
		close(writerDone)
	}()
	go dirs.Run(ctx)
	go sampler.Run(ctx)
	go dispatcher.Run(ctx)
	go func() {
		// A dead ingestion path is fatal for collection only; the query API
		// keeps serving what is already stored.
		if err := ingestion.Run(ctx); err != nil {
			log.Error("ingestion terminated", "error", err)
		}
	}()
	if cfg.Alerts.AuthLogPath != "" {
		authCfg := cfg.Tailer
		authCfg.Path = cfg.Alerts.AuthLogPath
		feed := pipeline.NewAuthFeed(tailer.New(authCfg, log), dispatcher, log)
		go func() {
			if err := feed.Run(ctx); err != nil {
				log.Warn("auth feed terminated", "error", err)
			}
		}()
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// The writer drains and flushes its buffer before exiting.
	select {
	case <-writerDone:
	case <-shutdownCtx.Done():
		log.Warn("timed out waiting for final flush")
	}

	return nil
}

func newLimiter(cfg *config.Config) (alert.Limiter, error) {
	if cfg.Redis.Enabled {
		limiter, err := alert.NewRedisLimiter(cfg.Redis.URL, cfg.Alerts.CPUCooldown)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cooldown: %w", err)
		}
		return limiter, nil
	}
	return alert.NewMemoryLimiter(cfg.Alerts.CPUCooldown), nil
}

func newNotifier(cfg *config.Config, log *logging.Logger) (alert.Notifier, error) {
	if cfg.NATS.Enabled {
		notifier, err := alert.NewNATSNotifier(cfg.NATS, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS notifier: %w", err)
		}
		return notifier, nil
	}
	return alert.NewLogNotifier(log), nil
}
