package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/transfer_monitor/internal/cleanup"
	"github.com/italolelis/transfer_monitor/internal/config"
	"github.com/italolelis/transfer_monitor/internal/http/rest"
	"github.com/italolelis/transfer_monitor/internal/lock/redislock"
	"github.com/italolelis/transfer_monitor/internal/logctx"
	"github.com/italolelis/transfer_monitor/internal/notifier"
	"github.com/italolelis/transfer_monitor/internal/renamer"
	"github.com/italolelis/transfer_monitor/internal/storage"
	"github.com/italolelis/transfer_monitor/internal/storage/sqlite"
	"github.com/italolelis/transfer_monitor/internal/telemetry"
	"github.com/italolelis/transfer_monitor/internal/transfer"
	"github.com/italolelis/transfer_monitor/internal/transport/putio"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const serviceName = "transfer_monitor"

// set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))).
		With("instance_id", storage.GenerateInstanceID())
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("transfer monitor starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedRepository(database, tel)

	// =========================================================================
	// Start Lock Backend
	locker, closeLocker, err := buildLocker(ctx, cfg, database, tel)
	if err != nil {
		return fmt.Errorf("failed to build lock backend: %w", err)
	}
	defer closeLocker()

	// =========================================================================
	// Start Notification
	sink := buildSink(ctx, cfg, tel)

	// =========================================================================
	// Start Transfer Coordinator
	cleaner := cleanup.NewCleaner(repo, cfg.WorkDir, cfg.FileMaxAge, tel)

	coord := transfer.NewCoordinator(locker, sink,
		transfer.WithArtifactRemover(cleaner),
		transfer.WithTelemetry(tel),
		transfer.WithConfig(transfer.Config{
			NotifyInterval:       cfg.NotifyInterval,
			FinalDeliveryTimeout: cfg.FinalDeliveryTimeout,
			LockRenewInterval:    cfg.LockTTL / 3,
		}),
	)

	// =========================================================================
	// Start Transport
	client := putio.NewClient(cfg.PutioToken)
	if err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication error: %w", err)
	}

	svc := renamer.NewService(coord, client, repo, cleaner, sink, renamer.Config{
		WorkDir:     cfg.WorkDir,
		MaxFileSize: cfg.MaxFileSize,
	})

	// =========================================================================
	// Start API Service
	server, err := setupServer(ctx, cfg, svc, coord, repo, tel)
	if err != nil {
		return fmt.Errorf("failed to setup server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	g.Go(func() error {
		err := cleaner.Run(gctx, cfg.CleanupInterval)
		logger.Info("cleanup goroutine shutting down.")

		return err
	})

	logger.Info("waiting for renames...",
		"work_dir", cfg.WorkDir,
		"lock_backend", cfg.LockBackend,
		"notify_interval", cfg.NotifyInterval.String(),
		"file_max_age", cfg.FileMaxAge.String(),
	)

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		if err := svc.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop running renames: %w", err)
		}

		return nil
	})

	return g.Wait()
}

// buildLocker picks the per-user lock backend.
func buildLocker(ctx context.Context, cfg *config.Config, db *sql.DB, tel *telemetry.Telemetry) (transfer.Locker, func(), error) {
	noop := func() {}

	switch cfg.LockBackend {
	case config.LockBackendMemory:
		return transfer.NewInstrumentedLocker(transfer.NewMemoryLocker(), tel, cfg.LockBackend), noop, nil
	case config.LockBackendSQLite:
		return transfer.NewInstrumentedLocker(sqlite.NewLockRepository(db, cfg.LockTTL), tel, cfg.LockBackend), noop, nil
	case config.LockBackendRedis:
		client, err := redislock.Connect(ctx, redislock.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, noop, err
		}

		closeFn := func() {
			if err := client.Close(); err != nil {
				logctx.LoggerFromContext(ctx).Error("failed to close redis client", "err", err)
			}
		}

		return transfer.NewInstrumentedLocker(redislock.New(client, cfg.LockTTL), tel, cfg.LockBackend), closeFn, nil
	}

	return nil, noop, fmt.Errorf("invalid lock backend: %s", cfg.LockBackend)
}

// buildSink picks the notification sink; the log sink is the fallback.
func buildSink(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) notifier.Sink {
	logger := logctx.LoggerFromContext(ctx)

	switch {
	case cfg.TelegramBotToken != "":
		logger.Info("notifications enabled", "sink", "telegram")

		return notifier.NewInstrumentedSink("telegram", &notifier.TelegramNotifier{
			Token:  cfg.TelegramBotToken,
			ChatID: cfg.TelegramChatID,
			Client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		}, tel)
	case cfg.DiscordWebhookURL != "":
		logger.Info("notifications enabled", "sink", "discord")

		return notifier.NewInstrumentedSink("discord", &notifier.DiscordNotifier{
			WebhookURL: cfg.DiscordWebhookURL,
			Client:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		}, tel)
	}

	logger.Warn("no notification sink configured, progress goes to the log")

	return notifier.NewInstrumentedSink("log", notifier.LogNotifier{}, tel)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, svc *renamer.Service, coord *transfer.Coordinator, repo *sqlite.InstrumentedRepository, tel *telemetry.Telemetry) (*http.Server, error) {
	renames, err := rest.NewRenameHandler(svc, coord, repo, cfg.API.Username, cfg.API.Password)
	if err != nil {
		return nil, err
	}

	status := rest.NewStatusHandler(serviceName, version, coord, repo)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", status.Routes())
	r.Mount("/api", renames.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, serviceName),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}, nil
}
