package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabletalk/tabletalk/internal/api"
	"github.com/tabletalk/tabletalk/internal/archive"
	"github.com/tabletalk/tabletalk/internal/assistant"
	"github.com/tabletalk/tabletalk/internal/auth"
	catalogmysql "github.com/tabletalk/tabletalk/internal/catalog/mysql"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/database"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/migrations"
	"github.com/tabletalk/tabletalk/internal/nl2sql"
	"github.com/tabletalk/tabletalk/internal/observability"
	s3store "github.com/tabletalk/tabletalk/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	dbConfig := catalogmysql.DBConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		ConnectionLimit: cfg.Database.ConnectionLimit,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}

	if cfg.Database.AutoMigrate {
		if err := migrate(context.Background(), dbConfig, logger); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	completer, closer, err := llm.NewCompleter(context.Background(), cfg.AI)
	if err != nil {
		// Requests still run: query translation falls back and answers fail
		// with a configuration error.
		logger.Error("failed to initialize model client", slog.Any("error", err))
		completer, closer = nil, nil
	}
	invoker := llm.NewInvoker(completer, cfg.AI.Timeout, logger)
	logger.Info("model invoker configured",
		slog.String("query_model", cfg.AI.QueryModel),
		slog.Duration("timeout", invoker.Timeout()),
		slog.Bool("available", completer != nil),
	)
	profiles := llm.ProfilesFromConfig(cfg.AI)

	deps := assistant.Deps{
		Opener:      database.NewPoolOpener(dbConfig),
		Translator:  nl2sql.NewTranslator(invoker, profiles.Query, logger),
		Synthesizer: nl2sql.NewSynthesizer(invoker, profiles.Answer),
		Classifier:  nl2sql.NewPlotClassifier(invoker, profiles.Plot),
		Logger:      logger,
	}
	if cfg.Archive.Enabled {
		store, err := s3store.New(context.Background(), cfg.Archive)
		if err != nil {
			logger.Error("failed to initialize archive store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver, err := archive.New(store)
		if err != nil {
			logger.Error("failed to initialize archiver", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Archive = archiver
	}
	service, err := assistant.New(deps)
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	handlerDeps := api.Dependencies{
		Logger:            logger,
		Assistant:         service,
		Readiness:         api.CombineReadinessChecks(service.Ready),
		DependencyTimeout: cfg.Database.ConnectTimeout + time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("static api keys loaded", slog.Int("count", validator.Len()))
		handlerDeps.AuthValidator = validator
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address(),
		Handler:      api.NewHandler(cfg, handlerDeps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	shutdownErr := server.Shutdown(shutdownCtx)
	closeModel(closer, logger)
	if shutdownErr != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", shutdownErr))
		_ = server.Close()
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg catalogmysql.DBConfig, logger *slog.Logger) error {
	db, err := catalogmysql.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	runner, err := migrations.NewRunner(db)
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Int("count", applied))
	return nil
}

func closeModel(closer io.Closer, logger *slog.Logger) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close model client", slog.Any("error", err))
	}
}
