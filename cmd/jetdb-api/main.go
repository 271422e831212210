package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benturneroffice365-web/jetdb/internal/api"
	"github.com/benturneroffice365-web/jetdb/internal/auth"
	catalogpostgres "github.com/benturneroffice365-web/jetdb/internal/catalog/postgres"
	"github.com/benturneroffice365-web/jetdb/internal/config"
	"github.com/benturneroffice365-web/jetdb/internal/ingest"
	"github.com/benturneroffice365-web/jetdb/internal/nlq"
	duckdbengine "github.com/benturneroffice365-web/jetdb/internal/nlq/duckdb"
	"github.com/benturneroffice365-web/jetdb/internal/observability"
	s3store "github.com/benturneroffice365-web/jetdb/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("jetdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	catalogRepo := catalogpostgres.NewRepository(catalogDB)
	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	engine := duckdbengine.NewEngine(objectStore, duckdbengine.Config{
		MaxResultRows:    cfg.Query.MaxResultRows,
		StatementTimeout: cfg.Query.Timeout,
		SchemaSampleRows: cfg.Query.SchemaSampleRows,
	})

	var gateway api.QuestionGateway
	if cfg.AI.APIKey != "" {
		synthesizer, err := nlq.NewOpenAISynthesizer(nlq.OpenAIConfig{
			BaseURL:         cfg.AI.BaseURL,
			APIKey:          cfg.AI.APIKey,
			Model:           cfg.AI.Model,
			Temperature:     cfg.AI.Temperature,
			MaxOutputTokens: cfg.AI.MaxOutputTokens,
			RowLimit:        cfg.Query.MaxResultRows,
			Timeout:         cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize sql synthesizer", slog.Any("error", err))
			os.Exit(1)
		}
		gateway = nlq.NewGateway(engine, synthesizer, engine, logger)
	} else {
		logger.Warn("JETDB_AI_API_KEY is not set; natural-language querying is disabled")
	}

	deps := api.Dependencies{
		Logger:      logger,
		Catalog:     catalogRepo,
		ObjectStore: objectStore,
		Gateway:     gateway,
		Executor:    engine,
		Readiness: api.CombineReadinessChecks(
			api.CheckCatalog(catalogRepo),
			api.CheckObjectStoreConfig(cfg),
			api.CheckObjectStore(objectStore),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := &ingest.Worker{
		Catalog:     catalogRepo,
		ObjectStore: objectStore,
		Config: ingest.WorkerConfig{
			PollInterval: cfg.Ingest.PollInterval,
			ClaimedBy:    cfg.Ingest.ClaimedBy,
		},
		Logger: logger,
	}
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("ingest worker failed", slog.Any("error", err))
			stop()
		}
	}()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
