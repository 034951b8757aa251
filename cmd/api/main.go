package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"teamdesk/api/internal/app"
	"teamdesk/api/internal/blob"
	"teamdesk/api/internal/config"
	"teamdesk/api/internal/email"
	"teamdesk/api/internal/logging"
	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/search"
	"teamdesk/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataStore, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var broker realtime.Broker = realtime.NewHub()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisBroker, err := realtime.NewRedisBroker(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisBroker.Close()
		broker = redisBroker
		logger.Info().Msg("realtime events fan out through redis")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewStoreSearch(dataStore), logger)

	var blobs blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := blob.NewMinioStore(blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("minio client failed")
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Msg("minio bucket unavailable")
		}
		blobs = minioStore
	} else {
		logger.Warn().Msg("MINIO_ENDPOINT not set, file sharing and announcement images are disabled")
	}

	deps := app.Deps{
		Store:    dataStore,
		Realtime: broker,
		Search:   searchService,
		Blobs:    blobs,
		Log:      logger,
	}
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	}
	service := app.New(cfg, deps)
	if meiliClient != nil {
		if err := service.Reindex(ctx); err != nil {
			logger.Warn().Err(err).Msg("search reindex failed")
		}
	}
	go service.RunDeadlineScanner(ctx)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("store", cfg.StoreBackend).Msg("teamdesk api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

// openStore connects the configured document store. "memory" keeps all data
// in process and is meant for local runs.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (app.DataStore, func()) {
	if strings.EqualFold(cfg.StoreBackend, "memory") {
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), func() {}
	}

	client, db, err := store.Open(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	if err := store.EnsureIndexes(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("index setup failed")
	}
	return store.NewMongoStore(db), func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(closeCtx); err != nil {
			logger.Error().Err(err).Msg("database disconnect failed")
		}
	}
}
