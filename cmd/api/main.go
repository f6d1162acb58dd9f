package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"modelcards/api/internal/app"
	"modelcards/api/internal/config"
	"modelcards/api/internal/email"
	"modelcards/api/internal/export"
	"modelcards/api/internal/gitrepo"
	"modelcards/api/internal/metrics"
	"modelcards/api/internal/presence"
	"modelcards/api/internal/search"
	"modelcards/api/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "config load failed", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.ApplyMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		fatal(logger, "migrations failed", err)
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "database connection failed", err)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		fatal(logger, "failed to create repos dir", err)
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:   dataStore,
		Git:     gitrepo.New(cfg.ReposDir),
		Export:  export.NewService(dataStore, nil),
		Metrics: metrics.New(),
		Logger:  logger,
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(dataStore), logger)
	deps.Search = searchService
	go func() {
		// Give the health loop a moment before the initial backfill.
		time.Sleep(5 * time.Second)
		searchService.ReindexFromPG(ctx)
	}()

	if strings.TrimSpace(cfg.RedisURL) != "" {
		presenceStore, err := presence.NewRedisStore(cfg.RedisURL, cfg.PresenceTTL)
		if err != nil {
			logger.Warn("presence disabled: redis unavailable", "err", err)
		} else {
			defer presenceStore.Close()
			deps.Presence = presenceStore
		}
	}

	if cfg.MinioEnabled() {
		packets, err := export.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err == nil {
			err = packets.EnsureBucket(ctx)
		}
		if err != nil {
			logger.Warn("packet storage disabled", "err", err)
		} else {
			deps.Packets = packets
		}
	}

	mailer := email.NewService(email.Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		From:      cfg.SMTPFrom,
		FromName:  cfg.SMTPFromName,
		Reviewers: cfg.ReviewerEmails,
		AppURL:    cfg.PublicURL,
	})
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	}

	service := app.New(cfg, deps)
	service.StartJanitor(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("model cards API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "server failed", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("service shutdown error", "err", err)
	}
	searchService.Wait()
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
