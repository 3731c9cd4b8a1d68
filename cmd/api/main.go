package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pdfpro/api/internal/app"
	"pdfpro/api/internal/blob"
	"pdfpro/api/internal/config"
	"pdfpro/api/internal/discovery"
	"pdfpro/api/internal/gitrepo"
	"pdfpro/api/internal/live"
	"pdfpro/api/internal/logging"
	"pdfpro/api/internal/search"
	"pdfpro/api/internal/session"
	"pdfpro/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	if len(applied) > 0 {
		logger.Info().Strs("versions", applied).Msg("migrations applied")
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create repos dir")
	}

	dataStore := store.NewPostgresStore(db)
	opts := []app.Option{app.WithLogger(logger)}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		drafts, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer drafts.Close()
		opts = append(opts, app.WithDrafts(drafts))
		logger.Info().Msg("using redis for workspace drafts")
	} else {
		logger.Warn().Msg("REDIS_URL empty, workspaces are only saved by the periodic flush")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err := blob.New(blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("object storage client failed")
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := blobs.EnsureBucket(bucketCtx); err != nil {
			logger.Warn().Err(err).Str("bucket", cfg.MinioBucket).Msg("object storage unavailable, image uploads disabled")
		} else {
			opts = append(opts, app.WithBlobs(blobs))
		}
		cancel()
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	opts = append(opts, app.WithSearch(search.NewService(meiliClient, search.NewPgFTS(db), logger)))

	hub := live.NewHub(cfg.CORSOrigin, logger)
	opts = append(opts, app.WithHub(hub))

	service := app.New(cfg, dataStore, gitrepo.New(cfg.ReposDir), opts...)
	service.Start()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.MDNS {
		if advertiser, err := discovery.Advertise(listenPort(cfg.Addr), []string{"path=/api"}, logger); err != nil {
			logger.Warn().Err(err).Msg("mdns advertisement failed")
		} else {
			defer advertiser.Shutdown()
		}
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("pdfpro api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	service.Close(shutdownCtx)
	logger.Info().Msg("stopped")
}

func listenPort(addr string) int {
	_, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return 8787
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return 8787
	}
	return port
}

