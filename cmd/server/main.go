package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/iconidentify/gifstash/internal/api"
	"github.com/iconidentify/gifstash/internal/api/handler"
	"github.com/iconidentify/gifstash/internal/audit"
	"github.com/iconidentify/gifstash/internal/config"
	"github.com/iconidentify/gifstash/internal/downloader"
	"github.com/iconidentify/gifstash/internal/ratelimit"
	"github.com/iconidentify/gifstash/internal/repository"
	"github.com/iconidentify/gifstash/internal/service"
	"github.com/iconidentify/gifstash/internal/storage"
	"github.com/iconidentify/gifstash/internal/worker"
	"github.com/iconidentify/gifstash/pkg/ffmpeg"
	"github.com/iconidentify/gifstash/pkg/twitter"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gifstash %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gifstash",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Connect to Postgres
	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	defer db.Close()

	linkRepo := repository.NewPostgresLinkRepository(db)
	if err := linkRepo.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	jobRepo := repository.NewInMemoryJobRepository()

	// Object storage
	store, err := storage.NewS3Store(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}

	// Rate limiter
	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient)
	default:
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.SweepInterval)
		defer memLimiter.Stop()
		limiter = memLimiter
	}

	// Audit trail
	auditor, err := audit.NewService(audit.Config{
		BufferSize:    cfg.Audit.BufferSize,
		SQLitePath:    cfg.Audit.SQLitePath,
		RetentionDays: cfg.Audit.RetentionDays,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize audit trail", "error", err)
		os.Exit(1)
	}
	defer auditor.Close()

	// Tweet resolution and media download
	resolver := twitter.NewClient(twitter.Config{}, logger)
	fetcher := downloader.NewHTTPDownloader(cfg.Download, logger)

	// Optional GIF transcoding
	var transcoder service.Transcoder
	if cfg.Transcode.Enabled {
		t, err := ffmpeg.NewTranscoder(ffmpeg.Options{
			Timeout:        cfg.Transcode.Timeout,
			MaxOutputBytes: cfg.Transcode.MaxOutputBytes,
			FPS:            cfg.Transcode.FPS,
			MaxWidth:       cfg.Transcode.MaxWidth,
			TempDir:        cfg.Transcode.TempDir,
		})
		if err != nil {
			logger.Error("failed to initialize transcoder", "error", err)
			os.Exit(1)
		}
		transcoder = t
		if v, err := ffmpeg.Version(""); err == nil {
			logger.Info("GIF transcoding enabled", "ffmpeg", v)
		} else {
			logger.Info("GIF transcoding enabled")
		}
	}

	// Ingestion service
	ingestSvc := service.NewIngestService(
		linkRepo,
		jobRepo,
		resolver,
		fetcher,
		transcoder,
		store,
		limiter,
		auditor,
		cfg.Worker,
		logger,
	)

	// Initialize handlers
	linkHandler := handler.NewLinkHandler(ingestSvc, logger)
	auditHandler := handler.NewAuditHandler(auditor, logger)
	healthHandler := handler.NewHealthHandler(jobRepo, db)

	// Setup router
	router := api.NewRouter(linkHandler, auditHandler, healthHandler, cfg.Server.APIKey)

	// Initialize worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		ingestSvc,
		logger,
	)
	pool.Start()

	// Periodic audit retention sweep
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go auditRetentionLoop(sweepCtx, auditor, logger)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	cancelSweep()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop workers (allow in-flight jobs to complete)
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// auditRetentionLoop purges expired persisted audit events once a day.
func auditRetentionLoop(ctx context.Context, auditor *audit.Service, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := auditor.CleanupOld(ctx); err != nil {
				logger.Error("audit retention sweep failed", "error", err)
			}
		}
	}
}
