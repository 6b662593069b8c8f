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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/router"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/snapshot"
	"github.com/stemsi/exstem-session/internal/validator"
	"github.com/stemsi/exstem-session/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("snapshot_backend", cfg.SnapshotBackend).
		Msg("Starting ExStem exam session server")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Snapshot Store ────────────────────────────────────────────────
	store, err := newSnapshotStore(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open snapshot store")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	accessRepo := repository.NewAccessRepository(pool)
	reportRepo := repository.NewReportRepository(pool)
	statsRepo := repository.NewStatsRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	examService := service.NewExamService(examRepo, questionRepo, rdb, cfg.ExamCacheTTL, log)
	accessService := service.NewAccessService(accessRepo)
	reportService := service.NewReportService(reportRepo, examService, rdb, log)
	statsService := service.NewStatsService(statsRepo, rdb, log)
	sessionService := service.NewExamSessionService(
		examService,
		accessService,
		store,
		reportService,
		session.OptionsFromConfig(cfg.Session),
		logger.Component(log, "exam_session_service"),
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewExamSessionHandler(sessionService),
		Stats:   handler.NewStatsHandler(statsService),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	statsWorker := worker.NewStatsWorker(statsRepo, rdb, cfg.Session.StatsBatchSize, cfg.Session.StatsFlushInterval, log)
	go func() {
		defer close(workerDone)
		statsWorker.Start(workerCtx)
	}()
	sessionService.StartEviction(workerCtx, cfg.Session.IdleTTL, time.Minute)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams before accepting traffic.
	if n, err := examService.WarmExamCache(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	} else {
		log.Info().Int("exams", n).Msg("Exam cache warmed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Save every in-progress attempt so it can be resumed after restart.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Session.FlushTimeout+time.Second)
	defer flushCancel()
	sessionService.FlushAll(flushCtx)

	// 3. Stop the stats worker and wait for its final flush.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Stats worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

func newSnapshotStore(cfg *config.Config, rdb *redis.Client) (snapshot.Store, error) {
	switch cfg.SnapshotBackend {
	case "memory":
		return snapshot.NewMemoryStore(), nil
	case "file":
		fs, err := snapshot.NewFileStore(cfg.SnapshotFile)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "", "redis":
		return snapshot.NewRedisStore(rdb, cfg.Session.RecoveryWindow), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
