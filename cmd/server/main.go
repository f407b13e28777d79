package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/config"
	"github.com/falachabt/bacblanc-sub000/internal/database"
	"github.com/falachabt/bacblanc-sub000/internal/handler"
	"github.com/falachabt/bacblanc-sub000/internal/logger"
	"github.com/falachabt/bacblanc-sub000/internal/repository"
	"github.com/falachabt/bacblanc-sub000/internal/router"
	"github.com/falachabt/bacblanc-sub000/internal/service"
	"github.com/falachabt/bacblanc-sub000/internal/session"
	"github.com/falachabt/bacblanc-sub000/internal/validator"
	"github.com/falachabt/bacblanc-sub000/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Bac Blanc Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Repositories ─────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	subjectRepo := repository.NewSubjectRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Services ─────────────────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, rdb, log)
	userService := service.NewUserService(userRepo)
	subjectService := service.NewSubjectService(subjectRepo)
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)
	gateway := service.NewAttemptGateway(attemptRepo, examRepo, rdb, log)

	manager := session.NewManager(gateway, examService, session.Config{}, log)

	// ─── Handlers ─────────────────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, userService),
		Subject: handler.NewSubjectHandler(subjectService),
		Exam:    handler.NewExamHandler(examService, attemptRepo),
		Portal:  handler.NewPortalHandler(subjectService, examService, manager, attemptRepo),
		WS:      handler.NewWSHandler(manager, log, cfg.AllowedOrigins),
	}

	// ─── Background Workers ───────────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	snapshotWorker := worker.NewSnapshotWorker(attemptRepo, rdb, log)
	go snapshotWorker.Start(workerCtx)

	// Load all published exams into Redis BEFORE accepting traffic, so
	// session starts never lazy-load under a thundering herd.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	r := router.SetupRouter(authService, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Persist every active exam session so progress survives the restart.
	manager.Shutdown(shutdownCtx)

	// 3. Stop the snapshot worker and wait for the queue to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow the worker to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
