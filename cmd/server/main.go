package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/database"
	"github.com/edushift/examgate-backend/internal/handler"
	"github.com/edushift/examgate-backend/internal/logger"
	"github.com/edushift/examgate-backend/internal/repository"
	"github.com/edushift/examgate-backend/internal/router"
	"github.com/edushift/examgate-backend/internal/service"
	"github.com/edushift/examgate-backend/internal/timer"
	"github.com/edushift/examgate-backend/internal/validator"
	"github.com/edushift/examgate-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamGate Backend")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	sectionRepo := repository.NewSectionAttemptRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	securityRepo := repository.NewSecurityRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Timer Registry ─────────────────────────────────────
	timers := timer.NewRegistry(timer.Options{
		WarningSeconds: cfg.TimerWarningSeconds,
		DangerSeconds:  cfg.TimerDangerSeconds,
	}, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)
	attemptService := service.NewAttemptService(examRepo, questionRepo, attemptRepo, sectionRepo, answerRepo, rdb, timers, log)
	answerService := service.NewAnswerService(attemptRepo, questionRepo, answerRepo, rdb, log)
	securityService := service.NewSecurityService(attemptRepo, examRepo, securityRepo, attemptService, rdb, log)
	monitorService := service.NewMonitorService(monitorRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(attemptService, examService),
		Attempt:       handler.NewAttemptHandler(attemptService, answerService),
		Security:      handler.NewSecurityHandler(securityService),
		Grading:       handler.NewGradingHandler(attemptService, securityService),
		Monitor:       handler.NewMonitorHandler(rdb, attemptService, monitorService, log),
		WS:            handler.NewWSHandler(attemptService, answerService, securityService, timers, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	securityLogWorker := worker.NewSecurityLogWorker(pool, rdb, log)
	timeCheckpointWorker := worker.NewTimeCheckpointWorker(pool, rdb, log)

	go securityLogWorker.Start(workerCtx)
	go timeCheckpointWorker.Start(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
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

	// 2. Stop attempt timers. Countdowns are rebuilt from persisted
	// checkpoints on the next resume, so stopping here loses nothing.
	timers.StopAll()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
