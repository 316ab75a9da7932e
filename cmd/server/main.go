package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/integrity"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/router"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/telemetry"
	"github.com/stemsi/exstem-assessment/internal/validator"
	"github.com/stemsi/exstem-assessment/internal/worker"
)

// Proctoring signal budget per candidate. Face samples arrive every few
// seconds, so this only stops runaway clients.
const (
	signalRate     = 120
	signalInterval = time.Minute
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
		Str("store", cfg.StoreDriver).
		Bool("redis", cfg.RedisEnabled).
		Msg("Starting ExStem Assessment")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Tracing ───────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTracing(flushCtx)
	}()

	// ─── Session Store ─────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer closeStore()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	// ─── Initialize Services ──────────────────────────────────────────
	opts := []service.AssessmentOption{}
	var checker service.PlagiarismChecker
	if rdb != nil {
		opts = append(opts, service.WithEventPublisher(service.NewRedisEventPublisher(rdb)))
		if cfg.PlagiarismCheckerURL != "" {
			checker = service.NewHTTPPlagiarismChecker(cfg.PlagiarismCheckerURL, cfg.PlagiarismCheckerToken, cfg.PlagiarismCheckerTimeout)
			opts = append(opts, service.WithPlagiarismQueue(service.NewRedisPlagiarismQueue(rdb)))
		}
	}

	authService := service.NewAuthService(cfg.JWTSecret)
	assessmentService := service.NewAssessmentService(store, integrity.NewPolicy(cfg.TabSwitchDebounce), log, opts...)
	integrityService := service.NewIntegrityService(assessmentService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Assessment: handler.NewAssessmentHandler(assessmentService, integrityService),
		Internal:   handler.NewInternalHandler(assessmentService, integrityService),
		Recruiter:  handler.NewRecruiterHandler(assessmentService),
		WS:         handler.NewWSHandler(assessmentService, integrityService, log, cfg.AllowedOrigins),
	}
	if rdb != nil {
		handlers.Monitor = handler.NewMonitorHandler(rdb, assessmentService, log)
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	signalLimiter := middleware.NewRateLimiter(signalRate, signalInterval, middleware.BySubject)
	workers.Add(1)
	go func() {
		defer workers.Done()
		signalLimiter.RunCleanup(workerCtx)
	}()

	if checker != nil {
		plagiarismWorker := worker.NewPlagiarismWorker(rdb, checker, integrityService, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			plagiarismWorker.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, signalLimiter)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
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

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the in-flight job.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// openStore selects the session store by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repository.SessionStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresSessionRepository(pool), pool.Close, nil

	case config.StoreDriverSQLite:
		store, err := database.OpenSQLiteStore(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return store, closer(store, log), nil

	default:
		log.Warn().Msg("Using in-memory session store; sessions are lost on restart")
		return repository.NewMemorySessionStore(), func() {}, nil
	}
}

func closer(c io.Closer, log zerolog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("Close store")
		}
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
