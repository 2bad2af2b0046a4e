// Command server starts the SnapSolve HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/snapsolve/internal/adapter/ai"
	aireal "github.com/fairyhunter13/snapsolve/internal/adapter/ai/real"
	aistub "github.com/fairyhunter13/snapsolve/internal/adapter/ai/stub"
	"github.com/fairyhunter13/snapsolve/internal/adapter/httpserver"
	"github.com/fairyhunter13/snapsolve/internal/adapter/observability"
	"github.com/fairyhunter13/snapsolve/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/snapsolve/internal/app"
	"github.com/fairyhunter13/snapsolve/internal/config"
	"github.com/fairyhunter13/snapsolve/internal/domain"
	"github.com/fairyhunter13/snapsolve/internal/service/admission"
	"github.com/fairyhunter13/snapsolve/internal/usecase"
)

// redisPingAdapter narrows *redis.Client to the readiness interface.
type redisPingAdapter struct{ rdb *redis.Client }

func (a redisPingAdapter) Ping(ctx context.Context) app.RedisPingResult {
	return a.rdb.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	ledgerRepo := postgres.NewLedgerRepo(pool, cfg.FreeTotalLimit)
	cacheRepo := postgres.NewAnswerCacheRepo(pool)

	// Admission guard: shared through Redis when configured, otherwise
	// in-process. The lock TTL bounds how long a crashed run can wedge a
	// user.
	var guard domain.AdmissionGuard
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid redis url", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		guard = admission.NewRedisGuard(rdb, cfg.Cooldown, 2*cfg.ModelCallTimeout)
		slog.Info("admission guard backed by redis")
	} else {
		guard = admission.NewMemoryGuard(cfg.Cooldown)
		slog.Info("admission guard in-process")
	}

	// AI client chain: provider (or deterministic stub without
	// credentials), then metrics, then the process-wide concurrency cap.
	var aicl domain.AIClient
	if cfg.OpenAIAPIKey != "" {
		aicl = aireal.New(cfg)
	} else {
		aicl = aistub.New()
		slog.Warn("OPENAI_API_KEY not set; using stub AI client")
	}
	aicl = ai.NewLimiter(ai.NewInstrumented(aicl), cfg.MaxModelConcurrency)

	// Usecases
	extractor := usecase.NewExtractorService(aicl)
	consensus := usecase.NewConsensusService(aicl, cfg.ConsensusRuns, cfg.Temperatures, cfg.LowConfidenceThreshold)
	solver := usecase.NewSolveService(guard, cacheRepo, ledgerRepo, extractor, consensus, cfg.PipelineVersion)
	ledgerSvc := usecase.NewLedgerService(ledgerRepo)

	var redisClient app.RedisClient
	if rdb != nil {
		redisClient = redisPingAdapter{rdb: rdb}
	}
	dbCheck, redisCheck := app.BuildReadinessChecks(pool, redisClient)

	srv := httpserver.NewServer(cfg, solver, ledgerSvc, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
