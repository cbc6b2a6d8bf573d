package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/app/migrate"
	httpx "github.com/ls1intum/Artemis-Benchmarking-sub001/internal/http"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository/postgres"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/account"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/ci"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/mail"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/schedule"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/simulation"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/service/stats"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/vcs"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/ws"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/config"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()

	accountSvc := account.New(repo, cfg.EncryptionSecret, log)
	statsSvc := stats.New(repo, hub, cfg.StatsFlushInterval, log)
	ciPoller := ci.New(repo, hub, cfg.CiPollInterval, log)
	vcsClient := vcs.New(log)

	executor := simulation.NewExecutor(cfg, repo, repo, accountSvc, statsSvc, ciPoller, vcsClient, hub, log)
	queue := simulation.NewQueue(executor, repo, hub, log)
	simulationSvc := simulation.NewService(cfg, repo, repo, queue, hub, log)

	mailSvc := mail.New(mail.Config{
		Host:     cfg.MailHost,
		Port:     cfg.MailPort,
		Username: cfg.MailUsername,
		Password: cfg.MailPassword,
		From:     cfg.MailFrom,
	}, log)
	scheduleSvc := schedule.New(repo, repo, repo, simulationSvc, mailSvc, cfg.JWTSecret, cfg.PublicBaseURL, cfg.ScheduleTickInterval, log)
	executor.SetCompletionHook(scheduleSvc.NotifyRunCompleted)

	// Interrupted runs from a previous process are failed, leftover queued
	// runs are re-enqueued and stale CI records dropped.
	if err := queue.Recover(ctx); err != nil {
		log.Error("run recovery failed", "error", err)
		os.Exit(1)
	}
	if err := ciPoller.PurgeUnfinished(ctx); err != nil {
		log.Warn("ci status cleanup failed", "error", err)
	}

	go queue.Run(ctx)
	go statsSvc.Run(ctx)
	go mailSvc.Run(ctx)
	go scheduleSvc.Run(ctx)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, simulationSvc, scheduleSvc, statsSvc, ciPoller, accountSvc, hub, cfg.Servers, limiter, cfg.AdminAPIToken, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
