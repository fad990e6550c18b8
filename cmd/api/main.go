package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"callagent-platform/internal/audit"
	"callagent-platform/internal/auth"
	"callagent-platform/internal/config"
	"callagent-platform/internal/events"
	"callagent-platform/internal/httpapi"
	"callagent-platform/internal/poller"
	"callagent-platform/internal/reconcile"
	"callagent-platform/internal/reporting"
	"callagent-platform/internal/sessions"
	"callagent-platform/internal/tasks"
	"callagent-platform/internal/voice"
	"callagent-platform/internal/webhook"
	"callagent-platform/pkg/logger"
	"callagent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	provider, err := voice.NewClient(voice.ClientConfig{
		BaseURL: cfg.Voice.BaseURL,
		APIKey:  cfg.Voice.APIKey,
		Timeout: cfg.Voice.StatusTimeout,
	})
	if err != nil {
		log.Error("voice client init failed", "err", err)
		os.Exit(1)
	}

	// Stores
	sessionStore := sessions.NewPostgresStore(db)
	eventStore := events.NewPostgresStore(db)
	taskStore := tasks.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Reconciliation pipeline: both channels (webhook, poll) feed it; the
	// scheduler and audit trail hang off outcome transitions.
	scheduler := tasks.NewScheduler(taskStore, tasks.SchedulerConfig{
		FollowUpDelay: cfg.Tasks.FollowUpDelay,
		MaxAttempts:   cfg.Tasks.MaxAttempts,
	})
	reconciler := reconcile.NewService(sessionStore, eventStore, scheduler, audit.NewTransitionLogger(auditSvc))

	// Background workers
	pollWorker := poller.NewWorker(sessionStore, provider, reconciler, auditSvc, poller.Config{
		ScanInterval: cfg.Poller.ScanInterval,
		BatchSize:    cfg.Poller.BatchSize,
		QueryTimeout: cfg.Voice.StatusTimeout,
		Backoff: poller.Schedule{
			Initial: cfg.Poller.InitialPollDelay,
			Steps:   cfg.Poller.BackoffSteps,
			Max:     cfg.Poller.MaxBackoff,
		},
		DeadLetterAfter: cfg.Poller.DeadLetterAfter,
	})

	var callCap tasks.CallCap
	if cfg.Tasks.WorkspaceCallCap > 0 {
		callCap = tasks.NewRedisCallCap(rdb, cfg.Tasks.WorkspaceCallCap, cfg.Tasks.CallCapTTL)
	}
	executor := tasks.NewExecutor(taskStore, sessionStore, provider, callCap, auditSvc, tasks.ExecutorConfig{
		ScanInterval:     cfg.Tasks.ScanInterval,
		BatchSize:        cfg.Tasks.BatchSize,
		PlaceTimeout:     cfg.Voice.PlaceTimeout,
		InitialPollDelay: cfg.Poller.InitialPollDelay,
	})

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		pollWorker.Run(rootCtx)
	}()
	go func() {
		defer workers.Done()
		executor.Run(rootCtx)
	}()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	webhookHandler := webhook.Handler{
		Sessions:   sessionStore,
		Reconciler: reconciler,
		Secrets: func(ctx context.Context, workspaceID string) (string, error) {
			// Single shared secret for now; per-workspace secrets slot in here.
			return cfg.Webhook.SigningSecret, nil
		},
	}
	apiHandlers := httpapi.Handlers{
		Auth:     authManager,
		Sessions: sessionStore,
		Tasks:    taskStore,
		Reports:  reporting.NewService(reporting.NewStoreRepo(sessionStore, taskStore)),
	}

	registerRoutes(r, webhookHandler, apiHandlers, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	workers.Wait()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
