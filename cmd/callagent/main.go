package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edutalks/internal/auth"
	"edutalks/internal/availability"
	"edutalks/internal/backend"
	"edutalks/internal/blocklist"
	"edutalks/internal/calls"
	"edutalks/internal/config"
	"edutalks/internal/httpapi"
	"edutalks/internal/journal"
	"edutalks/internal/lease"
	"edutalks/internal/reporting"
	"edutalks/internal/signaling"
	"edutalks/pkg/logger"
	"edutalks/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(runToken(os.Args[2:]))
	}

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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	checks := map[string]func(context.Context) error{}

	// Journal: Postgres when configured, memory otherwise.
	var journalRepo journal.Repository = journal.NewMemoryRepo()
	var db *sql.DB
	if cfg.PostgresEnabled() {
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := journal.NewPostgresRepo(db)
		if err := pg.Migrate(rootCtx); err != nil {
			log.Error("journal migration failed", "err", err)
			os.Exit(1)
		}
		journalRepo = pg
		checks["postgres"] = func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) }
	}
	journalSvc := journal.NewService(journalRepo)

	// Blocklist and session lease: Redis when configured.
	var (
		blocked interface {
			availability.Filter
			calls.Blocklist
		}
		guard calls.SessionGuard
		rdb   *redis.Client
	)
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		blocked = blocklist.NewRedisStore(rdb, cfg.Calls.LearnerID, cfg.Calls.BlockTTL)
		guard = lease.NewRedisGuard(rdb, cfg.Calls.LearnerID, lease.DefaultTTL)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		blocked = blocklist.NewMemoryStore(cfg.Calls.BlockTTL, time.Now)
	}

	client := backend.NewClient(backend.Options{
		BaseURL: cfg.Backend.BaseURL,
		Tokens:  backend.NewTokenStore(cfg.Backend.AccessToken, cfg.Backend.RefreshToken),
		Timeout: cfg.Backend.Timeout,
		Logger:  log.With("component", "backend"),
	})

	poller := availability.NewPoller(availability.Options{
		Fetcher:  client,
		Filter:   blocked,
		Query:    calls.CandidateFilter{PreferredLanguage: cfg.Calls.PreferredLanguage},
		Interval: cfg.Calls.PollInterval,
		Logger:   log.With("component", "availability"),
	})

	controller, err := calls.NewController(calls.Options{
		Backend:     client,
		Candidates:  poller,
		Journal:     journalSvc,
		Guard:       guard,
		Blocklist:   blocked,
		Logger:      log.With("component", "calls"),
		RingTimeout: cfg.Calls.RingTimeout,
	})
	if err != nil {
		log.Error("call controller init failed", "err", err)
		os.Exit(1)
	}

	poller.Start(rootCtx)

	if cfg.Backend.SignalURL != "" {
		listener, err := signaling.NewListener(signaling.Options{
			URL:      cfg.Backend.SignalURL,
			Tokens:   client,
			Observer: controller,
			Logger:   log.With("component", "signaling"),
		})
		if err != nil {
			log.Error("signaling init failed", "err", err)
			os.Exit(1)
		}
		go func() { _ = listener.Run(rootCtx) }()
	}

	h := httpapi.Handlers{
		Calls:      controller,
		Candidates: poller,
		History:    client,
		Reports:    reporting.NewService(journalSvc),
		Tokens:     authManager,
		Checks:     checks,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Backend.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("call agent listening", "addr", srv.Addr, "env", cfg.App.Env, "backend", client.BaseURL())
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

	// Leave no call ringing on the backend.
	if s := controller.Snapshot(); s.Status.IsActive() {
		s = controller.End(shutdownCtx, calls.EndReasonHangup)
		log.Info("active call ended on shutdown", "call_id", s.CallID)
	}
	poller.Stop()
}
