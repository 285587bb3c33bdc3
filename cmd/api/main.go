package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callhub/internal/audit"
	"callhub/internal/auth"
	"callhub/internal/calls"
	"callhub/internal/config"
	"callhub/internal/directory"
	"callhub/internal/gateway"
	"callhub/internal/history"
	"callhub/internal/httpapi"
	"callhub/internal/messages"
	"callhub/internal/notify"
	"callhub/internal/presence"
	"callhub/internal/registry"
	"callhub/internal/signaling"
	"callhub/pkg/logger"
	"callhub/pkg/utils"

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

	if cfg.IsProduction() {
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

	var store calls.Store = calls.NewMemoryStore()
	if cfg.Calls.Store == config.StoreRedis {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		store = calls.NewRedisStore(rdb, calls.DefaultTombstoneTTL)
	}
	log.Info("call store selected", "store", cfg.Calls.Store)

	// Signaling core
	reg := registry.New(authManager, log.With("component", "registry"))
	tracker := presence.NewTracker(reg, cfg.Calls.TypingTimeout, log.With("component", "presence"))
	archive := history.NewService(history.NewPostgresRepo(db))
	mgr := calls.NewManager(store, directory.NewPostgres(db), archive, reg, calls.Options{
		RingTimeout: cfg.Calls.RingTimeout,
		Logger:      log.With("component", "calls"),
		Online:      reg,
	})
	relay := signaling.NewRelay(mgr, reg, log.With("component", "signaling"))
	notifier := notify.New(reg, log.With("component", "notify"))
	msgs := messages.NewService(messages.NewPostgresRepo(db))
	auditor := audit.NewService(audit.NewPostgresRepo(db))

	dispatcher := gateway.NewDispatcher(reg, mgr, relay, tracker, notifier, msgs, log.With("component", "gateway")).
		WithAudit(auditor)
	hub := gateway.NewHub(reg, tracker, mgr, dispatcher, gateway.Options{
		AllowedOrigins: cfg.WS.AllowedOrigins,
		SendBuffer:     cfg.WS.SendBuffer,
		Audit:          auditor,
		Logger:         log.With("component", "gateway"),
	})

	sweeper, err := calls.NewSweeper(mgr, cfg.Calls.SweepSchedule, log.With("component", "sweeper"))
	if err != nil {
		log.Error("sweeper init failed", "err", err)
		os.Exit(1)
	}
	sweeper.Start()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerPublicRoutes(r, db, hub)
	registerProtectedRoutes(r, auth.RequireAccessToken(authManager), httpapi.Handlers{
		Calls:    mgr,
		History:  archive,
		Presence: tracker,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
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

	// Hijacked websockets are not tracked by Shutdown; they close with the process.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	sweeper.Stop(shutdownCtx)
	log.Info("shutdown complete", "online_users", len(reg.OnlineUsers()))
}
