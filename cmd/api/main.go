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

	"resident-intake/internal/auth"
	"resident-intake/internal/config"
	"resident-intake/internal/rbac"
	"resident-intake/pkg/logger"
	"resident-intake/pkg/utils"

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
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := newAuthManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PoolForWorkers(cfg.Intake.WorkerConcurrency))
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	svc, err := buildServices(rootCtx, cfg, db, rdb)
	if err != nil {
		log.Error("service init failed", "err", err)
		os.Exit(1)
	}
	defer svc.Close()

	r := newRouter(cfg, svc, authManager, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	poolDone := make(chan struct{})
	if cfg.App.WorkerEnabled {
		go func() {
			defer close(poolDone)
			log.Info("job pool starting", "workers", cfg.Intake.WorkerConcurrency)
			if err := svc.Pool.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("job pool stopped", "err", err)
				stop()
			}
		}()
	} else {
		close(poolDone)
	}

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	select {
	case <-poolDone:
	case <-shutdownCtx.Done():
		log.Warn("job pool did not stop before shutdown deadline")
	}

	log.Info("shutdown complete")
}

// newAuthManager binds token issuing and verification to the roles this
// service knows. Integrations get access tokens only.
func newAuthManager(cfg config.AuthConfig) (*auth.Manager, error) {
	return auth.NewManager(cfg, auth.WithRolePolicy(auth.RolePolicy{
		Known:      rbac.Known,
		AccessOnly: rbac.IsHiddenRole,
	}))
}
