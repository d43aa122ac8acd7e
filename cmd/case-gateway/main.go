package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opetus/case-gateway/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting case gateway",
		"environment", cfg.Environment,
		"auth_mode", cfg.Auth.Mode,
		"upstream", cfg.Upstream.BaseURL,
		"addr", cfg.HTTP.Addr)

	redisClient, err := bootstrap.ConnectRedis(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	auditPool, err := bootstrap.ConnectAuditDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect audit db: %w", err)
	}
	if auditPool != nil {
		defer auditPool.Close()
	}

	auth, err := bootstrap.BuildAuth(ctx, bootstrap.AuthDeps{
		Config:      &cfg,
		RedisClient: redisClient,
		AuditPool:   auditPool,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return bootstrap.RunHTTPServer(runCtx, &bootstrap.HTTPServerConfig{
		Config: &cfg,
		Auth:   auth,
		Logger: logger,
	})
}
