package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"filebox/internal/config"
	"filebox/internal/server"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the filebox API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("shutdown", "error", err)
				}
			}()

			limiter, closeLimiter := requestLimiter(cfg, logger)
			defer closeLimiter()

			srv := server.New(addr, rt.files, server.NewAuthService(rt.store, rt.tokens), server.Options{
				Logger:             logger,
				AllowedOrigins:     cfg.CORS.AllowedOrigins,
				MultipartMaxMemory: cfg.Storage.MultipartMaxMemory,
				RequestLimiter:     limiter,
			})
			return srv.ListenAndServe(ctx)
		},
	}
}

func requestLimiter(cfg *config.Config, logger *slog.Logger) (server.RequestLimiter, func()) {
	if addr := cfg.RateLimit.RedisAddr; addr != "" {
		logger.Info("using shared request limiter", "redis_addr", addr)
		limiter := server.NewRedisLimiter(addr, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		return limiter, func() { _ = limiter.Close() }
	}
	return server.NewLocalLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst), func() {}
}
