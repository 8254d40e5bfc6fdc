package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskhub/internal/auth"
	"taskhub/internal/cache"
	"taskhub/internal/config"
	"taskhub/internal/events"
	"taskhub/internal/lifecycle"
	"taskhub/internal/logging"
	"taskhub/internal/server"
	"taskhub/internal/storage/redisstore"
	"taskhub/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  func(cmd *cobra.Command, args []string) error { return runServe(cmd, version) },
	}
	addServeFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger.Info("taskhub starting", slog.String("version", version), slog.String("store", cfg.Store.Driver))
	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		logger.Warn("using the development jwt secret; set auth.jwt_secret or TASKHUB_AUTH_JWT_SECRET")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, storeCloser, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("unable to open task store", slog.String("error", err.Error()))
		return err
	}
	defer storeCloser.Close()

	signer, err := auth.NewSigner(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	bus := events.NewBus(logger)
	ctrl := lifecycle.New(store, cache.New(cfg.Cache.TTL), bus, lifecycle.WithLogger(logger))
	srv := server.New(ctrl, bus, signer, logger, server.Options{
		StaticDir:   cfg.Server.StaticDir,
		CORSOrigins: cfg.Server.CORSOrigins,
		Debounce:    cfg.Search.Debounce,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		return err
	}

	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}

// openStore builds the configured task store.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (lifecycle.Store, io.Closer, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "redis":
		s, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
