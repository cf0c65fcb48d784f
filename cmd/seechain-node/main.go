package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seechain/seechain/internal/node"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("node exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("node")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("node.port", 8545)
	viper.SetDefault("node.auto_mine", true)
	viper.SetDefault("node.block_interval", "1s")
	viper.SetDefault("node.admin_secret", "")
	viper.SetDefault("node.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("node.rate_limit_rps", 50)
	viper.SetDefault("database.url", "")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Chain ────────────────────────────────────────────────────────────────
	chain := node.NewChain(node.ChainConfig{
		AutoMine:      viper.GetBool("node.auto_mine"),
		BlockInterval: viper.GetDuration("node.block_interval"),
	}, logger)

	if dbURL := viper.GetString("database.url"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		store, err := node.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			return fmt.Errorf("postgres store: %w", err)
		}
		if err := chain.UseStore(ctx, store); err != nil {
			return fmt.Errorf("restore chain: %w", err)
		}
		logger.Info("chain persistence enabled")
	}

	if !viper.GetBool("node.auto_mine") {
		chain.StartMiner(ctx)
		logger.Info("interval miner started",
			zap.Duration("block_interval", viper.GetDuration("node.block_interval")),
		)
	}

	// ── HTTP API ─────────────────────────────────────────────────────────────
	srv := node.NewServer(chain, node.ServerConfig{
		AdminSecret:  viper.GetString("node.admin_secret"),
		CORSOrigins:  viper.GetStringSlice("node.cors_origins"),
		RateLimitRPS: viper.GetInt("node.rate_limit_rps"),
	}, logger)

	addr := fmt.Sprintf(":%d", viper.GetInt("node.port"))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger node listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
