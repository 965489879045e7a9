package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stagecast-live/stagecast/internal/adapter/eventpublisher"
	"github.com/stagecast-live/stagecast/internal/adapter/httpserver"
	"github.com/stagecast-live/stagecast/internal/adapter/postgres"
	redisadapter "github.com/stagecast-live/stagecast/internal/adapter/redis"
	"github.com/stagecast-live/stagecast/internal/adapter/roomprovider"
	"github.com/stagecast-live/stagecast/internal/app"
	"github.com/stagecast-live/stagecast/internal/platform/config"
	"github.com/stagecast-live/stagecast/internal/platform/logging"
	"github.com/stagecast-live/stagecast/internal/platform/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting stagecast", "version", version.Get().Version, "env", cfg.AppEnv)

	ctx := context.Background()

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	clock := clockwork.NewRealClock()

	provider := roomprovider.NewClient(roomprovider.Config{
		BaseURL:   cfg.RoomProviderURL,
		WSURL:     cfg.RoomProviderWSURL,
		APIKey:    cfg.RoomProviderAPIKey,
		APISecret: cfg.RoomProviderAPISecret,
	}, clock)

	ledger := redisadapter.NewOrphanLedger(rdb)

	service := app.NewService(
		postgres.NewChannelRepo(pool),
		postgres.NewSessionRepo(pool),
		postgres.NewFollowRepo(pool),
		provider,
		ledger,
		redisadapter.NewViewerCache(rdb),
		eventpublisher.New(rdb),
		clock,
		cfg.TokenTTL,
	)

	leader := redisadapter.NewLeaderElector(rdb, instanceID())
	sweeper := app.NewOrphanSweeper(ledger, provider, leader, clock, cfg.OrphanSweepInterval)
	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	go sweeper.Run(sweeperCtx)

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: postgres.HealthCheck(pool)},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}

	srv := httpserver.NewServer(cfg, service, healthChecks)

	done := runGracefulShutdown(srv, sweeper, stopSweeper)

	if err := srv.Start(); err != nil {
		slog.Error("Server stopped", "error", err)
	}

	<-done
	slog.Info("Shutdown complete")
}

func connectRedis(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return rdb, nil
}

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func runGracefulShutdown(srv *httpserver.Server, sweeper *app.OrphanSweeper, stopSweeper context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopSweeper()
		sweeper.Stop()

		close(done)
	}()

	return done
}
