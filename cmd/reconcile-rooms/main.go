// Command reconcile-rooms deletes orphan rooms recorded in the Redis ledger.
// It is the operator-driven counterpart of the in-process sweeper, for when a
// leak needs attention right now.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	redisadapter "github.com/stagecast-live/stagecast/internal/adapter/redis"
	"github.com/stagecast-live/stagecast/internal/adapter/roomprovider"
)

func main() {
	var (
		redisURL    = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		providerURL = flag.String("provider", os.Getenv("ROOM_PROVIDER_URL"), "Room provider admin URL (or set ROOM_PROVIDER_URL env)")
		apiKey      = flag.String("api-key", os.Getenv("ROOM_PROVIDER_API_KEY"), "Provider API key (or set ROOM_PROVIDER_API_KEY env)")
		apiSecret   = flag.String("api-secret", os.Getenv("ROOM_PROVIDER_API_SECRET"), "Provider API secret (or set ROOM_PROVIDER_API_SECRET env)")
		dryRun      = flag.Bool("dry-run", false, "List orphan rooms without deleting them")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}
	if !*dryRun && (*providerURL == "" || *apiKey == "" || *apiSecret == "") {
		log.Fatal("Provider URL, API key, and API secret required unless --dry-run")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	opts, err := goredis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := goredis.NewClient(opts)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	ledger := redisadapter.NewOrphanLedger(rdb)

	rooms, err := ledger.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list orphan rooms: %v", err)
	}
	if len(rooms) == 0 {
		slog.Info("No orphan rooms recorded")
		return
	}
	slog.Info("Found orphan rooms", "count", len(rooms))

	if *dryRun {
		for _, room := range rooms {
			slog.Info("Would delete", "room_name", room)
		}
		return
	}

	provider := roomprovider.NewClient(roomprovider.Config{
		BaseURL:   *providerURL,
		APIKey:    *apiKey,
		APISecret: *apiSecret,
	}, clockwork.NewRealClock())

	var reclaimed, failed int
	for _, room := range rooms {
		if err := provider.DeleteRoom(ctx, room); err != nil {
			slog.Error("Failed to delete orphan room", "room_name", room, "error", err)
			failed++
			continue
		}
		if err := ledger.Remove(ctx, room); err != nil {
			slog.Error("Deleted room but failed to update ledger", "room_name", room, "error", err)
			failed++
			continue
		}
		slog.Info("Reclaimed orphan room", "room_name", room)
		reclaimed++
	}

	slog.Info("Reconciliation complete", "reclaimed", reclaimed, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}
