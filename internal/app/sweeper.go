package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stagecast-live/stagecast/internal/adapter/metrics"
	"github.com/stagecast-live/stagecast/internal/domain"
)

const sweepTimeout = 30 * time.Second

// Leader gates the sweeper so only one instance reconciles at a time.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// OrphanSweeper periodically retries deletion of ledgered orphan rooms. It is
// the out-of-band reconciliation path for rooms that leaked when a session
// commit or cleanup failed.
type OrphanSweeper struct {
	ledger   domain.OrphanLedger
	provider domain.RoomProvider
	leader   Leader
	clock    clockwork.Clock
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewOrphanSweeper creates a sweeper. leader may be nil in single-instance
// deployments.
func NewOrphanSweeper(ledger domain.OrphanLedger, provider domain.RoomProvider, leader Leader, clock clockwork.Clock, interval time.Duration) *OrphanSweeper {
	return &OrphanSweeper{
		ledger:   ledger,
		provider: provider,
		leader:   leader,
		clock:    clock,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run starts the sweep loop. It blocks until Stop is called or ctx is
// cancelled.
func (w *OrphanSweeper) Run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("Orphan sweeper started", "interval", w.interval.String())

	for {
		select {
		case <-ticker.Chan():
			w.sweepAsLeader(ctx)
		case <-w.stopCh:
			slog.Info("Orphan sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("Orphan sweeper context cancelled")
			return
		}
	}
}

// Stop stops the loop and waits for an in-flight sweep to finish.
func (w *OrphanSweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.doneCh
}

func (w *OrphanSweeper) sweepAsLeader(ctx context.Context) {
	if w.leader != nil {
		acquired, err := w.leader.TryAcquire(ctx)
		if err != nil {
			slog.Warn("Sweeper leader election failed", "error", err)
			return
		}
		if !acquired {
			return
		}
		defer func() {
			if err := w.leader.Release(ctx); err != nil {
				slog.Warn("Sweeper leadership release failed", "error", err)
			}
		}()
	}

	w.Sweep(ctx)
}

// Sweep attempts to delete every ledgered orphan room once. Rooms that the
// provider confirms gone (including "not found") are removed from the ledger;
// the rest stay for the next pass.
func (w *OrphanSweeper) Sweep(ctx context.Context) {
	metrics.OrphanSweepsTotal.Inc()

	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	rooms, err := w.ledger.List(sweepCtx)
	if err != nil {
		slog.Error("Orphan ledger list failed", "error", err)
		return
	}

	for _, room := range rooms {
		if err := w.provider.DeleteRoom(sweepCtx, room); err != nil {
			slog.Warn("Orphan room deletion failed, keeping in ledger",
				"room_name", room,
				"error", err)
			continue
		}

		if err := w.ledger.Remove(sweepCtx, room); err != nil {
			slog.Error("Failed to remove reclaimed room from ledger",
				"room_name", room,
				"error", err)
			continue
		}

		metrics.OrphanRoomsSweptTotal.Inc()
		slog.Info("Reclaimed orphan room", "room_name", room)
	}
}
