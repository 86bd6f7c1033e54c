package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

// reaperState tracks orphan reaper metrics (thread-safe).
type reaperState struct {
	mu        sync.Mutex
	lastScan  time.Time
	recovered int
}

// runReaper periodically returns stale in_progress claims to pending.
// A claim is stale once it is older than the per-call timeout plus a
// grace period, so a live call is never reaped. Every instance runs this
// independently; the CAS back to pending makes recovery idempotent.
func (p *Pool) runReaper(ctx context.Context) {
	ticker := time.NewTicker(p.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reap(ctx)
		}
	}
}

func (p *Pool) reap(ctx context.Context) {
	cutoff := time.Now().Add(-(p.config.CallTimeout + p.config.ReapGrace))
	recovered, err := p.store.ReapStale(ctx, cutoff)
	if err != nil {
		slog.Error("Orphan reap failed", "error", err)
	}

	p.reaper.mu.Lock()
	p.reaper.lastScan = time.Now()
	p.reaper.recovered += recovered
	p.reaper.mu.Unlock()

	if recovered > 0 {
		slog.Warn("Recovered orphaned calls", "count", recovered)
	}
}

// RecoverStartupOrphans returns every in_progress claim to pending.
// Called once during startup before the pool begins processing: any claim
// that exists before the first worker starts belongs to a previous run.
func RecoverStartupOrphans(ctx context.Context, st *store.Store) (int, error) {
	recovered, err := st.ReapStale(ctx, time.Now())
	if err != nil {
		return recovered, err
	}
	if recovered > 0 {
		slog.Warn("Recovered startup orphans from previous run", "count", recovered)
	}
	return recovered, nil
}
