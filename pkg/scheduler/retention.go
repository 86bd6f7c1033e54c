package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

// Retention periodically archives aged terminal calls. Idempotent and safe
// to run from multiple processes.
type Retention struct {
	config config.RetentionConfig
	store  *store.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetention creates the archive loop service.
func NewRetention(cfg config.RetentionConfig, st *store.Store) *Retention {
	return &Retention{config: cfg, store: st}
}

// Start launches the background archive loop.
func (r *Retention) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx)

	slog.Info("Retention service started",
		"archive_after", r.config.ArchiveAfter,
		"interval", r.config.Interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Retention) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Info("Retention service stopped")
}

func (r *Retention) run(ctx context.Context) {
	defer close(r.done)

	r.archive(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.archive(ctx)
		}
	}
}

func (r *Retention) archive(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.config.ArchiveAfter)
	count, err := r.store.ArchiveOld(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: archive pass failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: archived terminal calls", "count", count)
	}
}
