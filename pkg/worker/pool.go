package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
	"github.com/chriscow/livekit-postop-sub000/pkg/scheduler"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

// Pool manages the dispatcher, the workers, and the orphan reaper.
type Pool struct {
	store    *store.Store
	executor CallExecutor
	config   config.WorkerConfig
	workers  []*Worker
	claims   chan *models.CallScheduleItem
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	// Orphan reaper state
	reaper reaperState
}

// NewPool creates a call processing pool.
func NewPool(st *store.Store, executor CallExecutor, cfg config.WorkerConfig) *Pool {
	return &Pool{
		store:    st,
		executor: executor,
		config:   cfg,
		workers:  make([]*Worker, 0, cfg.Concurrency),
		claims:   make(chan *models.CallScheduleItem),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the dispatcher, the workers, and the orphan reaper.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	slog.Info("Starting call pool",
		"concurrency", p.config.Concurrency,
		"tick_interval", p.config.TickInterval,
		"max_batch", p.config.MaxBatch)

	for i := 0; i < p.config.Concurrency; i++ {
		w := NewWorker(fmt.Sprintf("worker-%d", i), p.claims, p.executor, p.config)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.runDispatcher(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.runReaper(ctx)
	}()

	slog.Info("Call pool started")
	return nil
}

// Stop shuts the pool down gracefully: the dispatcher stops claiming
// first, then in-flight calls get up to the drain timeout to finish.
func (p *Pool) Stop() {
	slog.Info("Stopping call pool gracefully")
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait() // dispatcher and reaper exit before workers drain

	done := make(chan struct{})
	go func() {
		for _, w := range p.workers {
			w.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Call pool stopped gracefully")
	case <-time.After(p.config.DrainTimeout):
		slog.Warn("Drain timeout exceeded, abandoning in-flight calls",
			"drain_timeout", p.config.DrainTimeout)
	}
}

// runDispatcher claims due calls on each tick and hands them to workers.
// The first pass runs immediately so a restart does not wait a full tick.
func (p *Pool) runDispatcher(ctx context.Context) {
	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-p.stopCh:
			slog.Info("Dispatcher shutting down")
			return
		case <-ctx.Done():
			slog.Info("Context cancelled, dispatcher shutting down")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick claims one batch of due calls and feeds them to the workers in
// priority order.
func (p *Pool) tick(ctx context.Context) {
	ids, err := p.store.DequeueDue(ctx, time.Now().UTC(), p.config.MaxBatch)
	if err != nil {
		slog.Error("Failed to dequeue due calls", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	items := make([]*models.CallScheduleItem, 0, len(ids))
	for _, id := range ids {
		item, err := p.store.GetItem(ctx, id)
		if err != nil {
			p.quarantine(ctx, id, err)
			continue
		}
		items = append(items, item)
	}
	scheduler.SortCalls(items)

	slog.Info("Claimed due calls", "count", len(items))
	for _, item := range items {
		select {
		case p.claims <- item:
		case <-p.stopCh:
			p.requeue(item)
			return
		case <-ctx.Done():
			p.requeue(item)
			return
		}
	}
}

// quarantine settles a claimed call that cannot be executed, typically
// because its stored hash no longer decodes. The status CAS works on the
// raw hash, so corrupt items can still be parked as failed.
func (p *Pool) quarantine(ctx context.Context, id string, cause error) {
	var corrupt *store.CorruptError
	notes := "quarantined: undecodable after claim"
	if !errors.As(cause, &corrupt) {
		notes = "quarantined: unloadable after claim"
	}
	slog.Error("Quarantining claimed call", "call_id", id, "error", cause)
	if _, err := p.store.ConditionalStatusUpdate(ctx, id, models.StatusInProgress, models.StatusFailed, notes); err != nil {
		slog.Error("Failed to quarantine call", "call_id", id, "error", err)
	}
}

// requeue returns an undelivered claim to pending during shutdown so the
// next instance picks it up without waiting for the reaper.
func (p *Pool) requeue(item *models.CallScheduleItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := p.store.ConditionalStatusUpdate(ctx, item.ID,
		models.StatusInProgress, models.StatusPending, "requeued: shutdown before execution")
	if err != nil || !ok {
		slog.Warn("Failed to requeue claim on shutdown, leaving for reaper",
			"call_id", item.ID, "error", err)
		return
	}
	slog.Info("Requeued undelivered claim on shutdown", "call_id", item.ID)
}

// Health returns the current health status of the pool.
func (p *Pool) Health() *PoolHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var storeErr string
	queueDepth, err := p.store.QueueDepth(ctx)
	if err != nil {
		slog.Error("Failed to query queue depth for health check", "error", err)
		storeErr = err.Error()
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		stats := w.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	p.reaper.mu.Lock()
	lastScan := p.reaper.lastScan
	recovered := p.reaper.recovered
	p.reaper.mu.Unlock()

	storeHealthy := err == nil
	return &PoolHealth{
		IsHealthy:        len(p.workers) > 0 && storeHealthy,
		StoreReachable:   storeHealthy,
		StoreError:       storeErr,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		QueueDepth:       queueDepth,
		WorkerStats:      workerStats,
		LastReapScan:     lastScan,
		OrphansRecovered: recovered,
	}
}
