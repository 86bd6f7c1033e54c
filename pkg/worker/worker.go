package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker executes claimed calls received from the dispatcher.
type Worker struct {
	id       string
	claims   <-chan *models.CallScheduleItem
	executor CallExecutor
	config   config.WorkerConfig
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu             sync.RWMutex
	status         WorkerStatus
	currentCallID  string
	callsProcessed int
	lastActivity   time.Time
}

// NewWorker creates a call worker fed from the given claims channel.
func NewWorker(id string, claims <-chan *models.CallScheduleItem, executor CallExecutor, cfg config.WorkerConfig) *Worker {
	return &Worker{
		id:           id,
		claims:       claims,
		executor:     executor,
		config:       cfg,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current call to
// finish. It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         string(w.status),
		CurrentCallID:  w.currentCallID,
		CallsProcessed: w.callsProcessed,
		LastActivity:   w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		case item := <-w.claims:
			w.process(ctx, item)
		}
	}
}

// process executes one claimed call under the per-call timeout.
func (w *Worker) process(ctx context.Context, item *models.CallScheduleItem) {
	log := slog.With("worker_id", w.id, "call_id", item.ID)

	w.setStatus(WorkerStatusWorking, item.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	callCtx, cancel := context.WithTimeout(ctx, w.config.CallTimeout)
	defer cancel()

	rec, err := w.executor.Execute(callCtx, item)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Call interrupted by shutdown")
			return
		}
		log.Error("Call execution failed", "error", err)
		return
	}

	w.mu.Lock()
	w.callsProcessed++
	w.mu.Unlock()

	log.Info("Call processed", "status", rec.Status, "record_id", rec.ID)
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, callID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentCallID = callID
	w.lastActivity = time.Now()
}
