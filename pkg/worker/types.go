// Package worker provides the call processing pool: a dispatcher that
// claims due calls from the store on a tick, a set of workers that execute
// them on the Call Fabric, and an orphan reaper that recovers stale claims.
package worker

import (
	"context"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

// CallExecutor runs one attempt for a claimed call.
//
// The executor owns the full attempt lifecycle: dispatching the agent,
// placing the SIP call, writing the call record, and applying the retry
// policy. The worker only handles claiming, the per-call timeout, and
// health tracking.
type CallExecutor interface {
	Execute(ctx context.Context, item *models.CallScheduleItem) (*models.CallRecord, error)
}

// PoolHealth contains health information for the entire pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	StoreReachable   bool           `json:"store_reachable"`
	StoreError       string         `json:"store_error,omitempty"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	QueueDepth       int64          `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastReapScan     time.Time      `json:"last_reap_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"` // "idle" or "working"
	CurrentCallID  string    `json:"current_call_id,omitempty"`
	CallsProcessed int       `json:"calls_processed"`
	LastActivity   time.Time `json:"last_activity"`
}
