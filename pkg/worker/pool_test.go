package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
	"github.com/chriscow/livekit-postop-sub000/pkg/executor"
	"github.com/chriscow/livekit-postop-sub000/pkg/fabric"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

var testFabricConfig = config.FabricConfig{
	URL:       "http://fabric.test",
	TrunkID:   "ST_trunk1",
	AgentName: "postop-followup",
}

func testWorkerConfig() config.WorkerConfig {
	cfg := config.DefaultWorkerConfig()
	cfg.TickInterval = 20 * time.Millisecond
	cfg.MaxBatch = 10
	cfg.Concurrency = 2
	cfg.CallTimeout = time.Second
	cfg.DrainTimeout = time.Second
	cfg.ReapInterval = 20 * time.Millisecond
	cfg.ReapGrace = 0
	return cfg
}

func newTestStore(t *testing.T) (*store.Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.New(rdb), rdb
}

func testItem(id string, priority int) *models.CallScheduleItem {
	now := time.Now().UTC().Add(-time.Minute)
	return &models.CallScheduleItem{
		ID:            id,
		PatientID:     "patient-1",
		PatientPhone:  "+15551234567",
		CallType:      models.CallTypeWellnessCheck,
		ScheduledTime: now,
		Status:        models.StatusPending,
		Priority:      priority,
		MaxAttempts:   models.DefaultMaxAttempts,
		LLMPrompt:     "Ask the patient how they are recovering.",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// stubExecutor records execution order without touching the store.
type stubExecutor struct {
	mu    sync.Mutex
	ids   []string
	block chan struct{} // when set, Execute waits on it or ctx
}

func (s *stubExecutor) Execute(ctx context.Context, item *models.CallScheduleItem) (*models.CallRecord, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.ids = append(s.ids, item.ID)
	s.mu.Unlock()
	return &models.CallRecord{ID: "rec-" + item.ID, Status: models.StatusCompleted}, nil
}

func (s *stubExecutor) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func TestPoolProcessesDueCalls(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	fc := fabric.NewMock()
	ex := executor.New(st, fc, testFabricConfig)

	require.NoError(t, st.BatchSchedule(ctx, []*models.CallScheduleItem{
		testItem("call-1", models.PriorityNormal),
		testItem("call-2", models.PriorityNormal),
		testItem("call-3", models.PriorityNormal),
	}))

	pool := NewPool(st, ex, testWorkerConfig())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		for _, id := range []string{"call-1", "call-2", "call-3"} {
			item, err := st.GetItem(ctx, id)
			if err != nil || item.Status != models.StatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Len(t, fc.Participants(), 3)
}

func TestPoolClaimsInPriorityOrder(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	// Same scheduled time, distinct priorities, one worker: execution
	// order must follow priority.
	base := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	items := []*models.CallScheduleItem{
		testItem("call-routine", models.PriorityRoutine),
		testItem("call-urgent", models.PriorityUrgent),
		testItem("call-normal", models.PriorityNormal),
	}
	for _, item := range items {
		item.ScheduledTime = base
		item.CreatedAt = base
	}
	require.NoError(t, st.BatchSchedule(ctx, items))

	stub := &stubExecutor{}
	cfg := testWorkerConfig()
	cfg.Concurrency = 1
	pool := NewPool(st, stub, cfg)
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		return len(stub.executed()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"call-urgent", "call-normal", "call-routine"}, stub.executed())
}

func TestPoolStopDrainsInFlightCall(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	fc := fabric.NewMock()
	dialStarted := make(chan struct{})
	dialRelease := make(chan struct{})
	fc.DialHook = func(ctx context.Context, _ fabric.SIPParticipantRequest) error {
		close(dialStarted)
		select {
		case <-dialRelease:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ex := executor.New(st, fc, testFabricConfig)

	require.NoError(t, st.BatchSchedule(ctx, []*models.CallScheduleItem{
		testItem("call-1", models.PriorityNormal),
	}))

	pool := NewPool(st, ex, testWorkerConfig())
	require.NoError(t, pool.Start(ctx))

	select {
	case <-dialStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("call never started")
	}

	// Let the in-flight call answer shortly after Stop begins draining.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(dialRelease)
	}()
	pool.Stop()

	item, err := st.GetItem(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, item.Status, "in-flight call finishes during drain")
}

func TestPoolStopAbandonsAfterDrainTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	st, _ := newTestStore(t)
	fc := fabric.NewMock()
	dialStarted := make(chan struct{})
	fc.DialHook = func(ctx context.Context, _ fabric.SIPParticipantRequest) error {
		close(dialStarted)
		<-ctx.Done()
		return ctx.Err()
	}
	ex := executor.New(st, fc, testFabricConfig)

	require.NoError(t, st.BatchSchedule(ctx, []*models.CallScheduleItem{
		testItem("call-1", models.PriorityNormal),
	}))

	cfg := testWorkerConfig()
	cfg.CallTimeout = time.Minute
	cfg.DrainTimeout = 50 * time.Millisecond
	pool := NewPool(st, ex, cfg)
	require.NoError(t, pool.Start(ctx))

	select {
	case <-dialStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("call never started")
	}

	start := time.Now()
	pool.Stop()
	assert.Less(t, time.Since(start), time.Second, "Stop returns after the drain timeout")

	// The abandoned claim stays in_progress for the reaper.
	item, err := st.GetItem(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, item.Status)
}

func TestPoolReapsOrphanedClaims(t *testing.T) {
	ctx := context.Background()
	st, rdb := newTestStore(t)
	fc := fabric.NewMock()
	ex := executor.New(st, fc, testFabricConfig)

	// A claim left behind by a crashed instance: in_progress with an old
	// updated_at and no due-index entry.
	require.NoError(t, st.BatchSchedule(ctx, []*models.CallScheduleItem{
		testItem("call-1", models.PriorityNormal),
	}))
	ids, err := st.DequeueDue(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"call-1"}, ids)
	stale := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	require.NoError(t, rdb.HSet(ctx, "scheduled_calls:call-1", "updated_at", stale).Err())

	cfg := testWorkerConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	pool := NewPool(st, ex, cfg)
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	// The reaper returns the claim to pending and the dispatcher then
	// executes it to completion.
	assert.Eventually(t, func() bool {
		item, err := st.GetItem(ctx, "call-1")
		return err == nil && item.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, pool.Health().OrphansRecovered, 1)
}

func TestRecoverStartupOrphans(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	require.NoError(t, st.BatchSchedule(ctx, []*models.CallScheduleItem{
		testItem("call-1", models.PriorityNormal),
	}))
	ids, err := st.DequeueDue(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"call-1"}, ids)

	recovered, err := RecoverStartupOrphans(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	item, err := st.GetItem(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, item.Status)
}

func TestPoolHealth(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	stub := &stubExecutor{}

	pool := NewPool(st, stub, testWorkerConfig())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	health := pool.Health()
	assert.True(t, health.IsHealthy)
	assert.True(t, health.StoreReachable)
	assert.Equal(t, 2, health.TotalWorkers)
	assert.Len(t, health.WorkerStats, 2)
}
