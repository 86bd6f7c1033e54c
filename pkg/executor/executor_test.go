package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
	"github.com/chriscow/livekit-postop-sub000/pkg/fabric"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

var testFabricConfig = config.FabricConfig{
	URL:       "http://fabric.test",
	TrunkID:   "ST_trunk1",
	AgentName: "postop-followup",
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.New(rdb)
}

// claimItem schedules one call and claims it the way the worker does, so
// the executor sees a realistic in_progress item.
func claimItem(t *testing.T, st *store.Store, item *models.CallScheduleItem) *models.CallScheduleItem {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.BatchSchedule(ctx, []*models.CallScheduleItem{item}))
	ids, err := st.DequeueDue(ctx, item.ScheduledTime.Add(time.Second), 10)
	require.NoError(t, err)
	require.Equal(t, []string{item.ID}, ids)
	claimed, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, claimed.Status)
	return claimed
}

func testItem(id string) *models.CallScheduleItem {
	now := time.Now().UTC().Add(-time.Minute)
	return &models.CallScheduleItem{
		ID:            id,
		PatientID:     "patient-1",
		PatientPhone:  "+15551234567",
		CallType:      models.CallTypeWellnessCheck,
		ScheduledTime: now,
		Status:        models.StatusPending,
		Priority:      models.PriorityNormal,
		MaxAttempts:   models.DefaultMaxAttempts,
		LLMPrompt:     "Ask the patient how they are recovering.",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestExecuteSuccess(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fc := fabric.NewMock()
	ex := New(st, fc, testFabricConfig)

	item := claimItem(t, st, testItem("call-1"))
	rec, err := ex.Execute(ctx, item)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "followup-call-1", rec.RoomName)
	assert.NotEmpty(t, rec.ParticipantID)

	after, err := st.GetItem(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, after.Status)

	inIndex, err := st.InDueIndex(ctx, "call-1")
	require.NoError(t, err)
	assert.False(t, inIndex, "completed calls leave the due index")

	require.Len(t, fc.Dispatches(), 1)
	d := fc.Dispatches()[0]
	assert.Equal(t, "postop-followup", d.AgentName)
	assert.Equal(t, "followup-call-1", d.RoomName)
	assert.Contains(t, d.Metadata, `"call_schedule_item_id":"call-1"`)
	assert.Contains(t, d.Metadata, `"patient_phone":"+15551234567"`)

	require.Len(t, fc.Participants(), 1)
	p := fc.Participants()[0]
	assert.Equal(t, "ST_trunk1", p.TrunkID)
	assert.Equal(t, "patient", p.ParticipantIdentity)
	assert.True(t, p.WaitUntilAnswered)

	saved, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, saved.Status)
}

func TestExecuteBusyRetries(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fc := fabric.NewMock()
	fc.FailDial("+15551234567", &fabric.SIPError{Code: 486, Status: "Busy Here"})
	ex := New(st, fc, testFabricConfig)

	item := claimItem(t, st, testItem("call-1"))
	before := time.Now().UTC()
	rec, err := ex.Execute(ctx, item)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Contains(t, strings.ToLower(rec.OutcomeNotes), "busy")

	// The call returns to pending with one attempt burned and re-enters
	// the due index after the first backoff step.
	after, err := st.GetItem(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status)
	assert.Equal(t, 1, after.AttemptCount)

	score, err := st.DueIndexScore(ctx, "call-1")
	require.NoError(t, err)
	assert.InDelta(t, before.Add(RetryBackoff(1)).Unix(), score, 5)
}

func TestExecutePermanentFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fc := fabric.NewMock()
	fc.FailDial("+15551234567", &fabric.SIPError{Code: 404, Status: "Not Found"})
	ex := New(st, fc, testFabricConfig)

	item := claimItem(t, st, testItem("call-1"))
	rec, err := ex.Execute(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)

	// Permanent errors settle immediately; no retry regardless of the
	// attempt budget.
	after, err := st.GetItem(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, after.Status)

	inIndex, err := st.InDueIndex(ctx, "call-1")
	require.NoError(t, err)
	assert.False(t, inIndex)
}

func TestExecuteNoAnswer(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fc := fabric.NewMock()
	fc.FailDial("+15551234567", &fabric.SIPError{Code: 408, Status: "Request Timeout"})
	ex := New(st, fc, testFabricConfig)

	item := claimItem(t, st, testItem("call-1"))
	rec, err := ex.Execute(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoAnswer, rec.Status)

	after, err := st.GetItem(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status)
	assert.Equal(t, 1, after.AttemptCount)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fc := fabric.NewMock()
	fc.FailDial("+15551234567", &fabric.SIPError{Code: 486, Status: "Busy Here"})
	ex := New(st, fc, testFabricConfig)

	base := testItem("call-1")
	item := claimItem(t, st, base)
	for attempt := 1; attempt <= base.MaxAttempts; attempt++ {
		_, err := ex.Execute(ctx, item)
		require.NoError(t, err)

		after, err := st.GetItem(ctx, "call-1")
		require.NoError(t, err)
		if attempt < base.MaxAttempts {
			require.Equal(t, models.StatusPending, after.Status)
			// Re-claim for the next attempt the way the worker would.
			ids, err := st.DequeueDue(ctx, time.Now().UTC().Add(RetryBackoff(attempt)+time.Minute), 10)
			require.NoError(t, err)
			require.Equal(t, []string{"call-1"}, ids)
			item, err = st.GetItem(ctx, "call-1")
			require.NoError(t, err)
		} else {
			assert.Equal(t, models.StatusFailed, after.Status)
			assert.Equal(t, base.MaxAttempts, after.AttemptCount)
			inIndex, err := st.InDueIndex(ctx, "call-1")
			require.NoError(t, err)
			assert.False(t, inIndex)
		}
	}
}

func TestExecuteTimeout(t *testing.T) {
	st := newTestStore(t)
	fc := fabric.NewMock()
	fc.DialHook = func(ctx context.Context, _ fabric.SIPParticipantRequest) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ex := New(st, fc, testFabricConfig)

	item := claimItem(t, st, testItem("call-1"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	rec, err := ex.Execute(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, "timeout", rec.OutcomeNotes)

	// Timeouts are retryable.
	after, err := st.GetItem(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status)
	assert.Equal(t, 1, after.AttemptCount)
}

func TestExecuteShutdownLeavesClaim(t *testing.T) {
	st := newTestStore(t)
	fc := fabric.NewMock()
	fc.DialHook = func(ctx context.Context, _ fabric.SIPParticipantRequest) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ex := New(st, fc, testFabricConfig)

	item := claimItem(t, st, testItem("call-1"))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ex.Execute(ctx, item)
	require.ErrorIs(t, err, context.Canceled)

	// The claim is intentionally left in_progress for the orphan reaper.
	after, err := st.GetItem(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, after.Status)
	assert.Zero(t, after.AttemptCount)
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Minute, RetryBackoff(0))
	assert.Equal(t, 5*time.Minute, RetryBackoff(1))
	assert.Equal(t, 15*time.Minute, RetryBackoff(2))
	assert.Equal(t, 30*time.Minute, RetryBackoff(3))
	assert.Equal(t, 30*time.Minute, RetryBackoff(7))
}
