package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallType(t *testing.T) {
	tests := []struct {
		input string
		want  CallType
	}{
		{"wellness_check", CallTypeWellnessCheck},
		{"Wellness Check", CallTypeWellnessCheck},
		{"compression_reminder", CallTypeCompressionCheck},
		{"medication_check", CallTypeMedicationReminder},
		{"follow-up", CallTypeFollowUp},
		{"appointment_reminder", CallTypeDischargeReminder},
		{"something_the_llm_made_up", CallTypeGeneralFollowup},
		{"", CallTypeGeneralFollowup},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCallType(tt.input))
		})
	}
}

func TestCallScheduleItemRoundTrip(t *testing.T) {
	scheduled := time.Date(2025, 1, 16, 15, 30, 0, 0, time.UTC)
	item := &CallScheduleItem{
		ID:             "call-1",
		PatientID:      "patient-9",
		PatientPhone:   "+15551234567",
		ScheduledTime:  scheduled,
		CallType:       CallTypeCompressionCheck,
		Priority:       PriorityNormal,
		LLMPrompt:      "Check compression stockings are on.",
		Status:         StatusPending,
		MaxAttempts:    3,
		AttemptCount:   1,
		RelatedOrderID: "vm_compression",
		Metadata:       map[string]any{"surgeon": "Dr. Lee"},
		Notes:          "initial schedule",
		CreatedAt:      scheduled.Add(-24 * time.Hour),
		UpdatedAt:      scheduled.Add(-24 * time.Hour),
	}

	m, err := item.ToMap()
	require.NoError(t, err)
	assert.Equal(t, "pending", m["status"])
	assert.Equal(t, "2025-01-16T15:30:00Z", m["scheduled_time"])

	got, err := CallFromMap(m)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, item.CallType, got.CallType)
	assert.True(t, got.ScheduledTime.Equal(scheduled))
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, "Dr. Lee", got.Metadata["surgeon"])
}

func TestCallFromMapDefaults(t *testing.T) {
	got, err := CallFromMap(map[string]string{"id": "call-2"})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAttempts, got.MaxAttempts)
	assert.Equal(t, PriorityRoutine, got.Priority)
	assert.True(t, got.ScheduledTime.IsZero())
	assert.Nil(t, got.Metadata)
}

func TestCallFromMapMissingID(t *testing.T) {
	_, err := CallFromMap(map[string]string{"status": "pending"})
	require.Error(t, err)
}

func TestCanRetry(t *testing.T) {
	item := &CallScheduleItem{MaxAttempts: 3, AttemptCount: 1, Status: StatusNoAnswer}
	assert.True(t, item.CanRetry())

	item.Status = StatusFailed
	assert.True(t, item.CanRetry())

	item.Status = StatusCompleted
	assert.False(t, item.CanRetry())

	item.Status = StatusFailed
	item.AttemptCount = 3
	assert.False(t, item.CanRetry())
}

func TestCanTransition(t *testing.T) {
	// Allowed edges of the status graph.
	assert.True(t, CanTransition(StatusPending, StatusInProgress))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusInProgress, StatusCompleted))
	assert.True(t, CanTransition(StatusInProgress, StatusNoAnswer))
	assert.True(t, CanTransition(StatusInProgress, StatusVoicemail))
	assert.True(t, CanTransition(StatusInProgress, StatusPending)) // reaper
	assert.True(t, CanTransition(StatusNoAnswer, StatusPending))   // retry
	assert.True(t, CanTransition(StatusFailed, StatusPending))

	// Forbidden edges.
	assert.False(t, CanTransition(StatusCompleted, StatusPending))
	assert.False(t, CanTransition(StatusCancelled, StatusInProgress))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
	assert.False(t, CanTransition(StatusVoicemail, StatusPending))
}

func TestRecordDuration(t *testing.T) {
	start := time.Date(2025, 1, 16, 15, 30, 0, 0, time.UTC)
	rec := &CallRecord{StartedAt: start, EndedAt: start.Add(95 * time.Second)}
	assert.Equal(t, 95, rec.DurationSeconds())

	rec.EndedAt = time.Time{}
	assert.Equal(t, 0, rec.DurationSeconds())
}
