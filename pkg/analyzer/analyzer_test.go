package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriscow/livekit-postop-sub000/pkg/llm"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

var testPatient = models.Patient{ID: "patient-1", Name: "Pat Doe", Phone: "+15551234567"}

var testInstructions = []models.DischargeInstruction{
	{Text: "Take two Tylenol every four hours", Category: models.CategoryMedication, CapturedAt: time.Now()},
	{Text: "Keep the wound dry for three days", Category: models.CategoryWound, CapturedAt: time.Now()},
}

const goodResponse = `Here is the analysis you requested:
` + "```json" + `
{
  "instructions": [
    {"index": 1, "urgency": 2, "timing": "next_day", "flags": []},
    {"index": 2, "urgency": 1, "timing": "immediate", "flags": ["infection_risk"]}
  ],
  "recommendations": [
    {"call_type": "medication_check", "timing": "next day", "priority": 1,
     "prompt": "Ask whether the patient is managing pain with Tylenol.",
     "instruction_refs": [1]},
    {"call_type": "wellness_check", "timing": "three_days", "priority": 2,
     "prompt": "Ask about the wound and whether it has stayed dry."}
  ],
  "complexity": "Moderate",
  "confidence": 0.85,
  "recovery_timeline": "Full recovery expected within two weeks."
}
` + "```"

func TestAnalyzeParsesLLMResponse(t *testing.T) {
	mock := llm.NewMock().Respond(goodResponse)
	a := New(mock, nil, "test-model")

	analysis, err := a.Analyze(context.Background(), "session-1", testPatient, testInstructions)
	require.NoError(t, err)

	assert.Equal(t, "session-1", analysis.SessionID)
	assert.Equal(t, models.ComplexityModerate, analysis.Complexity)
	assert.InDelta(t, 0.85, analysis.Confidence, 1e-9)
	assert.Empty(t, analysis.FallbackReason)

	require.Len(t, analysis.Recommendations, 2)
	// Alias "medication_check" maps to the canonical call type; "next day"
	// maps to the next_day bucket.
	assert.Equal(t, models.CallTypeMedicationReminder, analysis.Recommendations[0].CallType)
	assert.Equal(t, models.BucketNextDay, analysis.Recommendations[0].Timing)
	assert.Equal(t, models.BucketThreeDays, analysis.Recommendations[1].Timing)

	require.Len(t, analysis.Instructions, 2)
	assert.Equal(t, []string{"infection_risk"}, analysis.Instructions[1].Flags)
}

func TestAnalyzeMalformedFallsBack(t *testing.T) {
	mock := llm.NewMock().Respond("I'm sorry, I cannot produce JSON today.")
	a := New(mock, nil, "test-model")

	analysis, err := a.Analyze(context.Background(), "session-1", testPatient, testInstructions)
	require.NoError(t, err)

	assert.InDelta(t, FallbackConfidence, analysis.Confidence, 1e-9)
	assert.Contains(t, analysis.FallbackReason, "malformed")
	require.Len(t, analysis.Recommendations, 2)
	assert.Equal(t, models.CallTypeGeneralFollowup, analysis.Recommendations[0].CallType)
	assert.Equal(t, models.BucketNextDay, analysis.Recommendations[0].Timing)
	assert.Equal(t, models.CallTypeWellnessCheck, analysis.Recommendations[1].CallType)
	assert.Equal(t, models.BucketThreeDays, analysis.Recommendations[1].Timing)
}

func TestAnalyzeLLMUnavailableFallsBack(t *testing.T) {
	mock := llm.NewMock().Fail(llm.ErrUnavailable)
	a := New(mock, nil, "test-model")

	analysis, err := a.Analyze(context.Background(), "session-1", testPatient, testInstructions)
	require.NoError(t, err)
	assert.Contains(t, analysis.FallbackReason, "unavailable")
	assert.Len(t, analysis.Recommendations, 2)
}

func TestAnalyzeEmptyInstructions(t *testing.T) {
	mock := llm.NewMock()
	a := New(mock, nil, "test-model")

	analysis, err := a.Analyze(context.Background(), "session-1", testPatient, nil)
	require.NoError(t, err)

	require.Len(t, analysis.Recommendations, 1)
	assert.Equal(t, models.CallTypeWellnessCheck, analysis.Recommendations[0].CallType)
	assert.Empty(t, mock.Calls(), "no LLM call for empty instruction sets")
}

func TestAnalyzePersistsUnderSessionID(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.New(rdb)

	mock := llm.NewMock().Respond(goodResponse)
	a := New(mock, st, "test-model")

	_, err := a.Analyze(context.Background(), "session-9", testPatient, testInstructions)
	require.NoError(t, err)

	saved, err := st.GetAnalysis(context.Background(), "session-9")
	require.NoError(t, err)
	assert.Len(t, saved.Recommendations, 2)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"preamble", "Sure! Here you go: {\"a\": 1}", `{"a": 1}`},
		{"no object", "nothing here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}

func TestBuildUserPromptNumbersInstructions(t *testing.T) {
	prompt := buildUserPrompt(testPatient, testInstructions)
	assert.Contains(t, prompt, "1. [medication] Take two Tylenol every four hours")
	assert.Contains(t, prompt, "2. [wound] Keep the wound dry for three days")
}
