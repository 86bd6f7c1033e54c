// Package analyzer turns a captured discharge instruction set into
// recommended follow-up calls using one tightly templated LLM call, with a
// deterministic fallback when the LLM is unavailable or malformed.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/llm"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

// FallbackConfidence is reported when the analysis came from the
// deterministic fallback instead of the LLM.
const FallbackConfidence = 0.6

// Analyzer classifies instruction sets into call recommendations.
type Analyzer struct {
	llm   llm.Client
	store *store.Store
	model string
}

// New creates an analyzer. store may be nil in tests; analyses are then
// not persisted.
func New(client llm.Client, st *store.Store, model string) *Analyzer {
	return &Analyzer{llm: client, store: st, model: model}
}

// Analyze produces a TranscriptAnalysis for a discharge session. It never
// returns an error for LLM trouble: unavailability and malformed output
// both degrade to the deterministic fallback, with the reason recorded on
// the analysis.
func (a *Analyzer) Analyze(ctx context.Context, sessionID string, patient models.Patient, instructions []models.DischargeInstruction) (*models.TranscriptAnalysis, error) {
	analysis := a.analyze(ctx, sessionID, patient, instructions)
	analysis.SessionID = sessionID
	analysis.AnalyzedAt = time.Now().UTC()

	if a.store != nil {
		if err := a.store.SaveAnalysis(ctx, analysis); err != nil {
			slog.Warn("Failed to persist transcript analysis",
				"session_id", sessionID, "error", err)
		}
	}
	return analysis, nil
}

func (a *Analyzer) analyze(ctx context.Context, sessionID string, patient models.Patient, instructions []models.DischargeInstruction) *models.TranscriptAnalysis {
	if len(instructions) == 0 {
		return emptyInstructionsAnalysis()
	}

	resp, err := a.llm.ChatCompletion(ctx, llm.Request{
		Model: a.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(patient, instructions)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		slog.Warn("Transcript analysis LLM call failed, using fallback",
			"session_id", sessionID, "error", err)
		return fallbackAnalysis(fmt.Sprintf("llm unavailable: %v", err))
	}

	analysis, err := parseAnalysis(resp.Content)
	if err != nil {
		slog.Warn("Transcript analysis response malformed, using fallback",
			"session_id", sessionID, "error", err)
		return fallbackAnalysis(fmt.Sprintf("llm malformed: %v", err))
	}
	return analysis
}

// fallbackAnalysis is the deterministic degradation path: one general
// follow-up the next day and one wellness check on day three.
func fallbackAnalysis(reason string) *models.TranscriptAnalysis {
	return &models.TranscriptAnalysis{
		Complexity:     models.ComplexityModerate,
		Confidence:     FallbackConfidence,
		FallbackReason: reason,
		Recommendations: []models.CallRecommendation{
			{
				CallType: models.CallTypeGeneralFollowup,
				Timing:   models.BucketNextDay,
				Priority: models.PriorityNormal,
				Prompt: "Check in with the patient about their discharge instructions. " +
					"Ask whether they have questions about medications, activity, or warning signs.",
			},
			{
				CallType: models.CallTypeWellnessCheck,
				Timing:   models.BucketThreeDays,
				Priority: models.PriorityNormal,
				Prompt: "Ask the patient how their recovery is going and whether any " +
					"new symptoms have appeared since discharge.",
			},
		},
	}
}

// emptyInstructionsAnalysis covers sessions where nothing was captured:
// a single wellness check, nothing else to personalize.
func emptyInstructionsAnalysis() *models.TranscriptAnalysis {
	return &models.TranscriptAnalysis{
		Complexity:     models.ComplexitySimple,
		Confidence:     1.0,
		FallbackReason: "no instructions captured",
		Recommendations: []models.CallRecommendation{
			{
				CallType: models.CallTypeWellnessCheck,
				Timing:   models.BucketNextDay,
				Priority: models.PriorityNormal,
				Prompt:   "Call the patient for a general wellness check after their procedure.",
			},
		},
	}
}
