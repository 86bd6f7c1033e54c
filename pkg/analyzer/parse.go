package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

// wireAnalysis mirrors the JSON schema the prompt requests. Enum fields
// stay strings here; tolerant mapping happens afterwards.
type wireAnalysis struct {
	Instructions []struct {
		Index   int      `json:"index"`
		Urgency int      `json:"urgency"`
		Timing  string   `json:"timing"`
		Flags   []string `json:"flags"`
	} `json:"instructions"`
	Recommendations []struct {
		CallType        string `json:"call_type"`
		Timing          string `json:"timing"`
		Priority        int    `json:"priority"`
		Prompt          string `json:"prompt"`
		InstructionRefs []int  `json:"instruction_refs"`
		LanguageNotes   string `json:"language_notes"`
	} `json:"recommendations"`
	Complexity       string  `json:"complexity"`
	Confidence       float64 `json:"confidence"`
	RecoveryTimeline string  `json:"recovery_timeline"`
}

// parseAnalysis decodes an LLM response into a TranscriptAnalysis. It
// tolerates fenced code blocks and preamble text around the JSON body and
// re-maps free-text enum values through the alias tables.
func parseAnalysis(content string) (*models.TranscriptAnalysis, error) {
	body := extractJSON(content)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var wire wireAnalysis
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, fmt.Errorf("decoding analysis JSON: %w", err)
	}
	if len(wire.Recommendations) == 0 {
		return nil, fmt.Errorf("analysis contains no recommendations")
	}

	analysis := &models.TranscriptAnalysis{
		Complexity:       parseComplexity(wire.Complexity),
		Confidence:       clamp01(wire.Confidence),
		RecoveryTimeline: wire.RecoveryTimeline,
	}
	for _, ins := range wire.Instructions {
		analysis.Instructions = append(analysis.Instructions, models.InstructionAnalysis{
			Index:   ins.Index,
			Urgency: clampLevel(ins.Urgency),
			Timing:  models.ParseTimingBucket(ins.Timing),
			Flags:   ins.Flags,
		})
	}
	for _, rec := range wire.Recommendations {
		if strings.TrimSpace(rec.Prompt) == "" {
			return nil, fmt.Errorf("recommendation missing prompt")
		}
		analysis.Recommendations = append(analysis.Recommendations, models.CallRecommendation{
			CallType:        models.ParseCallType(rec.CallType),
			Timing:          models.ParseTimingBucket(rec.Timing),
			Priority:        clampLevel(rec.Priority),
			Prompt:          rec.Prompt,
			InstructionRefs: rec.InstructionRefs,
			LanguageNotes:   rec.LanguageNotes,
		})
	}
	return analysis, nil
}

// extractJSON pulls the outermost JSON object out of a response that may
// wrap it in markdown fences or lead with prose.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func parseComplexity(s string) models.RecoveryComplexity {
	switch c := models.RecoveryComplexity(strings.ToLower(strings.TrimSpace(s))); c {
	case models.ComplexitySimple, models.ComplexityModerate, models.ComplexityComplex:
		return c
	default:
		return models.ComplexityModerate
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampLevel(v int) int {
	if v < 1 {
		return 1
	}
	if v > 3 {
		return 3
	}
	return v
}
