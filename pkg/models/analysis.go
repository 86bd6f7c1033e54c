package models

import (
	"strings"
	"time"
)

// TimingBucket is a coarse timing recommendation emitted by the transcript
// analyzer. Each bucket converts to a fixed offset from discharge.
type TimingBucket string

// Timing bucket constants.
const (
	BucketImmediate TimingBucket = "immediate"
	BucketNextDay   TimingBucket = "next_day"
	BucketTwoDays   TimingBucket = "two_days"
	BucketThreeDays TimingBucket = "three_days"
	BucketOneWeek   TimingBucket = "one_week"
	BucketTwoWeeks  TimingBucket = "two_weeks"
)

var bucketOffsets = map[TimingBucket]time.Duration{
	BucketImmediate: 3 * time.Hour,
	BucketNextDay:   20 * time.Hour,
	BucketTwoDays:   44 * time.Hour,
	BucketThreeDays: 68 * time.Hour,
	BucketOneWeek:   7 * 24 * time.Hour,
	BucketTwoWeeks:  14 * 24 * time.Hour,
}

var bucketAliases = map[string]TimingBucket{
	"immediately": BucketImmediate,
	"asap":        BucketImmediate,
	"tomorrow":    BucketNextDay,
	"nextday":     BucketNextDay,
	"1_day":       BucketNextDay,
	"2_days":      BucketTwoDays,
	"48_hours":    BucketTwoDays,
	"3_days":      BucketThreeDays,
	"72_hours":    BucketThreeDays,
	"week":        BucketOneWeek,
	"1_week":      BucketOneWeek,
	"7_days":      BucketOneWeek,
	"2_weeks":     BucketTwoWeeks,
	"14_days":     BucketTwoWeeks,
	"fortnight":   BucketTwoWeeks,
}

// ParseTimingBucket normalizes a bucket string; unknown values map to
// next_day so classifier drift never breaks scheduling.
func ParseTimingBucket(s string) TimingBucket {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch b := TimingBucket(normalized); b {
	case BucketImmediate, BucketNextDay, BucketTwoDays, BucketThreeDays, BucketOneWeek, BucketTwoWeeks:
		return b
	}
	if b, ok := bucketAliases[normalized]; ok {
		return b
	}
	return BucketNextDay
}

// Offset returns the bucket's fixed offset from the discharge instant.
func (b TimingBucket) Offset() time.Duration {
	if d, ok := bucketOffsets[b]; ok {
		return d
	}
	return bucketOffsets[BucketNextDay]
}

// RecoveryComplexity is the analyzer's overall assessment of the discharge.
type RecoveryComplexity string

// Recovery complexity constants.
const (
	ComplexitySimple   RecoveryComplexity = "simple"
	ComplexityModerate RecoveryComplexity = "moderate"
	ComplexityComplex  RecoveryComplexity = "complex"
)

// InstructionAnalysis is the analyzer's per-instruction verdict.
type InstructionAnalysis struct {
	Index   int          `json:"index"`
	Urgency int          `json:"urgency"` // 1 = urgent … 3 = routine
	Timing  TimingBucket `json:"timing"`
	Flags   []string     `json:"flags,omitempty"`
}

// CallRecommendation is one follow-up call the analyzer recommends.
type CallRecommendation struct {
	CallType        CallType     `json:"call_type"`
	Timing          TimingBucket `json:"timing"`
	Priority        int          `json:"priority"`
	Prompt          string       `json:"prompt"`
	InstructionRefs []int        `json:"instruction_refs,omitempty"`
	LanguageNotes   string       `json:"language_notes,omitempty"`
}

// TranscriptAnalysis is the analyzer's full output for one session.
type TranscriptAnalysis struct {
	SessionID        string                `json:"session_id"`
	Instructions     []InstructionAnalysis `json:"instructions"`
	Recommendations  []CallRecommendation  `json:"recommendations"`
	Complexity       RecoveryComplexity    `json:"complexity"`
	Confidence       float64               `json:"confidence"`
	RecoveryTimeline string                `json:"recovery_timeline,omitempty"`
	FallbackReason   string                `json:"fallback_reason,omitempty"`
	AnalyzedAt       time.Time             `json:"analyzed_at"`
}
