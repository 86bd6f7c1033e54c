package models

import (
	"strings"
	"time"
)

// InstructionCategory labels a captured discharge instruction.
type InstructionCategory string

// Instruction category constants.
const (
	CategoryMedication InstructionCategory = "medication"
	CategoryActivity   InstructionCategory = "activity"
	CategoryWound      InstructionCategory = "wound"
	CategoryDiet       InstructionCategory = "diet"
	CategoryFollowup   InstructionCategory = "followup"
	CategoryWarning    InstructionCategory = "warning"
	CategoryDevice     InstructionCategory = "device"
	CategoryPrecaution InstructionCategory = "precaution"
	CategoryOther      InstructionCategory = "other"
)

// ParseInstructionCategory normalizes a category string; unknown values
// become CategoryOther.
func ParseInstructionCategory(s string) InstructionCategory {
	switch c := InstructionCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryMedication, CategoryActivity, CategoryWound, CategoryDiet,
		CategoryFollowup, CategoryWarning, CategoryDevice, CategoryPrecaution, CategoryOther:
		return c
	default:
		return CategoryOther
	}
}

// DischargeInstruction is one actionable instruction captured during a
// discharge conversation.
type DischargeInstruction struct {
	Text       string              `json:"text"`
	Category   InstructionCategory `json:"category"`
	CapturedAt time.Time           `json:"captured_at"`
}

// NormalizeInstructionText lowercases and strips trailing punctuation so
// near-duplicate instructions compare equal.
func NormalizeInstructionText(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(s, ".!?,;: ")
}

// DischargeOrder is a templated order attached to a discharge. Orders may
// carry a call template describing the follow-up calls they require.
type DischargeOrder struct {
	ID           string        `json:"id"`
	Text         string        `json:"text"`
	CallTemplate *CallTemplate `json:"call_template,omitempty"`
}

// CallTemplate describes the calls generated for a discharge order.
type CallTemplate struct {
	Timing         string   `json:"timing"`
	CallType       CallType `json:"call_type"`
	Priority       int      `json:"priority"`
	PromptTemplate string   `json:"prompt_template"`
}

// Patient carries the patient fields needed to personalize calls.
type Patient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"` // E.164
	Language string `json:"language,omitempty"`
}
