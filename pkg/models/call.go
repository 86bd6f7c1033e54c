// Package models defines the call scheduling domain entities shared by the
// scheduler, store, and worker pool.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CallType identifies the kind of follow-up call placed to a patient.
type CallType string

// Call type constants.
const (
	CallTypeDischargeReminder  CallType = "discharge_reminder"
	CallTypeWellnessCheck      CallType = "wellness_check"
	CallTypeMedicationReminder CallType = "medication_reminder"
	CallTypeFollowUp           CallType = "follow_up"
	CallTypeUrgent             CallType = "urgent"
	CallTypeCompressionCheck   CallType = "compression_check"
	CallTypeActivityGuidance   CallType = "activity_guidance"
	CallTypeGeneralFollowup    CallType = "general_followup"
)

// callTypeAliases maps common classifier spellings onto canonical call types.
// The LLM is not guaranteed to emit canonical values, so parsing is tolerant.
var callTypeAliases = map[string]CallType{
	"compression_reminder": CallTypeCompressionCheck,
	"compression":          CallTypeCompressionCheck,
	"medication_check":     CallTypeMedicationReminder,
	"medication":           CallTypeMedicationReminder,
	"meds_reminder":        CallTypeMedicationReminder,
	"wellness":             CallTypeWellnessCheck,
	"wellness_call":        CallTypeWellnessCheck,
	"checkin":              CallTypeWellnessCheck,
	"check_in":             CallTypeWellnessCheck,
	"followup":             CallTypeFollowUp,
	"follow-up":            CallTypeFollowUp,
	"appointment_reminder": CallTypeDischargeReminder,
	"discharge":            CallTypeDischargeReminder,
	"activity":             CallTypeActivityGuidance,
	"activity_check":       CallTypeActivityGuidance,
	"urgent_check":         CallTypeUrgent,
	"general":              CallTypeGeneralFollowup,
}

// ParseCallType maps a string onto a CallType. It accepts canonical values
// and common aliases; anything unrecognized becomes CallTypeGeneralFollowup
// so a sloppy classifier output is never fatal.
func ParseCallType(s string) CallType {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch CallType(normalized) {
	case CallTypeDischargeReminder, CallTypeWellnessCheck, CallTypeMedicationReminder,
		CallTypeFollowUp, CallTypeUrgent, CallTypeCompressionCheck,
		CallTypeActivityGuidance, CallTypeGeneralFollowup:
		return CallType(normalized)
	}
	if ct, ok := callTypeAliases[normalized]; ok {
		return ct
	}
	return CallTypeGeneralFollowup
}

// CallStatus is the lifecycle state of a scheduled call.
type CallStatus string

// Call status constants.
const (
	StatusPending    CallStatus = "pending"
	StatusInProgress CallStatus = "in_progress"
	StatusCompleted  CallStatus = "completed"
	StatusFailed     CallStatus = "failed"
	StatusCancelled  CallStatus = "cancelled"
	StatusNoAnswer   CallStatus = "no_answer"
	StatusVoicemail  CallStatus = "voicemail"
)

// IsTerminal reports whether the status removes the call from the due index.
// NoAnswer and Failed may still be retried, but the retry path re-enters the
// due index explicitly through the increment-attempt script.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusNoAnswer, StatusVoicemail:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from → to is an edge of the allowed status
// graph. Status updates always go through the store's CAS primitive, so this
// is the single definition of monotonicity.
func CanTransition(from, to CallStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		switch to {
		case StatusCompleted, StatusFailed, StatusNoAnswer, StatusVoicemail, StatusCancelled:
			return true
		case StatusPending: // reaper returning an orphaned claim
			return true
		}
	case StatusFailed, StatusNoAnswer:
		return to == StatusPending || to == StatusFailed
	}
	return false
}

// Priority levels. 1 is most urgent.
const (
	PriorityUrgent  = 1
	PriorityNormal  = 2
	PriorityRoutine = 3
)

// DefaultMaxAttempts is the per-call attempt limit unless overridden.
const DefaultMaxAttempts = 3

// CallScheduleItem is a single future outbound call to a patient.
type CallScheduleItem struct {
	ID             string         `json:"id"`
	PatientID      string         `json:"patient_id"`
	PatientPhone   string         `json:"patient_phone"` // E.164
	ScheduledTime  time.Time      `json:"scheduled_time"`
	CallType       CallType       `json:"call_type"`
	Priority       int            `json:"priority"`
	LLMPrompt      string         `json:"llm_prompt"`
	Status         CallStatus     `json:"status"`
	MaxAttempts    int            `json:"max_attempts"`
	AttemptCount   int            `json:"attempt_count"`
	RelatedOrderID string         `json:"related_discharge_order_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CanRetry reports whether the call is eligible for another attempt.
func (c *CallScheduleItem) CanRetry() bool {
	if c.AttemptCount >= c.MaxAttempts {
		return false
	}
	return c.Status == StatusFailed || c.Status == StatusNoAnswer
}

// ToMap flattens the item into a string-valued map suitable for hash
// storage. Metadata is JSON-encoded; zero timestamps and absent fields
// round-trip as empty strings.
func (c *CallScheduleItem) ToMap() (map[string]string, error) {
	meta := ""
	if len(c.Metadata) > 0 {
		b, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata for call %s: %w", c.ID, err)
		}
		meta = string(b)
	}
	return map[string]string{
		"id":                         c.ID,
		"patient_id":                 c.PatientID,
		"patient_phone":              c.PatientPhone,
		"scheduled_time":             formatTime(c.ScheduledTime),
		"call_type":                  string(c.CallType),
		"priority":                   strconv.Itoa(c.Priority),
		"llm_prompt":                 c.LLMPrompt,
		"status":                     string(c.Status),
		"max_attempts":               strconv.Itoa(c.MaxAttempts),
		"attempt_count":              strconv.Itoa(c.AttemptCount),
		"related_discharge_order_id": c.RelatedOrderID,
		"metadata":                   meta,
		"notes":                      c.Notes,
		"created_at":                 formatTime(c.CreatedAt),
		"updated_at":                 formatTime(c.UpdatedAt),
	}, nil
}

// CallFromMap rebuilds a CallScheduleItem from its hash representation.
func CallFromMap(m map[string]string) (*CallScheduleItem, error) {
	if m["id"] == "" {
		return nil, fmt.Errorf("call hash missing id")
	}
	item := &CallScheduleItem{
		ID:             m["id"],
		PatientID:      m["patient_id"],
		PatientPhone:   m["patient_phone"],
		CallType:       ParseCallType(m["call_type"]),
		LLMPrompt:      m["llm_prompt"],
		Status:         CallStatus(m["status"]),
		RelatedOrderID: m["related_discharge_order_id"],
		Notes:          m["notes"],
	}
	var err error
	if item.ScheduledTime, err = parseTime(m["scheduled_time"]); err != nil {
		return nil, fmt.Errorf("call %s: bad scheduled_time: %w", item.ID, err)
	}
	if item.CreatedAt, err = parseTime(m["created_at"]); err != nil {
		return nil, fmt.Errorf("call %s: bad created_at: %w", item.ID, err)
	}
	if item.UpdatedAt, err = parseTime(m["updated_at"]); err != nil {
		return nil, fmt.Errorf("call %s: bad updated_at: %w", item.ID, err)
	}
	if item.Priority, err = parseIntField(m["priority"], PriorityRoutine); err != nil {
		return nil, fmt.Errorf("call %s: bad priority: %w", item.ID, err)
	}
	if item.MaxAttempts, err = parseIntField(m["max_attempts"], DefaultMaxAttempts); err != nil {
		return nil, fmt.Errorf("call %s: bad max_attempts: %w", item.ID, err)
	}
	if item.AttemptCount, err = parseIntField(m["attempt_count"], 0); err != nil {
		return nil, fmt.Errorf("call %s: bad attempt_count: %w", item.ID, err)
	}
	if raw := m["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &item.Metadata); err != nil {
			return nil, fmt.Errorf("call %s: bad metadata: %w", item.ID, err)
		}
	}
	return item, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseIntField(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
