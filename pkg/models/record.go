package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// CallRecord is the append-only execution record for one call attempt.
// Workers write records; the scheduler only reads them.
type CallRecord struct {
	ID                  string            `json:"id"`
	CallScheduleItemID  string            `json:"call_schedule_item_id"`
	PatientID           string            `json:"patient_id"`
	StartedAt           time.Time         `json:"started_at,omitempty"`
	EndedAt             time.Time         `json:"ended_at,omitempty"`
	Status              CallStatus        `json:"status"`
	RoomName            string            `json:"room_name,omitempty"`
	ParticipantID       string            `json:"participant_identity,omitempty"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	RetryCount          int               `json:"retry_count"`
	ConversationSummary string            `json:"conversation_summary,omitempty"`
	PatientResponses    map[string]string `json:"patient_responses,omitempty"`
	AdditionalCallIDs   []string          `json:"additional_calls_scheduled,omitempty"`
	OutcomeNotes        string            `json:"outcome_notes,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// DurationSeconds derives the call duration from the start/end stamps.
// Returns 0 when either stamp is missing.
func (r *CallRecord) DurationSeconds() int {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return int(r.EndedAt.Sub(r.StartedAt).Seconds())
}

// ToMap flattens the record for hash storage.
func (r *CallRecord) ToMap() (map[string]string, error) {
	responses := ""
	if len(r.PatientResponses) > 0 {
		b, err := json.Marshal(r.PatientResponses)
		if err != nil {
			return nil, fmt.Errorf("encoding patient responses for record %s: %w", r.ID, err)
		}
		responses = string(b)
	}
	additional := ""
	if len(r.AdditionalCallIDs) > 0 {
		b, err := json.Marshal(r.AdditionalCallIDs)
		if err != nil {
			return nil, fmt.Errorf("encoding additional call ids for record %s: %w", r.ID, err)
		}
		additional = string(b)
	}
	return map[string]string{
		"id":                         r.ID,
		"call_schedule_item_id":      r.CallScheduleItemID,
		"patient_id":                 r.PatientID,
		"started_at":                 formatTime(r.StartedAt),
		"ended_at":                   formatTime(r.EndedAt),
		"duration_seconds":           strconv.Itoa(r.DurationSeconds()),
		"status":                     string(r.Status),
		"room_name":                  r.RoomName,
		"participant_identity":       r.ParticipantID,
		"error_message":              r.ErrorMessage,
		"retry_count":                strconv.Itoa(r.RetryCount),
		"conversation_summary":       r.ConversationSummary,
		"patient_responses":          responses,
		"additional_calls_scheduled": additional,
		"outcome_notes":              r.OutcomeNotes,
		"created_at":                 formatTime(r.CreatedAt),
		"updated_at":                 formatTime(r.UpdatedAt),
	}, nil
}

// RecordFromMap rebuilds a CallRecord from its hash representation.
func RecordFromMap(m map[string]string) (*CallRecord, error) {
	if m["id"] == "" {
		return nil, fmt.Errorf("record hash missing id")
	}
	rec := &CallRecord{
		ID:                  m["id"],
		CallScheduleItemID:  m["call_schedule_item_id"],
		PatientID:           m["patient_id"],
		Status:              CallStatus(m["status"]),
		RoomName:            m["room_name"],
		ParticipantID:       m["participant_identity"],
		ErrorMessage:        m["error_message"],
		ConversationSummary: m["conversation_summary"],
		OutcomeNotes:        m["outcome_notes"],
	}
	var err error
	if rec.StartedAt, err = parseTime(m["started_at"]); err != nil {
		return nil, fmt.Errorf("record %s: bad started_at: %w", rec.ID, err)
	}
	if rec.EndedAt, err = parseTime(m["ended_at"]); err != nil {
		return nil, fmt.Errorf("record %s: bad ended_at: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(m["created_at"]); err != nil {
		return nil, fmt.Errorf("record %s: bad created_at: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = parseTime(m["updated_at"]); err != nil {
		return nil, fmt.Errorf("record %s: bad updated_at: %w", rec.ID, err)
	}
	if rec.RetryCount, err = parseIntField(m["retry_count"], 0); err != nil {
		return nil, fmt.Errorf("record %s: bad retry_count: %w", rec.ID, err)
	}
	if raw := m["patient_responses"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.PatientResponses); err != nil {
			return nil, fmt.Errorf("record %s: bad patient_responses: %w", rec.ID, err)
		}
	}
	if raw := m["additional_calls_scheduled"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.AdditionalCallIDs); err != nil {
			return nil, fmt.Errorf("record %s: bad additional_calls_scheduled: %w", rec.ID, err)
		}
	}
	return rec, nil
}
