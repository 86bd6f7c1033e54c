// Package scheduler converts discharge instructions into scheduled
// follow-up calls and owns all scheduled-item writes. Workers mutate call
// status only through the store's conditional atomic updates.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chriscow/livekit-postop-sub000/pkg/models"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

// Scheduler builds and persists the call set for discharged patients and
// exposes the read/update API over the store.
type Scheduler struct {
	store *store.Store
}

// New creates a scheduler over the shared store.
func New(st *store.Store) *Scheduler {
	return &Scheduler{store: st}
}

// wellnessOffset places the standing wellness check 18 hours after
// discharge, matching the within_24_hours timing spec.
const wellnessOffset = models.WithinDayOffset

// ScheduleFromOrders expands each discharge order's call template into
// scheduled calls and always adds one wellness check 18 hours after
// discharge. The whole set persists transactionally.
func (s *Scheduler) ScheduleFromOrders(ctx context.Context, patient models.Patient, discharge time.Time, orders []models.DischargeOrder) ([]*models.CallScheduleItem, error) {
	now := time.Now().UTC()
	items := []*models.CallScheduleItem{s.wellnessCheck(patient, discharge, now)}

	for _, order := range orders {
		tmpl := order.CallTemplate
		if tmpl == nil {
			continue
		}
		times, err := models.ParseTimingSpec(tmpl.Timing, discharge)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", order.ID, err)
		}
		for _, at := range times {
			items = append(items, &models.CallScheduleItem{
				ID:             uuid.NewString(),
				PatientID:      patient.ID,
				PatientPhone:   patient.Phone,
				ScheduledTime:  at,
				CallType:       tmpl.CallType,
				Priority:       normalizePriority(tmpl.Priority),
				LLMPrompt:      fillPromptTemplate(tmpl.PromptTemplate, patient, order, discharge),
				Status:         models.StatusPending,
				MaxAttempts:    models.DefaultMaxAttempts,
				RelatedOrderID: order.ID,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
	}

	if err := s.store.BatchSchedule(ctx, items); err != nil {
		return nil, err
	}
	slog.Info("Scheduled calls from discharge orders",
		"patient_id", patient.ID, "orders", len(orders), "calls", len(items))
	return items, nil
}

// ScheduleFromAnalysis converts the transcript analyzer's recommendations
// into scheduled calls. The patient phone is filled here; the analyzer
// never sees it.
func (s *Scheduler) ScheduleFromAnalysis(ctx context.Context, patient models.Patient, discharge time.Time, analysis *models.TranscriptAnalysis) ([]*models.CallScheduleItem, error) {
	now := time.Now().UTC()
	items := make([]*models.CallScheduleItem, 0, len(analysis.Recommendations))
	for _, rec := range analysis.Recommendations {
		item := &models.CallScheduleItem{
			ID:            uuid.NewString(),
			PatientID:     patient.ID,
			PatientPhone:  patient.Phone,
			ScheduledTime: discharge.UTC().Add(rec.Timing.Offset()),
			CallType:      rec.CallType,
			Priority:      normalizePriority(rec.Priority),
			LLMPrompt:     rec.Prompt,
			Status:        models.StatusPending,
			MaxAttempts:   models.DefaultMaxAttempts,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if rec.LanguageNotes != "" {
			item.Metadata = map[string]any{"language_notes": rec.LanguageNotes}
		}
		items = append(items, item)
	}

	if err := s.store.BatchSchedule(ctx, items); err != nil {
		return nil, err
	}
	slog.Info("Scheduled calls from transcript analysis",
		"patient_id", patient.ID, "session_id", analysis.SessionID, "calls", len(items))
	return items, nil
}

// PendingCalls returns pending calls scheduled inside [from, to], sorted
// by scheduled time with the (priority asc, created_at asc) tie-break.
func (s *Scheduler) PendingCalls(ctx context.Context, from, to time.Time) ([]*models.CallScheduleItem, error) {
	ids, err := s.store.PendingInWindow(ctx, from, to)
	if err != nil {
		return nil, err
	}
	items, err := s.loadAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	SortCalls(items)
	return items, nil
}

// PatientCalls returns all calls for a patient, soonest first.
func (s *Scheduler) PatientCalls(ctx context.Context, patientID string) ([]*models.CallScheduleItem, error) {
	items, err := s.store.ItemsForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	SortCalls(items)
	return items, nil
}

// Call returns a single call by id.
func (s *Scheduler) Call(ctx context.Context, id string) (*models.CallScheduleItem, error) {
	return s.store.GetItem(ctx, id)
}

// Cancel cancels a pending call. Returns false if the call already left
// the pending state.
func (s *Scheduler) Cancel(ctx context.Context, id string) (bool, error) {
	return s.UpdateStatus(ctx, id, models.StatusPending, models.StatusCancelled, "cancelled by request")
}

// UpdateStatus drives one edge of the status graph through the store CAS.
// A lost CAS is logged and dropped: the caller's view was stale.
func (s *Scheduler) UpdateStatus(ctx context.Context, id string, expected, next models.CallStatus, notes string) (bool, error) {
	ok, err := s.store.ConditionalStatusUpdate(ctx, id, expected, next, notes)
	if err != nil {
		return false, err
	}
	if !ok {
		slog.Warn("Dropped status update after lost CAS",
			"call_id", id, "expected", expected, "new", next)
	}
	return ok, nil
}

// SortCalls orders calls by scheduled time ascending, breaking ties by
// priority ascending (1 = urgent first) then created_at ascending.
func SortCalls(items []*models.CallScheduleItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.ScheduledTime.Equal(b.ScheduledTime) {
			return a.ScheduledTime.Before(b.ScheduledTime)
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func (s *Scheduler) loadAll(ctx context.Context, ids []string) ([]*models.CallScheduleItem, error) {
	items := make([]*models.CallScheduleItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Scheduler) wellnessCheck(patient models.Patient, discharge time.Time, now time.Time) *models.CallScheduleItem {
	name := patient.Name
	if name == "" {
		name = "there"
	}
	return &models.CallScheduleItem{
		ID:            uuid.NewString(),
		PatientID:     patient.ID,
		PatientPhone:  patient.Phone,
		ScheduledTime: discharge.UTC().Add(wellnessOffset),
		CallType:      models.CallTypeWellnessCheck,
		Priority:      models.PriorityNormal,
		LLMPrompt: fmt.Sprintf(
			"You are calling %s for a caring check-in the day after their procedure. "+
				"Ask how they are feeling, whether they have any concerns, and remind them "+
				"they can call the clinic with questions.", name),
		Status:      models.StatusPending,
		MaxAttempts: models.DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func normalizePriority(p int) int {
	if p < models.PriorityUrgent || p > models.PriorityRoutine {
		return models.PriorityRoutine
	}
	return p
}
