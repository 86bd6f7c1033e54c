// Package executor drives a single claimed call end to end: prepare agent
// metadata, dispatch the agent onto a room, place the outbound SIP call,
// record the outcome, and apply the retry policy.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
	"github.com/chriscow/livekit-postop-sub000/pkg/fabric"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
)

// patientIdentity is the SIP participant identity used for the callee.
const patientIdentity = "patient"

// Executor executes claimed calls on the Call Fabric.
type Executor struct {
	store  *store.Store
	fabric fabric.Client
	cfg    config.FabricConfig
}

// New creates a call executor.
func New(st *store.Store, fc fabric.Client, cfg config.FabricConfig) *Executor {
	return &Executor{store: st, fabric: fc, cfg: cfg}
}

// agentMetadata is the JSON blob handed to the agent joining the room.
type agentMetadata struct {
	CallScheduleItemID string          `json:"call_schedule_item_id"`
	PatientPhone       string          `json:"patient_phone"`
	CallType           models.CallType `json:"call_type"`
	RelatedOrderID     string          `json:"related_discharge_order_id,omitempty"`
	LLMPrompt          string          `json:"llm_prompt"`
}

// Execute runs one attempt for a claimed (in_progress) call and returns
// the record written for it. The caller bounds ctx with the per-call
// wall-clock budget; on expiry the attempt is marked failed with a
// retryable timeout.
func (e *Executor) Execute(ctx context.Context, item *models.CallScheduleItem) (*models.CallRecord, error) {
	log := slog.With("call_id", item.ID, "patient_id", item.PatientID, "call_type", item.CallType)
	now := time.Now().UTC()
	roomName := "followup-" + item.ID

	rec := &models.CallRecord{
		ID:                 uuid.NewString(),
		CallScheduleItemID: item.ID,
		PatientID:          item.PatientID,
		RoomName:           roomName,
		RetryCount:         item.AttemptCount,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	meta, err := json.Marshal(agentMetadata{
		CallScheduleItemID: item.ID,
		PatientPhone:       item.PatientPhone,
		CallType:           item.CallType,
		RelatedOrderID:     item.RelatedOrderID,
		LLMPrompt:          item.LLMPrompt,
	})
	if err != nil {
		return rec, e.finishFailed(ctx, item, rec, fmt.Sprintf("encoding agent metadata: %v", err), false)
	}

	dispatchID, err := e.fabric.CreateAgentDispatch(ctx, fabric.AgentDispatchRequest{
		AgentName: e.cfg.AgentName,
		RoomName:  roomName,
		Metadata:  string(meta),
	})
	if err != nil {
		return rec, e.recordError(ctx, item, rec, err)
	}
	log.Info("Agent dispatched", "dispatch_id", dispatchID, "room", roomName)

	rec.StartedAt = time.Now().UTC()
	participantID, err := e.fabric.CreateSIPParticipant(ctx, fabric.SIPParticipantRequest{
		RoomName:            roomName,
		TrunkID:             e.cfg.TrunkID,
		PhoneNumber:         item.PatientPhone,
		ParticipantIdentity: patientIdentity,
		WaitUntilAnswered:   true,
	})
	if err != nil {
		return rec, e.recordError(ctx, item, rec, err)
	}

	rec.ParticipantID = participantID
	rec.EndedAt = time.Now().UTC()
	rec.Status = models.StatusCompleted
	rec.OutcomeNotes = "call completed"
	log.Info("Call completed", "participant_id", participantID,
		"duration_s", rec.DurationSeconds())

	if _, err := e.casAndSave(ctx, item, rec, models.StatusCompleted, rec.OutcomeNotes); err != nil {
		return rec, err
	}
	return rec, nil
}

// recordError classifies a fabric-boundary error, writes the record, and
// applies the retry policy.
func (e *Executor) recordError(ctx context.Context, item *models.CallScheduleItem, rec *models.CallRecord, cause error) error {
	// A cancelled or expired context wins over whatever error it surfaced as.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return e.finishFailed(context.WithoutCancel(ctx), item, rec, "timeout", true)
		}
		// Graceful shutdown: the claim stays in_progress for the reaper,
		// but the attempt is still recorded for audit.
		rec.Status = models.StatusFailed
		rec.EndedAt = time.Now().UTC()
		rec.ErrorMessage = "cancelled during shutdown"
		rec.OutcomeNotes = "cancelled"
		if err := e.store.SaveRecord(context.WithoutCancel(ctx), rec); err != nil {
			slog.Warn("Failed to save record for cancelled call",
				"call_id", item.ID, "error", err)
		}
		return ctxErr
	}

	var sipErr *fabric.SIPError
	if errors.As(cause, &sipErr) && sipErr.Code == 408 {
		// No answer is its own outcome; still governed by the retry policy.
		rec.ErrorMessage = cause.Error()
		return e.finish(ctx, item, rec, models.StatusNoAnswer, "no answer", fabric.IsRetryable(cause))
	}

	rec.ErrorMessage = cause.Error()
	return e.finishFailed(ctx, item, rec, cause.Error(), fabric.IsRetryable(cause))
}

func (e *Executor) finishFailed(ctx context.Context, item *models.CallScheduleItem, rec *models.CallRecord, notes string, retryable bool) error {
	return e.finish(ctx, item, rec, models.StatusFailed, notes, retryable)
}

// finish records a non-success outcome and, when the error is retryable
// and attempts remain, hands the call back to the due index through the
// increment-attempt script with the backoff schedule applied.
func (e *Executor) finish(ctx context.Context, item *models.CallScheduleItem, rec *models.CallRecord, status models.CallStatus, notes string, retryable bool) error {
	rec.Status = status
	rec.EndedAt = time.Now().UTC()
	rec.OutcomeNotes = notes

	ok, err := e.casAndSave(ctx, item, rec, status, notes)
	if err != nil || !ok {
		return err
	}

	if !retryable || item.AttemptCount+1 >= item.MaxAttempts {
		// Permanent errors burn the remaining attempts; exhausted calls
		// settle as failed either way.
		count, action, err := e.store.IncrementAttempt(ctx, item.ID, min(item.AttemptCount+1, item.MaxAttempts), 0)
		if err != nil {
			return err
		}
		slog.Info("Call attempts exhausted", "call_id", item.ID,
			"attempts", count, "action", action, "retryable", retryable)
		return nil
	}

	attempt := item.AttemptCount + 1
	count, action, err := e.store.IncrementAttempt(ctx, item.ID, item.MaxAttempts, RetryBackoff(attempt))
	if err != nil {
		return err
	}
	slog.Info("Call attempt recorded", "call_id", item.ID,
		"attempts", count, "action", action, "backoff", RetryBackoff(attempt))
	return nil
}

// casAndSave swaps the claimed call to its outcome status and persists the
// record. A lost CAS means another actor (reaper, cancel) advanced the
// call first; the record is still written for audit.
func (e *Executor) casAndSave(ctx context.Context, item *models.CallScheduleItem, rec *models.CallRecord, status models.CallStatus, notes string) (bool, error) {
	rec.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveRecord(ctx, rec); err != nil {
		return false, err
	}
	ok, err := e.store.ConditionalStatusUpdate(ctx, item.ID, models.StatusInProgress, status, notes)
	if err != nil {
		return false, err
	}
	if !ok {
		slog.Warn("Lost status CAS after call execution",
			"call_id", item.ID, "intended_status", status)
	}
	return ok, nil
}
