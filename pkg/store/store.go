// Package store implements the shared call-state store on Redis. It is the
// only source of truth for scheduled calls: hashes hold the items and
// records, a sorted set keyed by scheduled time is the due index, and all
// multi-step mutations run as server-side scripts.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested call or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLockHeld indicates another process holds the per-call lock.
	ErrLockHeld = errors.New("lock held")
)

// CorruptError marks a persisted record that can no longer be decoded. The
// caller quarantines the item rather than crashing the worker.
type CorruptError struct {
	ID     string
	Reason error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt record %s: %v", e.ID, e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.Reason }

// Action is the outcome of IncrementAttempt.
type Action string

// Increment-attempt actions.
const (
	ActionRetry      Action = "retry"
	ActionMaxReached Action = "max_reached"
)

// Store wraps a Redis client with the scripted atomic call primitives.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Connect parses a Redis URL, connects, and verifies the connection.
func Connect(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing store url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.rdb.Close() }

// Ping verifies store reachability (used by health checks).
func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// DequeueDue atomically claims up to limit calls due at or before now.
// Claimed calls flip pending → in_progress and leave the due index in the
// same script, so no two workers ever claim the same id.
func (s *Store) DequeueDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	res, err := dequeueDueScript.Run(ctx, s.rdb,
		[]string{dueIndexKey},
		now.UTC().Unix(), limit, now.UTC().Format(time.RFC3339), callKeyPrefix,
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("dequeue due: %w", err)
	}
	return res, nil
}

// IncrementAttempt bumps the attempt counter for a call. If the counter
// reaches maxAttempts the call becomes failed and stays out of the due
// index; otherwise it returns to pending, re-indexed either at its
// original scheduled time (delay 0) or at now+delay.
func (s *Store) IncrementAttempt(ctx context.Context, id string, maxAttempts int, delay time.Duration) (int, Action, error) {
	now := time.Now().UTC()
	res, err := incrementAttemptScript.Run(ctx, s.rdb,
		[]string{callKey(id), dueIndexKey},
		maxAttempts, now.Format(time.RFC3339), id, int(delay.Seconds()), now.Unix(),
	).Slice()
	if err != nil {
		return 0, "", fmt.Errorf("increment attempt for %s: %w", id, err)
	}
	if len(res) != 2 {
		return 0, "", fmt.Errorf("increment attempt for %s: unexpected reply %v", id, res)
	}
	count, ok := res[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("increment attempt for %s: unexpected count %v", id, res[0])
	}
	action, ok := res[1].(string)
	if !ok {
		return 0, "", fmt.Errorf("increment attempt for %s: unexpected action %v", id, res[1])
	}
	return int(count), Action(action), nil
}

// ConditionalStatusUpdate is a CAS on the call status. It returns false if
// the current status differs from expected. Terminal statuses remove the
// call from the due index in the same script; a swap back to pending
// re-indexes it at its original scheduled time.
func (s *Store) ConditionalStatusUpdate(ctx context.Context, id string, expected, next models.CallStatus, notes string) (bool, error) {
	if !models.CanTransition(expected, next) {
		return false, fmt.Errorf("status update for %s: transition %s → %s not allowed", id, expected, next)
	}
	terminal := "0"
	if next.IsTerminal() {
		terminal = "1"
	}
	ok, err := casStatusScript.Run(ctx, s.rdb,
		[]string{callKey(id), dueIndexKey},
		string(expected), string(next), notes, time.Now().UTC().Format(time.RFC3339), id, terminal,
	).Int()
	if err != nil {
		return false, fmt.Errorf("status update for %s: %w", id, err)
	}
	return ok == 1, nil
}

// BatchSchedule inserts a set of calls transactionally: for each item the
// hash is written, the id enters the due index at its scheduled time, and
// joins the per-patient set. All-or-nothing.
func (s *Store) BatchSchedule(ctx context.Context, items []*models.CallScheduleItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, item := range items {
			fields, err := item.ToMap()
			if err != nil {
				return err
			}
			// Redundant epoch field lets the scripts re-index without
			// parsing RFC3339 in Lua.
			fields["scheduled_ts"] = strconv.FormatInt(item.ScheduledTime.UTC().Unix(), 10)
			pipe.HSet(ctx, callKey(item.ID), fields)
			pipe.ZAdd(ctx, dueIndexKey, redis.Z{
				Score:  float64(item.ScheduledTime.UTC().Unix()),
				Member: item.ID,
			})
			pipe.SAdd(ctx, patientKey(item.PatientID), item.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch schedule of %d calls: %w", len(items), err)
	}
	return nil
}

// GetItem loads a single call by id.
func (s *Store) GetItem(ctx context.Context, id string) (*models.CallScheduleItem, error) {
	m, err := s.rdb.HGetAll(ctx, callKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading call %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("call %s: %w", id, ErrNotFound)
	}
	item, err := models.CallFromMap(m)
	if err != nil {
		return nil, &CorruptError{ID: id, Reason: err}
	}
	return item, nil
}

// ItemsForPatient loads every scheduled call for a patient.
func (s *Store) ItemsForPatient(ctx context.Context, patientID string) ([]*models.CallScheduleItem, error) {
	ids, err := s.rdb.SMembers(ctx, patientKey(patientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading calls for patient %s: %w", patientID, err)
	}
	items := make([]*models.CallScheduleItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.GetItem(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // archived since SMEMBERS
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// PendingInWindow returns ids of pending calls scheduled inside [from, to].
func (s *Store) PendingInWindow(ctx context.Context, from, to time.Time) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, dueIndexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UTC().Unix(), 10),
		Max: strconv.FormatInt(to.UTC().Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("querying due index: %w", err)
	}
	return ids, nil
}

// SaveRecord writes a call execution record.
func (s *Store) SaveRecord(ctx context.Context, rec *models.CallRecord) error {
	fields, err := rec.ToMap()
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, recordKey(rec.ID), fields).Err(); err != nil {
		return fmt.Errorf("saving record %s: %w", rec.ID, err)
	}
	return nil
}

// GetRecord loads a call record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (*models.CallRecord, error) {
	m, err := s.rdb.HGetAll(ctx, recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading record %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	rec, err := models.RecordFromMap(m)
	if err != nil {
		return nil, &CorruptError{ID: id, Reason: err}
	}
	return rec, nil
}

// ArchiveOld moves terminal calls whose updated_at is older than cutoff
// into the JSON archive hash and deletes the originals along with their
// patient-set membership. Returns the number of archived calls.
func (s *Store) ArchiveOld(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339)
	archived := 0

	iter := s.rdb.Scan(ctx, 0, callKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !isCallHashKey(key) {
			continue
		}
		m, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return archived, fmt.Errorf("scanning %s: %w", key, err)
		}
		status := models.CallStatus(m["status"])
		// RFC3339 UTC strings compare lexicographically in time order.
		if !status.IsTerminal() || m["updated_at"] == "" || m["updated_at"] >= cutoffStr {
			continue
		}
		blob, err := json.Marshal(m)
		if err != nil {
			slog.Warn("Skipping archive of unencodable call", "key", key, "error", err)
			continue
		}
		id := m["id"]
		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, archiveKey, id, string(blob))
			pipe.Del(ctx, key)
			pipe.SRem(ctx, patientKey(m["patient_id"]), id)
			pipe.ZRem(ctx, dueIndexKey, id)
			return nil
		})
		if err != nil {
			return archived, fmt.Errorf("archiving %s: %w", id, err)
		}
		archived++
	}
	if err := iter.Err(); err != nil {
		return archived, fmt.Errorf("scanning calls for archive: %w", err)
	}
	return archived, nil
}

// ReapStale returns in_progress calls with a stale updated_at to pending.
// Used by the orphan reaper: a worker that crashed mid-call leaves its
// claim in_progress forever; the CAS back to pending re-indexes the call
// at its original scheduled time. Returns the number of recovered calls.
func (s *Store) ReapStale(ctx context.Context, olderThan time.Time) (int, error) {
	cutoffStr := olderThan.UTC().Format(time.RFC3339)
	recovered := 0

	iter := s.rdb.Scan(ctx, 0, callKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !isCallHashKey(key) {
			continue
		}
		m, err := s.rdb.HMGet(ctx, key, "id", "status", "updated_at").Result()
		if err != nil {
			return recovered, fmt.Errorf("scanning %s: %w", key, err)
		}
		id, _ := m[0].(string)
		status, _ := m[1].(string)
		updated, _ := m[2].(string)
		if id == "" || models.CallStatus(status) != models.StatusInProgress || updated >= cutoffStr {
			continue
		}
		ok, err := s.ConditionalStatusUpdate(ctx, id, models.StatusInProgress, models.StatusPending, "reaped: stale in_progress claim")
		if err != nil {
			return recovered, err
		}
		if ok {
			slog.Warn("Recovered orphaned call", "call_id", id, "stale_since", updated)
			recovered++
		}
	}
	if err := iter.Err(); err != nil {
		return recovered, fmt.Errorf("scanning calls for reap: %w", err)
	}
	return recovered, nil
}

// GetWithLock acquires the per-call lock, loads a snapshot, runs fn, and
// releases the lock. Intended for rare multi-step edits; the hot path
// never takes locks.
func (s *Store) GetWithLock(ctx context.Context, id string, ttl time.Duration, fn func(*models.CallScheduleItem) error) error {
	token := uuid.NewString()
	acquired, err := s.rdb.SetNX(ctx, lockKey(id), token, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", id, err)
	}
	if !acquired {
		return fmt.Errorf("call %s: %w", id, ErrLockHeld)
	}
	defer func() {
		if err := releaseLockScript.Run(context.WithoutCancel(ctx), s.rdb, []string{lockKey(id)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			slog.Warn("Failed to release call lock", "call_id", id, "error", err)
		}
	}()

	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	return fn(item)
}

// SaveAnalysis persists a transcript analysis under its session id.
func (s *Store) SaveAnalysis(ctx context.Context, analysis *models.TranscriptAnalysis) error {
	blob, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encoding analysis for session %s: %w", analysis.SessionID, err)
	}
	if err := s.rdb.Set(ctx, analysisKey(analysis.SessionID), blob, 0).Err(); err != nil {
		return fmt.Errorf("saving analysis for session %s: %w", analysis.SessionID, err)
	}
	return nil
}

// GetAnalysis loads a previously persisted transcript analysis.
func (s *Store) GetAnalysis(ctx context.Context, sessionID string) (*models.TranscriptAnalysis, error) {
	blob, err := s.rdb.Get(ctx, analysisKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("analysis for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading analysis for session %s: %w", sessionID, err)
	}
	var analysis models.TranscriptAnalysis
	if err := json.Unmarshal(blob, &analysis); err != nil {
		return nil, &CorruptError{ID: sessionID, Reason: err}
	}
	return &analysis, nil
}

// InDueIndex reports whether the id is currently in the due index
// (primarily for invariant checks in tests and the health endpoint).
func (s *Store) InDueIndex(ctx context.Context, id string) (bool, error) {
	_, err := s.rdb.ZScore(ctx, dueIndexKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking due index for %s: %w", id, err)
	}
	return true, nil
}

// DueIndexScore returns the due-index score (epoch seconds) for an id.
func (s *Store) DueIndexScore(ctx context.Context, id string) (int64, error) {
	score, err := s.rdb.ZScore(ctx, dueIndexKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("due index entry for %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("reading due index score for %s: %w", id, err)
	}
	return int64(score), nil
}

// QueueDepth returns the number of calls currently in the due index.
func (s *Store) QueueDepth(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, dueIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("reading queue depth: %w", err)
	}
	return n, nil
}
