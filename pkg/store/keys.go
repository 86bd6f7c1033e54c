package store

import "strings"

// Redis key layout. All call state lives under these keys; the sorted set
// scheduled_calls:by_time is the due index (score = scheduled epoch seconds).
const (
	dueIndexKey    = "scheduled_calls:by_time"
	archiveKey     = "scheduled_calls:archive"
	callKeyPrefix  = "scheduled_calls:"
	lockKeyPrefix  = "scheduled_calls:lock:"
	recordPrefix   = "call_records:"
	patientPrefix  = "scheduled_calls:patient:"
	analysisPrefix = "transcript_analysis:"
)

func callKey(id string) string { return callKeyPrefix + id }

// isCallHashKey filters SCAN results down to actual call item hashes,
// excluding the index, archive, lock, and patient-set keys that share the
// scheduled_calls: prefix.
func isCallHashKey(key string) bool {
	if key == dueIndexKey || key == archiveKey {
		return false
	}
	if strings.HasPrefix(key, lockKeyPrefix) || strings.HasPrefix(key, patientPrefix) {
		return false
	}
	return strings.HasPrefix(key, callKeyPrefix)
}
func lockKey(id string) string     { return lockKeyPrefix + id }
func recordKey(id string) string   { return recordPrefix + id }
func patientKey(id string) string  { return patientPrefix + id }
func analysisKey(id string) string { return analysisPrefix + id }
