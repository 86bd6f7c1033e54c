package store

import "github.com/redis/go-redis/v9"

// Server-side scripts keep every status + due-index mutation in a single
// atomic step, so the worker pool can scale horizontally without any
// central coordinator. The pending ↔ in_progress flip and the index
// membership always change together.

// dequeueDueScript claims due calls.
//
//	KEYS[1] = due index
//	ARGV[1] = now (epoch seconds)
//	ARGV[2] = limit
//	ARGV[3] = now (RFC3339)
//	ARGV[4] = call key prefix
//
// Only ids whose status is exactly "pending" are claimed. Ids found in the
// index with any other status are stale entries and are removed so the
// pending ⇔ indexed invariant self-heals.
var dequeueDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local claimed = {}
for _, id in ipairs(due) do
	local key = ARGV[4] .. id
	if redis.call('HGET', key, 'status') == 'pending' then
		redis.call('HSET', key, 'status', 'in_progress', 'updated_at', ARGV[3])
		redis.call('ZREM', KEYS[1], id)
		claimed[#claimed + 1] = id
	else
		redis.call('ZREM', KEYS[1], id)
	end
end
return claimed
`)

// incrementAttemptScript bumps attempt_count and either re-queues the call
// or marks it failed.
//
//	KEYS[1] = call key
//	KEYS[2] = due index
//	ARGV[1] = max attempts
//	ARGV[2] = now (RFC3339)
//	ARGV[3] = call id
//	ARGV[4] = retry delay seconds (0 = re-queue at original scheduled time)
//	ARGV[5] = now (epoch seconds)
//
// Returns {count, "retry"} or {count, "max_reached"}.
var incrementAttemptScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'attempt_count', 1)
if count >= tonumber(ARGV[1]) then
	redis.call('HSET', KEYS[1], 'status', 'failed', 'updated_at', ARGV[2], 'notes', 'max attempts reached')
	redis.call('ZREM', KEYS[2], ARGV[3])
	return {count, 'max_reached'}
end
redis.call('HSET', KEYS[1], 'status', 'pending', 'updated_at', ARGV[2])
local delay = tonumber(ARGV[4])
local score
if delay > 0 then
	score = tonumber(ARGV[5]) + delay
else
	score = tonumber(redis.call('HGET', KEYS[1], 'scheduled_ts') or ARGV[5])
end
redis.call('ZADD', KEYS[2], score, ARGV[3])
return {count, 'retry'}
`)

// casStatusScript performs a compare-and-swap on status.
//
//	KEYS[1] = call key
//	KEYS[2] = due index
//	ARGV[1] = expected status
//	ARGV[2] = new status
//	ARGV[3] = notes ("" = leave unchanged)
//	ARGV[4] = now (RFC3339)
//	ARGV[5] = call id
//	ARGV[6] = "1" if the new status is terminal
//
// A swap to "pending" re-inserts the id into the due index at its original
// scheduled time (used by the orphan reaper).
var casStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if cur ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'updated_at', ARGV[4])
if ARGV[3] ~= '' then
	redis.call('HSET', KEYS[1], 'notes', ARGV[3])
end
if ARGV[6] == '1' then
	redis.call('ZREM', KEYS[2], ARGV[5])
elseif ARGV[2] == 'pending' then
	local ts = redis.call('HGET', KEYS[1], 'scheduled_ts')
	if ts then
		redis.call('ZADD', KEYS[2], tonumber(ts), ARGV[5])
	end
end
return 1
`)

// releaseLockScript releases a named lock only if the caller still owns it.
//
//	KEYS[1] = lock key
//	ARGV[1] = lock token
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
