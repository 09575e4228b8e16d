package redis

import "github.com/redis/go-redis/v9"

// claimScript atomically claims the oldest eligible pending job.
//
// KEYS[1] = pending state zset
// KEYS[2] = processing state zset
// ARGV[1] = now (unix ms)
// ARGV[2] = worker id
// ARGV[3] = scan batch size
// ARGV[4] = job key prefix
//
// The pending zset is scored by created_at, so walking it batch by
// batch in score order and claiming the first hash whose available_at
// has passed preserves oldest-first ordering. Deferred retries waiting
// out their backoff occupy head slots, so the walk continues past a
// full batch of ineligible jobs until the set is exhausted. Returns
// the claimed job ID or false when nothing is eligible.
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local batch = tonumber(ARGV[3])
local offset = 0
while true do
	local ids = redis.call('ZRANGE', KEYS[1], offset, offset + batch - 1)
	if #ids == 0 then
		return false
	end
	for _, id in ipairs(ids) do
		local key = ARGV[4] .. id
		local avail = tonumber(redis.call('HGET', key, 'available_at'))
		if avail and avail <= now then
			local created = redis.call('ZSCORE', KEYS[1], id)
			redis.call('ZREM', KEYS[1], id)
			redis.call('HINCRBY', key, 'attempts', 1)
			redis.call('HSET', key, 'state', 'processing', 'worker_id', ARGV[2], 'updated_at', ARGV[1])
			redis.call('ZADD', KEYS[2], created, id)
			return id
		end
	end
	offset = offset + batch
end
`)

// transitionScript applies a guarded state transition: the job must
// exist and currently be in the expected state.
//
// KEYS[1] = source state zset
// KEYS[2] = target state zset
// ARGV[1] = job id
// ARGV[2] = expected current state
// ARGV[3] = job key prefix
// ARGV[4..] = HSET field/value pairs to apply
//
// Returns "ok", "not_found", or "invalid".
var transitionScript = redis.NewScript(`
local key = ARGV[3] .. ARGV[1]
if redis.call('EXISTS', key) == 0 then
	return 'not_found'
end
if redis.call('HGET', key, 'state') ~= ARGV[2] then
	return 'invalid'
end
local created = redis.call('ZSCORE', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], created, ARGV[1])
redis.call('HSET', key, unpack(ARGV, 4))
return 'ok'
`)

// recoverScript moves every processing job back to pending.
//
// KEYS[1] = processing state zset
// KEYS[2] = pending state zset
// ARGV[1] = now (unix ms)
// ARGV[2] = job key prefix
//
// Returns the number of jobs moved.
var recoverScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
	local key = ARGV[2] .. id
	local created = redis.call('ZSCORE', KEYS[1], id)
	redis.call('ZREM', KEYS[1], id)
	redis.call('HSET', key, 'state', 'pending', 'worker_id', '', 'available_at', ARGV[1], 'updated_at', ARGV[1])
	redis.call('ZADD', KEYS[2], created, id)
end
return #ids
`)
