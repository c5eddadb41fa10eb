package redis

import goredis "github.com/redis/go-redis/v9"

// putRecordScript inserts a record unless its id is already present.
// KEYS: [1]=records hash, [2]=arrival index
// ARGV: [1]=id, [2]=record JSON, [3]=arrival score
// Returns 1 on insert, 0 on duplicate.
var putRecordScript = goredis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// takeExpiredScript removes up to ARGV[2] ids whose arrival score is at or
// below ARGV[1], oldest first.
// KEYS: [1]=records hash, [2]=arrival index
// Returns {removed id count, record JSON...}. Ids without a record body are
// removed but contribute no JSON.
var takeExpiredScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then
  return {0}
end
local records = redis.call('HMGET', KEYS[1], unpack(ids))
redis.call('ZREM', KEYS[2], unpack(ids))
redis.call('HDEL', KEYS[1], unpack(ids))
local out = {#ids}
for i = 1, #ids do
  if records[i] then
    out[#out + 1] = records[i]
  end
end
return out
`)
