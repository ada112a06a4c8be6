package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps refresh-token records in Redis. Layout per prefix p:
//
//	p:rt:<hash>   hash  record fields
//	p:fam:<id>    set   token hashes in the family
//	p:usr:<id>    set   family ids owned by the user
//
// Rotation runs as a single Lua script so the consume-and-issue step is
// atomic even across racing clients.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore wires a store over an existing client. retention is how
// long consumed and expired records stay visible for forensics before
// their keys lapse.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ac"
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) recordKey(hash string) string { return s.prefix + ":rt:" + hash }
func (s *RedisStore) familyKey(id string) string   { return s.prefix + ":fam:" + id }
func (s *RedisStore) userKey(id string) string     { return s.prefix + ":usr:" + id }

// Rotation statuses returned by rotateScript.
const (
	rotateMissing = 0
	rotateExpired = 1
	rotateReused  = 2
	rotateOK      = 3
)

// KEYS[1] provided record, KEYS[2] successor record.
// ARGV: 1 prefix, 2 now, 3 next hash, 4 next id, 5 next exp,
// 6 next ua, 7 next ip, 8 retention seconds.
var rotateScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
  return {0}
end
local rev = redis.call("HGET", key, "rev")
local family = redis.call("HGET", key, "family")
local user = redis.call("HGET", key, "user")
local now = tonumber(ARGV[2])
if rev == "1" then
  local members = redis.call("SMEMBERS", ARGV[1] .. ":fam:" .. family)
  local touched = 0
  for i = 1, #members do
    local mkey = ARGV[1] .. ":rt:" .. members[i]
    if redis.call("EXISTS", mkey) == 1 and redis.call("HGET", mkey, "rev") ~= "1" then
      redis.call("HSET", mkey, "rev", "1", "reva", ARGV[2])
      touched = touched + 1
    end
  end
  return {2, family, user, touched}
end
local exp = tonumber(redis.call("HGET", key, "exp"))
if exp == nil or exp <= now then
  return {1}
end
redis.call("HSET", key, "rev", "1", "reva", ARGV[2])
redis.call("HSET", KEYS[2],
  "id", ARGV[4], "user", user, "family", family,
  "exp", ARGV[5], "rev", "0", "reva", "0",
  "ua", ARGV[6], "ip", ARGV[7], "created", ARGV[2])
redis.call("EXPIREAT", KEYS[2], tonumber(ARGV[5]) + tonumber(ARGV[8]))
local famkey = ARGV[1] .. ":fam:" .. family
redis.call("SADD", famkey, ARGV[3])
redis.call("EXPIREAT", famkey, tonumber(ARGV[5]) + tonumber(ARGV[8]))
return {3, family, user, exp}
`)

var revokeFamilyScript = redis.NewScript(`
local members = redis.call("SMEMBERS", KEYS[1])
local touched = 0
for i = 1, #members do
  local mkey = ARGV[1] .. ":rt:" .. members[i]
  if redis.call("EXISTS", mkey) == 1 and redis.call("HGET", mkey, "rev") ~= "1" then
    redis.call("HSET", mkey, "rev", "1", "reva", ARGV[2])
    touched = touched + 1
  end
end
return touched
`)

// Save stores a fresh record and registers it under its family and user
// indexes in one transaction.
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	if rec.TokenHash == "" || rec.UserID == "" || rec.Family == "" {
		return errors.New("token: record missing hash, user, or family")
	}
	keepUntil := rec.ExpiresAt.Add(s.retention)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := s.recordKey(rec.TokenHash)
		pipe.HSet(ctx, key, map[string]any{
			"id":      rec.ID,
			"user":    rec.UserID,
			"family":  rec.Family,
			"exp":     rec.ExpiresAt.Unix(),
			"rev":     "0",
			"reva":    "0",
			"ua":      rec.UserAgent,
			"ip":      rec.IP,
			"created": rec.CreatedAt.Unix(),
		})
		pipe.ExpireAt(ctx, key, keepUntil)
		pipe.SAdd(ctx, s.familyKey(rec.Family), rec.TokenHash)
		pipe.ExpireAt(ctx, s.familyKey(rec.Family), keepUntil)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.Family)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Rotate runs the compare-and-rotate script. See Store.Rotate for the
// contract.
func (s *RedisStore) Rotate(ctx context.Context, providedHash string, next *Record) (*Record, error) {
	now := time.Now()
	res, err := rotateScript.Run(ctx, s.client,
		[]string{s.recordKey(providedHash), s.recordKey(next.TokenHash)},
		s.prefix,
		now.Unix(),
		next.TokenHash,
		next.ID,
		next.ExpiresAt.Unix(),
		next.UserAgent,
		next.IP,
		int64(s.retention.Seconds()),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty script reply", ErrUnavailable)
	}
	status, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected script reply %v", ErrUnavailable, res)
	}
	switch status {
	case rotateMissing:
		return nil, ErrNotFound
	case rotateExpired:
		return nil, ErrExpired
	case rotateReused:
		consumed := &Record{
			TokenHash: providedHash,
			Family:    scriptString(res, 1),
			UserID:    scriptString(res, 2),
			Revoked:   true,
		}
		return consumed, ErrReuse
	case rotateOK:
		consumed := &Record{
			TokenHash: providedHash,
			Family:    scriptString(res, 1),
			UserID:    scriptString(res, 2),
			Revoked:   true,
			RevokedAt: now,
		}
		next.UserID = consumed.UserID
		next.Family = consumed.Family
		next.CreatedAt = now
		return consumed, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrUnavailable, status)
	}
}

// Get loads one record for inspection.
func (s *RedisStore) Get(ctx context.Context, tokenHash string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	rec := &Record{
		ID:        fields["id"],
		UserID:    fields["user"],
		TokenHash: tokenHash,
		Family:    fields["family"],
		UserAgent: fields["ua"],
		IP:        fields["ip"],
		Revoked:   fields["rev"] == "1",
	}
	if v, err := strconv.ParseInt(fields["exp"], 10, 64); err == nil {
		rec.ExpiresAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(fields["created"], 10, 64); err == nil {
		rec.CreatedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(fields["reva"], 10, 64); err == nil && v > 0 {
		rec.RevokedAt = time.Unix(v, 0)
	}
	return rec, nil
}

// RevokeFamily revokes every live record in the family.
func (s *RedisStore) RevokeFamily(ctx context.Context, family string) (int, error) {
	n, err := revokeFamilyScript.Run(ctx, s.client,
		[]string{s.familyKey(family)},
		s.prefix, time.Now().Unix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// RevokeAllForUser walks the user's family index and revokes each one.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	families, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	total := 0
	for _, fam := range families {
		n, err := s.RevokeFamily(ctx, fam)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// SweepExpired scans record keys and deletes those past expiry plus the
// retention window, unlinking them from their family index. Families
// emptied by the sweep are also dropped from their owner's index, which
// otherwise never shrinks (the user set carries no TTL).
func (s *RedisStore) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = s.retention
	}
	cutoff := time.Now().Add(-retention).Unix()
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":rt:*", 200).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, key := range keys {
			vals, err := s.client.HMGet(ctx, key, "exp", "family", "user").Result()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			expStr, _ := vals[0].(string)
			family, _ := vals[1].(string)
			user, _ := vals[2].(string)
			exp, err := strconv.ParseInt(expStr, 10, 64)
			if err != nil || exp > cutoff {
				continue
			}
			hash := key[len(s.prefix)+len(":rt:"):]
			_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, s.familyKey(family), hash)
				return nil
			})
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			if user != "" {
				left, err := s.client.SCard(ctx, s.familyKey(family)).Result()
				if err != nil {
					return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
				}
				if left == 0 {
					if err := s.client.SRem(ctx, s.userKey(user), family).Err(); err != nil {
						return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
					}
				}
			}
			deleted++
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func scriptString(res []any, i int) string {
	if i >= len(res) {
		return ""
	}
	s, _ := res[i].(string)
	return s
}
