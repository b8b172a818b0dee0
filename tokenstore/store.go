package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound reports that no refresh record exists for the principal.
	ErrNotFound = errors.New("refresh record not found")
	// ErrHashMismatch reports a presented hash that does not match the
	// stored one. The legitimate holder has already rotated; the
	// presented token is stale or stolen.
	ErrHashMismatch = errors.New("refresh hash mismatch")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRotated  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusCorrupt  int64 = 3
)

// rotateScript performs the compare-and-swap at the heart of refresh
// rotation. It runs atomically, so of N concurrent rotations presenting
// the same hash exactly one observes a match. On mismatch the record is
// left intact unless the caller opts into revocation, so the token the
// legitimate client already holds keeps working.
const rotateScript = `
local key = KEYS[1]
local provided = ARGV[1]
local updated = ARGV[2]
local ttl_ms = tonumber(ARGV[3])
local revoke = tonumber(ARGV[4])

local data = redis.call("GET", key)
if not data then
  return 0
end
if #data ~= 41 or string.byte(data, 1) ~= 1 then
  return 3
end
if string.sub(data, 2, 33) ~= provided then
  if revoke == 1 then
    redis.call("DEL", key)
  end
  return 2
end

redis.call("SET", key, updated, "PX", ttl_ms)
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// Config tunes store behavior.
type Config struct {
	// Prefix namespaces the Redis keys. Defaults to "rt".
	Prefix string
	// RevokeOnReuse deletes the record when a rotation presents a stale
	// hash, forcing re-login on detected replay. Off by default so a
	// replayed old token fails without breaking the current one.
	RevokeOnReuse bool
}

// Store persists one refresh record per principal in Redis and rotates
// it with an atomic compare-and-swap. Disjoint principals use disjoint
// keys and never contend.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	revoke bool
}

// New creates a refresh-token [Store] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "rt"
	}
	return &Store{
		redis:  redisClient,
		prefix: cfg.Prefix,
		revoke: cfg.RevokeOnReuse,
	}
}

func (s *Store) key(principalID string) string {
	return s.prefix + ":" + principalID
}

// Put stores the hash as the principal's current refresh record,
// overwriting any existing one. This is how a fresh login invalidates
// every previously issued refresh token for the principal.
func (s *Store) Put(ctx context.Context, principalID string, hash [32]byte, ttl time.Duration) error {
	rec := encodeRecord(Record{Hash: hash, IssuedAt: time.Now()})
	if err := s.redis.Set(ctx, s.key(principalID), rec, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the current record for the principal or ErrNotFound.
func (s *Store) Get(ctx context.Context, principalID string) (Record, error) {
	data, err := s.redis.Get(ctx, s.key(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeRecord(data)
}

// Remove deletes the principal's record. Deleting a missing record is
// not an error, so logout is idempotent.
func (s *Store) Remove(ctx context.Context, principalID string) error {
	if err := s.redis.Del(ctx, s.key(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate atomically replaces the stored hash when providedHash matches
// it, restarting the TTL for the newly issued token. A missing or
// expired record returns ErrNotFound; a stale providedHash returns
// ErrHashMismatch.
func (s *Store) Rotate(ctx context.Context, principalID string, providedHash, nextHash [32]byte, ttl time.Duration) error {
	updated := encodeRecord(Record{Hash: nextHash, IssuedAt: time.Now()})
	revoke := 0
	if s.revoke {
		revoke = 1
	}

	code, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(principalID)},
		providedHash[:],
		updated,
		ttl.Milliseconds(),
		revoke,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch code {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrHashMismatch
	case rotateStatusCorrupt:
		return ErrCorruptRecord
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", ErrRedisUnavailable, code)
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
