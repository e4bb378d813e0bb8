package tagstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares tag generations and membership across processes and survives
// restarts. Optionally, a TTL can be applied to the underlying keys to
// prevent unbounded growth. If a generation key expires, readers observe
// gen=0 and cache entries self-heal.
type Redis struct {
	rdb redis.UniversalClient
	ttl time.Duration // optional TTL for tag keys; 0 disables expiry
}

var _ Store = (*Redis)(nil)

// NewRedis creates a Redis-backed tag store without TTL.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{rdb: client}
}

// NewRedisWithTTL creates a Redis-backed tag store with TTL.
// If ttl <= 0, keys do not expire.
func NewRedisWithTTL(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ttl: ttl}
}

func (s *Redis) genKey(k string) string     { return k + ":gen" }
func (s *Redis) membersKey(k string) string { return k + ":members" }

// Snapshot returns the current generation.
// Missing keys are treated as generation 0.
func (s *Redis) Snapshot(ctx context.Context, tagKey string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.genKey(tagKey)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis tag gen parse: %w", err)
	}
	return u, nil
}

// SnapshotMany returns generations for multiple tag keys.
// Missing keys map to 0.
func (s *Redis) SnapshotMany(ctx context.Context, tagKeys []string) (map[string]uint64, error) {
	if len(tagKeys) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(tagKeys))
	for i, k := range tagKeys {
		keys[i] = s.genKey(k)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(tagKeys))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
			out[tagKeys[i]] = 0
		case string:
			u, err := strconv.ParseUint(vv, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("redis tag gen parse at %s: %w", tagKeys[i], err)
			}
			out[tagKeys[i]] = u
		case []byte:
			u, err := strconv.ParseUint(string(vv), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("redis tag gen parse at %s: %w", tagKeys[i], err)
			}
			out[tagKeys[i]] = u
		default:
			str := fmt.Sprint(vv)
			u, err := strconv.ParseUint(str, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("redis tag gen parse at %s: %w", tagKeys[i], err)
			}
			out[tagKeys[i]] = u
		}
	}
	return out, nil
}

// Bump atomically increments the generation and (optionally) refreshes TTL.
// When ttl > 0, INCR + EXPIRE are pipelined in a single round-trip and the
// INCR result is captured from the pipeline (no extra INCR).
func (s *Redis) Bump(ctx context.Context, tagKey string) (uint64, error) {
	k := s.genKey(tagKey)

	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Track adds storageKey to the membership set of every tag key, pipelined.
func (s *Redis) Track(ctx context.Context, storageKey string, tagKeys []string) error {
	if len(tagKeys) == 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range tagKeys {
			mk := s.membersKey(k)
			p.SAdd(ctx, mk, storageKey)
			if s.ttl > 0 {
				p.Expire(ctx, mk, s.ttl)
			}
		}
		return nil
	})
	return err
}

func (s *Redis) Keys(ctx context.Context, tagKey string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.membersKey(tagKey)).Result()
}

func (s *Redis) Forget(ctx context.Context, tagKey string) error {
	return s.rdb.Del(ctx, s.membersKey(tagKey)).Err()
}

// Cleanup is not applicable for Redis (expiry handles growth if TTL is set).
func (s *Redis) Cleanup(time.Duration) {}

// Close closes the underlying Redis client.
func (s *Redis) Close(ctx context.Context) error { return s.rdb.Close() }
