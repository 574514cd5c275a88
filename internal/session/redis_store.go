package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldCreated  = "m:created"
	fieldAccessed = "m:accessed"
	valuePrefix   = "v:"
)

// setIfExists writes one field only while the session hash still exists,
// so a late write can never resurrect a destroyed session.
var setIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// touchAndRead refreshes the access time and returns the whole hash in one
// step. A missing hash yields an empty reply and is left missing.
var touchAndRead = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {}
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return redis.call('HGETALL', KEYS[1])
`)

// RedisStore keeps each session in one hash. Metadata and values share the
// hash under distinct prefixes; Redis key expiry implements the TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "session:",
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) Create(ctx context.Context) (string, error) {
	id, err := GenerateID()
	if err != nil {
		return "", err
	}

	now := strconv.FormatInt(r.now().UnixMilli(), 10)
	key := r.key(id)

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, fieldCreated, now, fieldAccessed, now)
		p.PExpire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return "", unavailable(err)
	}
	return id, nil
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	if !ValidID(sessionID) {
		return nil, ErrNotFound
	}
	now := r.now()
	flat, err := touchAndRead.Run(ctx, r.client,
		[]string{r.key(sessionID)},
		fieldAccessed, strconv.FormatInt(now.UnixMilli(), 10), r.ttl.Milliseconds(),
	).StringSlice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(flat) == 0 {
		return nil, ErrNotFound
	}

	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}

	s := &Session{
		ID:           sessionID,
		Values:       make(map[string]string),
		CreatedAt:    parseMillis(fields[fieldCreated]),
		LastAccessAt: now,
		ExpiresAt:    now.Add(r.ttl),
	}
	for field, value := range fields {
		if k, ok := strings.CutPrefix(field, valuePrefix); ok {
			s.Values[k] = value
		}
	}
	return s, nil
}

func (r *RedisStore) Set(ctx context.Context, sessionID, key, value string) error {
	if !ValidID(sessionID) {
		return ErrNotFound
	}
	ok, err := setIfExists.Run(ctx, r.client,
		[]string{r.key(sessionID)},
		valuePrefix+key, value, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return unavailable(err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID, key string) error {
	if !ValidID(sessionID) {
		return nil
	}
	if err := r.client.HDel(ctx, r.key(sessionID), valuePrefix+key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisStore) Destroy(ctx context.Context, sessionID string) error {
	if !ValidID(sessionID) {
		return nil
	}
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
