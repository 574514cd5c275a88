package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// MemoryLimiter is a per-key token bucket local to the process.
type MemoryLimiter struct {
	perMinute int
	burst     int

	mu      sync.Mutex
	buckets map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorIdle = 10 * time.Minute

func NewMemoryLimiter(perMinute, burst int) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	return &MemoryLimiter{
		perMinute: perMinute,
		burst:     burst,
		buckets:   make(map[string]*visitor),
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	v, ok := m.buckets[key]
	if !ok {
		m.evict(now)
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(m.perMinute)/60), m.burst)}
		m.buckets[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

func (m *MemoryLimiter) evict(now time.Time) {
	for k, v := range m.buckets {
		if now.Sub(v.lastSeen) > visitorIdle {
			delete(m.buckets, k)
		}
	}
}

// RedisLimiter is a fixed one-minute window shared by all instances.
type RedisLimiter struct {
	client goredis.UniversalClient
	limit  int
	prefix string
}

func NewRedisLimiter(client goredis.UniversalClient, perMinute int, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, limit: perMinute, prefix: prefix}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	window := time.Now().Unix() / 60
	redisKey := r.prefix + ":" + key + ":" + strconv.FormatInt(window, 10)

	var incr *goredis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.Expire(ctx, redisKey, 2*time.Minute)
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if incr.Val() > int64(r.limit) {
		retry := time.Until(time.Unix((window+1)*60, 0))
		return false, retry, nil
	}
	return true, 0, nil
}

// RateLimit throttles per client IP. A failing limiter lets the request
// through.
func RateLimit(l Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := l.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			secs := int(retryAfter.Round(time.Second).Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}
		c.Next()
	}
}
