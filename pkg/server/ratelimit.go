package server

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/scatter/pkg/logger"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterBucketExpiry    = 30 * time.Minute
)

// tokenBucket 令牌桶
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	rate       float64
	lastRefill time.Time
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = min(b.burst, b.tokens+now.Sub(b.lastRefill).Seconds()*b.rate)
	b.lastRefill = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *tokenBucket) idle(now time.Time, expiry time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastRefill) > expiry
}

// upgradeLimiter 按客户端 IP 限制 WebSocket 握手频率
type upgradeLimiter struct {
	rate  float64
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
	done    chan struct{}
	once    sync.Once
}

func newUpgradeLimiter(rate float64, burst int) *upgradeLimiter {
	if burst <= 0 {
		burst = max(1, int(rate))
	}
	return &upgradeLimiter{
		rate:    rate,
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		done:    make(chan struct{}),
	}
}

func (l *upgradeLimiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.burst), burst: float64(l.burst), rate: l.rate, lastRefill: now}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	return b.allow(now)
}

// cleanup 清理长时间未使用的桶
func (l *upgradeLimiter) cleanup(expiry time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.idle(now, expiry) {
			delete(l.buckets, key)
		}
	}
}

func (l *upgradeLimiter) run() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(limiterBucketExpiry)
		case <-l.done:
			return
		}
	}
}

func (l *upgradeLimiter) stop() {
	l.once.Do(func() { close(l.done) })
}

// middleware 超出频率时返回 429，不进入握手
func (l *upgradeLimiter) middleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.allow(ip) {
			log.Warn("upgrade rate limit exceeded", zap.String("ip", ip))
			fail(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
