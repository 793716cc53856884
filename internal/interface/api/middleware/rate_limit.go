package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/matthias-truyzelaere/documindr/internal/interface/api/respond"
)

// レート制限のグループ名
const (
	RateLimitGroupChat    = "chat"
	RateLimitGroupUpload  = "upload"
	RateLimitGroupDefault = "default"
)

// DefaultCleanupInterval は使われなくなったバケットを掃除する間隔
const DefaultCleanupInterval = 5 * time.Minute

// RateLimitRule は Window あたり Limit 回のトークンバケット。バースト幅は Limit
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

func (r RateLimitRule) enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

func (r RateLimitRule) rate() rate.Limit {
	return rate.Limit(float64(r.Limit) / r.Window.Seconds())
}

// RateLimitConfig は RateLimit ミドルウェアの設定
type RateLimitConfig struct {
	Rules    map[string]RateLimitRule
	GroupFor func(*gin.Context) string
	Limiter  *RateLimiter
}

// GroupForPath はパスからレート制限グループを決める
func GroupForPath(c *gin.Context) string {
	path := c.Request.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/chat"):
		return RateLimitGroupChat
	case path == "/api/upload":
		return RateLimitGroupUpload
	default:
		return RateLimitGroupDefault
	}
}

// RateLimiter はキーごとの rate.Limiter を保持する
type RateLimiter struct {
	mu              sync.Mutex
	buckets         map[string]*bucket
	now             func() time.Time
	idleTTL         time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter は RateLimiter を作成する
// idleTTL より長く使われていないバケットは cleanupInterval ごとに破棄する
func NewRateLimiter(now func() time.Time, idleTTL, cleanupInterval time.Duration) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &RateLimiter{
		buckets:         make(map[string]*bucket),
		now:             now,
		idleTTL:         idleTTL,
		cleanupInterval: cleanupInterval,
		lastCleanup:     now(),
	}
}

// Allow は1リクエスト分のトークンを消費できるかを返す
// 消費できない場合は次にトークンが補充されるまでの待ち時間を返す
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || !rule.enabled() {
		return true, 0
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rule.rate(), rule.Limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, rule.Window
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len は保持しているバケット数を返す
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *RateLimiter) cleanupLocked(now time.Time) {
	if l.idleTTL <= 0 || now.Sub(l.lastCleanup) < l.cleanupInterval {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastCleanup = now
}

// RateLimit はクライアントIPとパスの組ごとにリクエストを制限し、超過時は 429 を返す
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil, 0, 0)
	}
	if cfg.GroupFor == nil {
		cfg.GroupFor = GroupForPath
	}

	return func(c *gin.Context) {
		rule, ok := cfg.Rules[cfg.GroupFor(c)]
		if !ok {
			c.Next()
			return
		}

		key := c.ClientIP() + "|" + c.Request.URL.Path
		allowed, retryAfter := cfg.Limiter.Allow(key, rule)
		if allowed {
			c.Next()
			return
		}

		seconds := int(math.Ceil(retryAfter.Seconds()))
		if seconds <= 0 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		respond.Error(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Try again soon.")
	}
}
