package common

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает число команд на key: limit событий за window с burst = limit.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	every    rate.Limit
	limiters map[string]*rate.Limiter
}

// NewRateLimiter создает limiter с лимитом событий в окне.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		limit:    limit,
		every:    rate.Limit(float64(limit) / window.Seconds()),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow возвращает true, если запрос укладывается в лимит.
func (l *RateLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.limit)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}
