package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter bounds how hard a single client can hit the scan endpoints.
// Scans are expensive, so limits are per upload, not per byte served.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	maxUploadsPerDay  int
	maxDataPerDay     int64

	clients map[string]*clientUsage
}

// clientUsage tracks one client's recent activity.
type clientUsage struct {
	requestsLastMinute int
	uploadsToday       int
	dataToday          int64

	lastRequestTime time.Time
	dayStartTime    time.Time
}

// NewRateLimiter creates a limiter; zero disables the corresponding limit.
func NewRateLimiter(requestsPerMinute, maxUploadsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxUploadsPerDay:  maxUploadsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*clientUsage),
	}
}

// Check reports whether the client may make another upload of the given size
// and, when allowed, records it.
func (rl *RateLimiter) Check(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	usage, ok := rl.clients[clientID]
	if !ok {
		usage = &clientUsage{lastRequestTime: now, dayStartTime: now}
		rl.clients[clientID] = usage
	}
	rl.resetCounters(usage, now)

	if rl.requestsPerMinute > 0 && usage.requestsLastMinute >= rl.requestsPerMinute {
		return &LimitError{
			Type:       "requests_per_minute",
			Limit:      int64(rl.requestsPerMinute),
			RetryAfter: time.Minute - now.Sub(usage.lastRequestTime),
		}
	}
	if rl.maxUploadsPerDay > 0 && usage.uploadsToday >= rl.maxUploadsPerDay {
		return &LimitError{Type: "uploads_per_day", Limit: int64(rl.maxUploadsPerDay)}
	}
	if rl.maxDataPerDay > 0 && usage.dataToday+dataSize > rl.maxDataPerDay {
		return &LimitError{Type: "data_per_day", Limit: rl.maxDataPerDay}
	}

	usage.requestsLastMinute++
	usage.uploadsToday++
	usage.dataToday += dataSize
	usage.lastRequestTime = now
	return nil
}

func (rl *RateLimiter) resetCounters(usage *clientUsage, now time.Time) {
	if now.Day() != usage.dayStartTime.Day() || now.Month() != usage.dayStartTime.Month() {
		usage.uploadsToday = 0
		usage.dataToday = 0
		usage.dayStartTime = now
	}
	if now.Sub(usage.lastRequestTime) >= time.Minute {
		usage.requestsLastMinute = 0
	}
}

// LimitError reports which limit was exceeded.
type LimitError struct {
	Type       string
	Limit      int64
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
	}
	return fmt.Sprintf("limit exceeded for %s (limit: %d)", e.Type, e.Limit)
}
