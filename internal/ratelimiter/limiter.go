package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiters holds one token bucket limiter per remote host, created on
// first use. Every host gets the same rate and burst.
type HostLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// New creates a HostLimiters allowing ratePerSec requests per second per host
// with the given burst. A burst below one is raised to one.
func New(ratePerSec float64, burst int) *HostLimiters {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiters{
		limit:    rate.Limit(ratePerSec),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Unlimited returns limiters that never block. Used by tests and one-off
// tooling that talks to a local server.
func Unlimited() *HostLimiters {
	return &HostLimiters{
		limit:    rate.Inf,
		burst:    1,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host's limiter grants a token.
// Called by the scraper immediately before each request.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (hl *HostLimiters) Wait(ctx context.Context, host string) error {
	return hl.limiter(host).Wait(ctx)
}

func (hl *HostLimiters) limiter(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	l, ok := hl.limiters[host]
	if !ok {
		l = rate.NewLimiter(hl.limit, hl.burst)
		hl.limiters[host] = l
	}
	return l
}
