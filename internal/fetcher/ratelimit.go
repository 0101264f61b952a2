package fetcher

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter throttles outbound requests per host. It combines a proactive
// token bucket with a reactive cooldown taken from Retry-After headers.
type HostLimiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	hosts map[string]*hostState
	now   func() time.Time
}

type hostState struct {
	bucket   *rate.Limiter
	cooldown time.Time
}

// NewHostLimiter allows perSecond requests per host with the given burst.
// perSecond <= 0 disables the token bucket; Retry-After cooldowns still apply.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limit: limit,
		burst: burst,
		hosts: make(map[string]*hostState),
		now:   time.Now,
	}
}

func (l *HostLimiter) state(host string) *hostState {
	host = strings.ToLower(host)
	st, ok := l.hosts[host]
	if !ok {
		st = &hostState{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.hosts[host] = st
	}
	return st
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	st := l.state(host)
	wait := st.cooldown.Sub(l.now())
	bucket := st.bucket
	l.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return bucket.Wait(ctx)
}

// Observe records a Retry-After hint from a throttling response (429 or 503).
func (l *HostLimiter) Observe(host string, resp *http.Response) {
	if l == nil || resp == nil {
		return
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return
	}
	retryAfter := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retryAfter == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var until time.Time
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		if seconds <= 0 {
			return
		}
		until = now.Add(time.Duration(seconds) * time.Second)
	} else if at, err := http.ParseTime(retryAfter); err == nil {
		until = at
	} else {
		return
	}

	st := l.state(host)
	if until.After(st.cooldown) {
		st.cooldown = until
	}
}

// Cooldown returns the time before which requests to host are held back.
func (l *HostLimiter) Cooldown(host string) time.Time {
	if l == nil {
		return time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state(host).cooldown
}
