package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Wait reserves the next slot for host and sleeps until it arrives.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	l.mu.Lock()
	now := time.Now()
	next := now
	if last, exists := l.hosts[host]; exists {
		if earliest := last.Add(l.minInterval); earliest.After(now) {
			next = earliest
		}
	}
	l.hosts[host] = next
	l.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lastRequest, exists := l.hosts[host]
	if !exists || time.Since(lastRequest) >= l.minInterval {
		l.hosts[host] = time.Now()
		return true
	}

	return false
}

func (l *Limiter) Reset(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, host)
}

func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]time.Time)
}

// HostKey returns the lower-cased host of rawURL, or rawURL itself when it
// does not parse.
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

// WaitURL is a convenience for limiting by the host of a URL. A nil limiter
// never blocks.
func WaitURL(ctx context.Context, l RateLimiter, rawURL string) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx, HostKey(rawURL))
}

var _ RateLimiter = (*Limiter)(nil)
