package fetch

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// UserAgentRotator hands back a User-Agent string per request. When
// rotation is disabled (or the pool is empty) it always returns the
// single configured default, matching a fetcher that never rotates.
type UserAgentRotator struct {
	mu       sync.Mutex
	pool     []string
	next     int
	rotate   bool
	fallback string
}

// NewUserAgentRotator builds a rotator over pool, falling back to
// defaultUA when rotation is off or the pool is empty.
func NewUserAgentRotator(defaultUA string, pool []string, rotate bool) *UserAgentRotator {
	return &UserAgentRotator{pool: pool, rotate: rotate, fallback: defaultUA}
}

// Next returns the next User-Agent string to send, round-robining
// through the pool when rotation is enabled.
func (r *UserAgentRotator) Next() string {
	if !r.rotate || len(r.pool) == 0 {
		return r.fallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ua := r.pool[r.next%len(r.pool)]
	r.next++
	return ua
}

// Camouflage emits an occasional "random legitimate page" GET to the
// same host and discards its body, per spec.md §4.2's anti-fingerprinting
// requirement: after N successful requests, with probability p, blend in
// a request that looks like ordinary browsing rather than a crawl.
type Camouflage struct {
	mu       sync.Mutex
	interval int
	prob     float64
	count    int
}

// NewCamouflage builds a Camouflage emitter. interval <= 0 disables it
// entirely (MaybeEmit becomes a no-op), matching random_page_interval: 0.
func NewCamouflage(interval int, prob float64) *Camouflage {
	return &Camouflage{interval: interval, prob: prob}
}

// MaybeEmit is called after every successful request. Once every
// interval calls, with probability prob, it fires a single GET against
// the host's root page and discards the response. Errors are swallowed:
// camouflage traffic is best-effort and must never fail the real fetch.
func (c *Camouflage) MaybeEmit(ctx context.Context, client *http.Client, host, userAgent string) {
	if c.interval <= 0 {
		return
	}

	c.mu.Lock()
	c.count++
	fire := c.count >= c.interval
	if fire {
		c.count = 0
	}
	c.mu.Unlock()

	if !fire || rand.Float64() >= c.prob {
		return
	}

	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, _, _ = Get(reqCtx, client, "https://"+host+"/", userAgent, 65536)
	}()
}
