/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package runner

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds generation calls with a sliding window
type RateLimiter struct {
	maxRequests int
	period      time.Duration
	requests    []time.Time
	mu          sync.Mutex
}

// NewRateLimiter creates a limiter allowing maxRequests per periodSeconds.
// A non-positive maxRequests disables limiting.
func NewRateLimiter(maxRequests, periodSeconds int) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		period:      time.Duration(periodSeconds) * time.Second,
		requests:    make([]time.Time, 0, max(maxRequests, 0)),
	}
}

// prune drops requests older than the window. Caller holds mu.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.period)
	valid := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.requests = valid
}

// Wait blocks until a request is allowed or ctx is done.
// Returns the time spent waiting.
func (r *RateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	if r == nil || r.maxRequests <= 0 {
		return 0, nil
	}

	var waited time.Duration
	for {
		r.mu.Lock()
		now := time.Now()
		r.prune(now)
		if len(r.requests) < r.maxRequests {
			r.requests = append(r.requests, now)
			r.mu.Unlock()
			return waited, nil
		}
		wait := r.requests[0].Add(r.period).Sub(now)
		r.mu.Unlock()

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		case <-timer.C:
			waited += wait
		}
	}
}

// Available returns the number of requests available before hitting the limit
func (r *RateLimiter) Available() int {
	if r == nil || r.maxRequests <= 0 {
		return -1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(time.Now())
	return r.maxRequests - len(r.requests)
}
