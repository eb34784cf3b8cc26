package api

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterPool manages per-model rate limiters
type RateLimiterPool struct {
	limiters map[string]*rate.Limiter
	rates    map[string]int
	mu       sync.Mutex
}

// NewRateLimiterPool creates a new rate limiter pool
func NewRateLimiterPool() *RateLimiterPool {
	return &RateLimiterPool{
		limiters: make(map[string]*rate.Limiter),
		rates:    make(map[string]int),
	}
}

// GetOrCreate returns an existing rate limiter or creates a new one. If a
// limiter exists with a different rate the existing one wins; limits are
// fixed for the lifetime of the process.
func (p *RateLimiterPool) GetOrCreate(modelID string, requestsPerMinute int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := p.limiters[modelID]; exists {
		if existing, ok := p.rates[modelID]; ok && existing != requestsPerMinute {
			slog.Warn("Rate limiter already exists with different rate, using existing rate",
				"model_id", modelID,
				"existing_rpm", existing,
				"requested_rpm", requestsPerMinute)
		}
		return limiter
	}

	rps := float64(requestsPerMinute) / 60.0
	burst := max(5, requestsPerMinute/5)
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	p.limiters[modelID] = limiter
	p.rates[modelID] = requestsPerMinute

	slog.Debug("Created rate limiter",
		"model_id", modelID,
		"rpm", requestsPerMinute,
		"burst", burst)

	return limiter
}

// Wait blocks until the rate limiter allows the next request
func (p *RateLimiterPool) Wait(ctx context.Context, modelID string, requestsPerMinute int) error {
	limiter := p.GetOrCreate(modelID, requestsPerMinute)
	return limiter.Wait(ctx)
}
