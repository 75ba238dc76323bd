// Package ratelimit provides per-user rate limiting for the API and the
// generation proxy.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class selects which budget a request draws from.
type Class int

const (
	// ClassAPI covers note and session traffic.
	ClassAPI Class = iota
	// ClassGenerate covers calls that reach the text-generation provider.
	ClassGenerate
)

func (c Class) String() string {
	if c == ClassGenerate {
		return "generate"
	}
	return "api"
}

// Config defines the rate limiting configuration.
type Config struct {
	APIRPS          float64       // Requests per second for note/session traffic
	APIBurst        int           // Burst size for note/session traffic
	GenerateRPS     float64       // Generation requests per second
	GenerateBurst   int           // Burst size for generation requests
	CleanupInterval time.Duration // How often to drop idle limiters
}

// DefaultConfig provides defaults for a single interactive user.
var DefaultConfig = Config{
	APIRPS:          20,
	APIBurst:        40,
	GenerateRPS:     0.2, // one generation every five seconds
	GenerateBurst:   3,
	CleanupInterval: time.Hour,
}

type limiterKey struct {
	userID string
	class  Class
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter manages per-user, per-class limiters.
type RateLimiter struct {
	limiters map[limiterKey]*limiterEntry
	mu       sync.Mutex
	config   Config
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRateLimiter creates a limiter set and starts its cleanup goroutine.
func NewRateLimiter(config Config) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	rl := &RateLimiter{
		limiters: make(map[limiterKey]*limiterEntry),
		config:   config,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanupLoop()

	return rl
}

// Allow reports whether one more request from userID in class fits the budget.
func (rl *RateLimiter) Allow(userID string, class Class) bool {
	return rl.GetLimiter(userID, class).Allow()
}

// GetLimiter returns the limiter for userID and class, creating one if needed.
func (rl *RateLimiter) GetLimiter(userID string, class Class) *rate.Limiter {
	key := limiterKey{userID: userID, class: class}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[key]; ok {
		entry.lastUsed = rl.now()
		return entry.limiter
	}

	rps, burst := rl.config.APIRPS, rl.config.APIBurst
	if class == ClassGenerate {
		rps, burst = rl.config.GenerateRPS, rl.config.GenerateBurst
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastUsed: rl.now()}
	return limiter
}

// Cleanup removes limiters idle for longer than the cleanup interval.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.CleanupInterval)
	for key, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to finish.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	rl.wg.Wait()
}

// Len returns the number of live limiters.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
