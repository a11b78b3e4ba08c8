package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultMaxClients = 1000
	cleanupInterval   = 10 * time.Minute
)

// RateLimiterConfig configures rate limiting behavior
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	// MaxClients bounds the number of tracked client IPs; the table is reset past it
	MaxClients int
}

// clientLimiters stores rate limiters per client IP
type clientLimiters struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	config   RateLimiterConfig
}

func newClientLimiters(config RateLimiterConfig) *clientLimiters {
	if config.MaxClients <= 0 {
		config.MaxClients = defaultMaxClients
	}
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

// get returns or creates the limiter for ip
func (cl *clientLimiters) get(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	limiter, exists := cl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(cl.config.RequestsPerSecond), cl.config.Burst)
		cl.limiters[ip] = limiter
	}
	return limiter
}

// prune drops every limiter once too many clients have accumulated
func (cl *clientLimiters) prune() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if len(cl.limiters) > cl.config.MaxClients {
		cl.limiters = make(map[string]*rate.Limiter)
	}
}

func (cl *clientLimiters) size() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.limiters)
}

func (cl *clientLimiters) cleanup(stop <-chan struct{}) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cl.prune()
		}
	}
}

// RateLimiter creates a per-client-IP rate limiting middleware. Pruning runs until
// stop is closed; a nil stop disables it.
func RateLimiter(config RateLimiterConfig, stop <-chan struct{}) gin.HandlerFunc {
	limiters := newClientLimiters(config)
	if stop != nil {
		go limiters.cleanup(stop)
	}

	return func(c *gin.Context) {
		limiter := limiters.get(c.ClientIP())

		if !limiter.Allow() {
			reservation := limiter.Reserve()
			retryAfter := reservation.DelayFrom(time.Now()).Seconds()
			reservation.Cancel()

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded. Please try again later.",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
