package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientWindow tracks requests from one IP within the current window
type clientWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter applies a fixed-window per-IP limit to mutating requests so a
// misbehaving dashboard cannot hammer the shared store with writes
type RateLimiter struct {
	mu           sync.RWMutex
	windows      map[string]*clientWindow
	maxRequests  int
	windowPeriod time.Duration
}

// Global write rate limiter instance
var writeRateLimiter *RateLimiter

// InitWriteRateLimiter initializes the global write rate limiter
func InitWriteRateLimiter() {
	writeRateLimiter = NewRateLimiter(30, time.Minute)
	// Start cleanup goroutine
	go writeRateLimiter.startCleanup()
}

// NewRateLimiter creates a new rate limiter
// maxRequests: mutating requests allowed per IP within the window
// windowPeriod: length of the fixed window
func NewRateLimiter(maxRequests int, windowPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:      make(map[string]*clientWindow),
		maxRequests:  maxRequests,
		windowPeriod: windowPeriod,
	}
}

// startCleanup periodically cleans up old entries
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

// cleanup removes expired entries
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, win := range rl.windows {
		if now.Sub(win.FirstAt) > rl.windowPeriod {
			delete(rl.windows, ip)
		}
	}
}

// Allow records a request for an IP and reports whether it is within budget,
// along with the remaining budget and the wait until the window resets
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	win, exists := rl.windows[ip]

	if !exists || now.Sub(win.FirstAt) > rl.windowPeriod {
		rl.windows[ip] = &clientWindow{Count: 1, FirstAt: now}
		return true, rl.maxRequests - 1, 0
	}

	if win.Count >= rl.maxRequests {
		return false, 0, rl.windowPeriod - now.Sub(win.FirstAt)
	}

	win.Count++
	return true, rl.maxRequests - win.Count, 0
}

// WriteRateLimitMiddleware limits mutating requests (POST/PUT/DELETE) per IP.
// Reads pass through untouched.
func WriteRateLimitMiddleware() gin.HandlerFunc {
	// Ensure rate limiter is initialized
	if writeRateLimiter == nil {
		InitWriteRateLimiter()
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
		default:
			c.Next()
			return
		}

		ip := c.ClientIP()
		allowed, remaining, retryAfter := writeRateLimiter.Allow(ip)

		// Set headers for client awareness
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests, slow down",
				"retry_after": int(retryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
