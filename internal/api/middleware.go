package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"signal-enginev1/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"golang.org/x/time/rate"
)

// TOTPHeader carries the one-time code for guarded routes.
const TOTPHeader = "X-TOTP-Code"

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	clients  map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		clients:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

func (l *clientLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.clients[ip]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[ip] = lim
	}
	l.lastSeen[ip] = now

	// Forget idle clients so the map stays bounded.
	if len(l.clients) > 1024 {
		for k, seen := range l.lastSeen {
			if now.Sub(seen) > 10*time.Minute {
				delete(l.clients, k)
				delete(l.lastSeen, k)
			}
		}
	}
	return lim
}

// RateLimitMiddleware allows perSecond requests per client IP with the
// given burst. perSecond <= 0 disables limiting.
func RateLimitMiddleware(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newClientLimiter(perSecond, burst)

	return func(c *gin.Context) {
		if !limiter.get(c.ClientIP(), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// TOTPMiddleware requires a valid TOTP code in the X-TOTP-Code header.
// An empty secret leaves the route open.
func TOTPMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		code := c.GetHeader(TOTPHeader)
		if code == "" || !totp.Validate(code, secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "missing or invalid " + TOTPHeader,
			})
			return
		}
		c.Next()
	}
}

// MetricsMiddleware counts requests by matched route and status code.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.APIRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
