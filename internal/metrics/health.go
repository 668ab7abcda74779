package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus tracks liveness of the engine and its dependencies.
// Only dependencies marked as enabled count towards the overall status.
type HealthStatus struct {
	mu sync.RWMutex

	feedEnabled   bool
	redisEnabled  bool
	sqliteEnabled bool

	FeedConnected  bool
	LastCandleTime time.Time
	RedisConnected bool
	SQLiteOK       bool
	LastScanAt     time.Time
	LastScanKept   int
	Symbols        []string

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a health status with every dependency disabled.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// Enable marks which dependencies the deployment runs with.
func (h *HealthStatus) Enable(feed, redis, sqlite bool) {
	h.mu.Lock()
	h.feedEnabled, h.redisEnabled, h.sqliteEnabled = feed, redis, sqlite
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// RecordScan stores the outcome of the latest batch scan.
func (h *HealthStatus) RecordScan(at time.Time, kept int) {
	h.mu.Lock()
	h.LastScanAt = at
	h.LastScanKept = kept
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Report is the JSON body served on /healthz.
type Report struct {
	Status          string   `json:"status"`
	Uptime          string   `json:"uptime"`
	FeedConnected   bool     `json:"feed_connected"`
	LastCandleTime  string   `json:"last_candle_time,omitempty"`
	CandleAge       string   `json:"candle_age,omitempty"`
	RedisConnected  bool     `json:"redis_connected"`
	RedisLatencyMs  float64  `json:"redis_latency_ms"`
	SQLiteOK        bool     `json:"sqlite_ok"`
	SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
	LastScanAt      string   `json:"last_scan_at,omitempty"`
	LastScanKept    int      `json:"last_scan_kept"`
	Symbols         []string `json:"symbols"`
}

// Report builds the current health report and its HTTP status code.
func (h *HealthStatus) Report() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	down := 0
	enabled := 0
	for _, dep := range []struct{ on, ok bool }{
		{h.feedEnabled, h.FeedConnected},
		{h.redisEnabled, h.RedisConnected},
		{h.sqliteEnabled, h.SQLiteOK},
	} {
		if !dep.on {
			continue
		}
		enabled++
		if !dep.ok {
			down++
		}
	}

	status, code := "healthy", http.StatusOK
	switch {
	case down > 0 && down == enabled:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case down > 0:
		status, code = "degraded", http.StatusServiceUnavailable
	}

	r := Report{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastScanKept:    h.LastScanKept,
		Symbols:         h.Symbols,
	}
	if !h.LastCandleTime.IsZero() {
		r.LastCandleTime = h.LastCandleTime.Format(time.RFC3339)
		r.CandleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}
	if !h.LastScanAt.IsZero() {
		r.LastScanAt = h.LastScanAt.Format(time.RFC3339)
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}
