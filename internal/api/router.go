// Package api serves the REST surface: health, latest signals,
// recommendations, manual scans, the order journal, account balances and
// the live signal WebSocket.
package api

import (
	"context"
	"net/http"

	"signal-enginev1/internal/execution"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"

	"github.com/gin-gonic/gin"
)

// Scanner runs an on-demand evaluation.
type Scanner interface {
	EvaluateMany(ctx context.Context, symbols []string) ([]model.TradingSignal, error)
}

// OrderLog lists journaled orders.
type OrderLog interface {
	Orders(ctx context.Context, symbol string, limit int) ([]execution.OrderRecord, error)
}

// BalanceSource reports exchange account balances.
type BalanceSource interface {
	Balances(ctx context.Context) ([]model.Balance, error)
}

// Deps are the collaborators behind the routes. Store, Scanner and
// Symbols are required; nil optional collaborators disable their routes.
type Deps struct {
	Store   model.SignalReader
	Scanner Scanner
	Symbols func() []string

	Health   *metrics.HealthStatus
	Orders   OrderLog
	Balances BalanceSource
	Metrics  *metrics.Metrics

	// Stream serves the live signal WebSocket on /api/v1/ws.
	Stream http.Handler

	// OnScan receives the kept signals of a manual scan.
	OnScan func(ctx context.Context, signals []model.TradingSignal)
}

// Options configure middleware.
type Options struct {
	RateLimit  float64
	Burst      int
	TOTPSecret string
}

// NewRouter builds the gin engine with every /api/v1 route.
func NewRouter(d Deps, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), MetricsMiddleware(d.Metrics), RateLimitMiddleware(opts.RateLimit, opts.Burst))

	h := &handlers{d: d}
	v1 := r.Group("/api/v1")
	v1.GET("/health", h.health)
	v1.GET("/signals", h.signals)
	v1.GET("/signals/:symbol", h.signal)
	v1.GET("/recommendations", h.recommendations)

	guarded := v1.Group("", TOTPMiddleware(opts.TOTPSecret))
	guarded.POST("/scan", h.scan)
	if d.Balances != nil {
		guarded.GET("/account/balances", h.balances)
	}
	if d.Orders != nil {
		v1.GET("/orders", h.orders)
	}
	if d.Stream != nil {
		v1.GET("/ws", gin.WrapH(d.Stream))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "not found"})
	})
	return r
}
