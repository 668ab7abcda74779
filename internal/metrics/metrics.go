// Package metrics exposes Prometheus instrumentation and the /healthz probe
// for the signal engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signal-enginev1/internal/model"
)

// Metrics holds all Prometheus metrics for the signal engine.
// A nil *Metrics is valid; every helper becomes a no-op.
type Metrics struct {
	// Feed
	CandlesIngested prometheus.Counter
	CandlesRejected prometheus.Counter
	WSReconnects    prometheus.Counter
	FanoutDrops     *prometheus.CounterVec // labels: subscriber

	// Evaluation
	EvaluationDur    prometheus.Histogram
	EvaluationErrors *prometheus.CounterVec // labels: reason
	SignalsTotal     *prometheus.CounterVec // labels: action
	SignalsDropped   prometheus.Counter
	SignalConfidence *prometheus.GaugeVec // labels: symbol

	// Scanner
	ScanDur     prometheus.Histogram
	ScanSymbols prometheus.Gauge
	ScanKept    prometheus.Gauge
	ScansTotal  prometheus.Counter
	ScanSkipped prometheus.Counter

	// Exchange REST
	ExchangeRequestDur *prometheus.HistogramVec // labels: endpoint
	ExchangeErrors     *prometheus.CounterVec   // labels: endpoint

	// Storage
	RedisWriteDur            prometheus.Histogram
	SQLiteCommitDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	CacheHits                prometheus.Counter
	CacheMisses              prometheus.Counter

	// Orders
	OrdersTotal *prometheus.CounterVec // labels: side, status

	// API
	APIRequests *prometheus.CounterVec // labels: route, code
	PushDrops   prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	latency := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}

	m := &Metrics{
		CandlesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_candles_ingested_total",
			Help: "Closed candles accepted from the feed",
		}),
		CandlesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_candles_rejected_total",
			Help: "Candles rejected by validation",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_ws_reconnects_total",
			Help: "Kline stream reconnection attempts",
		}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_fanout_drops_total",
			Help: "Candles dropped by the FanOut bus per subscriber",
		}, []string{"subscriber"}),

		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_evaluation_duration_seconds",
			Help:    "Aggregator latency per evaluation",
			Buckets: latency,
		}),
		EvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_evaluation_errors_total",
			Help: "Evaluations that failed, by reason",
		}, []string{"reason"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_signals_total",
			Help: "Signals produced, by action",
		}, []string{"action"}),
		SignalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_signals_dropped_total",
			Help: "Signals dropped because a consumer channel was full",
		}),
		SignalConfidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sigengine_signal_confidence",
			Help: "Confidence of the latest signal per symbol",
		}, []string{"symbol"}),

		ScanDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_scan_duration_seconds",
			Help:    "Wall time of one batch scan",
			Buckets: prometheus.DefBuckets,
		}),
		ScanSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_scan_symbols",
			Help: "Symbols requested in the last scan",
		}),
		ScanKept: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_scan_kept",
			Help: "Signals that passed the filter in the last scan",
		}),
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_scans_total",
			Help: "Batch scans completed",
		}),
		ScanSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_scan_skipped_total",
			Help: "Symbols skipped during scans (fetch error or below gate)",
		}),

		ExchangeRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sigengine_exchange_request_duration_seconds",
			Help:    "Exchange REST latency by endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ExchangeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_exchange_errors_total",
			Help: "Exchange REST failures by endpoint",
		}, []string{"endpoint"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_redis_write_duration_seconds",
			Help:    "Redis signal write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_redis_buffered_writes_total",
			Help: "Signal writes buffered locally while the breaker was open",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_candle_cache_hits_total",
			Help: "Candle history served from the Redis cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_candle_cache_misses_total",
			Help: "Candle history fetched from the upstream source",
		}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_orders_total",
			Help: "Orders placed from signals, by side and status",
		}, []string{"side", "status"}),

		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_api_requests_total",
			Help: "REST API requests by route and status code",
		}, []string{"route", "code"}),
		PushDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_push_drops_total",
			Help: "Signal envelopes dropped for slow WebSocket clients",
		}),
	}

	reg.MustRegister(
		m.CandlesIngested,
		m.CandlesRejected,
		m.WSReconnects,
		m.FanoutDrops,
		m.EvaluationDur,
		m.EvaluationErrors,
		m.SignalsTotal,
		m.SignalsDropped,
		m.SignalConfidence,
		m.ScanDur,
		m.ScanSymbols,
		m.ScanKept,
		m.ScansTotal,
		m.ScanSkipped,
		m.ExchangeRequestDur,
		m.ExchangeErrors,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.CacheHits,
		m.CacheMisses,
		m.OrdersTotal,
		m.APIRequests,
		m.PushDrops,
	)

	return m
}

// ObserveSignal records a produced signal.
func (m *Metrics) ObserveSignal(sig model.TradingSignal) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()
	m.SignalConfidence.WithLabelValues(sig.Symbol).Set(sig.Confidence)
}

// ObserveEvaluation records the latency of one evaluation and, when err is
// non-nil, counts it under reason.
func (m *Metrics) ObserveEvaluation(d time.Duration, reason string, err error) {
	if m == nil {
		return
	}
	m.EvaluationDur.Observe(d.Seconds())
	if err != nil {
		m.EvaluationErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveScan records a completed batch scan.
func (m *Metrics) ObserveScan(d time.Duration, requested, skipped, kept int) {
	if m == nil {
		return
	}
	m.ScanDur.Observe(d.Seconds())
	m.ScanSymbols.Set(float64(requested))
	m.ScanKept.Set(float64(kept))
	m.ScanSkipped.Add(float64(skipped))
	m.ScansTotal.Inc()
}

// ObserveExchange records one REST call to the exchange.
func (m *Metrics) ObserveExchange(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ExchangeRequestDur.WithLabelValues(endpoint).Observe(d.Seconds())
	if err != nil {
		m.ExchangeErrors.WithLabelValues(endpoint).Inc()
	}
}

// ObserveCache records a candle cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// ObserveOrder records a placed order.
func (m *Metrics) ObserveOrder(side, status string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(side, status).Inc()
}
