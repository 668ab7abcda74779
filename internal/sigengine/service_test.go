package sigengine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"signal-enginev1/config"
	"signal-enginev1/internal/execution"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/notification"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

// offlineConfig runs every collaborator against a temp dir: SQLite as the
// candle source, no Redis, no websocket feed and no cron.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.MarketData.Source = "sqlite"
	cfg.MarketData.Stream = false
	cfg.Redis.Enabled = false
	cfg.Scanner.Cron = ""
	cfg.SQLite.Path = filepath.Join(dir, "signals.db")
	cfg.SQLite.JournalPath = filepath.Join(dir, "orders.db")
	cfg.Execution.Enabled = true
	return cfg
}

func newOffline(t *testing.T) *Service {
	t.Helper()
	svc, err := New(offlineConfig(t))
	require.NoError(t, err)
	t.Cleanup(svc.closeStores)
	return svc
}

func buySignal() model.TradingSignal {
	return model.TradingSignal{
		Symbol:      "BTCUSDT",
		Action:      model.ActionBuy,
		Confidence:  82,
		Price:       50000,
		TargetPrice: 52000,
		StopLoss:    49000,
		Timeframe:   "1H",
		Reasoning:   "RSI oversold",
		GeneratedAt: 1700000000000,
	}
}

func TestNew_OfflineWiring(t *testing.T) {
	svc := newOffline(t)

	assert.Nil(t, svc.rdb)
	assert.Nil(t, svc.gateway)
	assert.NotNil(t, svc.sqlWriter)
	assert.NotNil(t, svc.executor)
	assert.Same(t, svc.sqlReader, svc.source)

	svc.buildSinks(context.Background())
	assert.Equal(t, []string{"sqlite", "push", "notify", "executor"}, svc.sinkNames())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.MarketData.Source = "csv"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_LiveExecutionNeedsCredentials(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Execution.Live = true
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestPublish_StoresAndExecutes(t *testing.T) {
	svc := newOffline(t)
	ctx := context.Background()
	svc.buildSinks(ctx)

	svc.publish(ctx, []model.TradingSignal{buySignal()})

	got, err := svc.sqlReader.LatestSignal(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ActionBuy, got.Action)
	assert.InDelta(t, 82, got.Confidence, 1e-9)

	orders, err := svc.journal.Orders(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, orders, 2, "market entry plus protective stop")

	// The same signal again is inside the cooldown.
	svc.publish(ctx, []model.TradingSignal{buySignal()})
	orders, err = svc.journal.Orders(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestRouter_ServesPublishedSignal(t *testing.T) {
	svc := newOffline(t)
	ctx := context.Background()
	svc.buildSinks(ctx)
	svc.publish(ctx, []model.TradingSignal{buySignal()})

	r := svc.Router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals/btcusdt", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var sig model.TradingSignal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sig))
	assert.Equal(t, "BTCUSDT", sig.Symbol)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders?symbol=BTCUSDT", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	var paths []string
	for _, ri := range r.Routes() {
		paths = append(paths, ri.Path)
	}
	assert.Contains(t, paths, "/api/v1/ws")

	// No exchange credentials: the balances route is not mounted.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/account/balances", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Service.HTTPAddr = "127.0.0.1:0"
	cfg.Service.MetricsAddr = "127.0.0.1:0"
	svc, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}

type alertRecorder struct{ alerts chan notification.Alert }

func (r alertRecorder) Send(_ context.Context, a notification.Alert) error {
	r.alerts <- a
	return nil
}

func TestAlertOrders_OnlyFailures(t *testing.T) {
	svc := newOffline(t)
	rec := alertRecorder{alerts: make(chan notification.Alert, 2)}
	svc.notifier = rec

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan execution.OrderResult, 2)
	go svc.alertOrders(ctx, results)

	ok := execution.EntryRequest(buySignal(), 0.001)
	results <- execution.OrderResult{Request: ok, Response: &model.OrderResponse{Status: model.StatusFilled}}
	results <- execution.OrderResult{Request: ok, Err: errors.New("insufficient balance")}

	a := <-rec.alerts
	assert.Equal(t, notification.AlertCritical, a.Level)
	assert.Equal(t, "BTCUSDT", a.Symbol)
	assert.Contains(t, a.Message, "insufficient balance")
	assert.Empty(t, rec.alerts)
}
