package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"signal-enginev1/internal/execution"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore map[string]model.TradingSignal

func (m memStore) LatestSignal(_ context.Context, symbol string) (*model.TradingSignal, error) {
	if symbol == "BROKEN" {
		return nil, errors.New("store down")
	}
	sig, ok := m[symbol]
	if !ok {
		return nil, nil
	}
	return &sig, nil
}

type fakeScanner struct {
	mu    sync.Mutex
	asked []string
	err   error
}

func (f *fakeScanner) EvaluateMany(_ context.Context, symbols []string) ([]model.TradingSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append([]string(nil), symbols...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.TradingSignal, len(symbols))
	for i, s := range symbols {
		out[i] = model.TradingSignal{Symbol: s, Action: model.ActionBuy, Confidence: 70}
	}
	return out, nil
}

type fakeOrders struct {
	symbol string
	limit  int
}

func (f *fakeOrders) Orders(_ context.Context, symbol string, limit int) ([]execution.OrderRecord, error) {
	f.symbol, f.limit = symbol, limit
	return []execution.OrderRecord{{ID: 1, Symbol: "BTCUSDT", Status: "FILLED"}}, nil
}

func fixtures() memStore {
	return memStore{
		"BTCUSDT": {Symbol: "BTCUSDT", Action: model.ActionBuy, Confidence: 72},
		"ETHUSDT": {Symbol: "ETHUSDT", Action: model.ActionSell, Confidence: 88},
		"BNBUSDT": {Symbol: "BNBUSDT", Action: model.ActionHold, Confidence: 55},
		"SOLUSDT": {Symbol: "SOLUSDT", Action: model.ActionBuy, Confidence: 64},
	}
}

func newTestRouter(t *testing.T, mutate func(*Deps, *Options)) (*gin.Engine, *fakeScanner) {
	t.Helper()
	sc := &fakeScanner{}
	d := Deps{
		Store:   fixtures(),
		Scanner: sc,
		Symbols: func() []string { return []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"} },
	}
	opts := Options{}
	if mutate != nil {
		mutate(&d, &opts)
	}
	return NewRouter(d, opts), sc
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) signalList {
	t.Helper()
	var out signalList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth_NoStatus(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(r, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestHealth_Report(t *testing.T) {
	hs := metrics.NewHealthStatus()
	hs.Enable(false, true, true)
	hs.SetSQLiteOK(true)
	r, _ := newTestRouter(t, func(d *Deps, _ *Options) { d.Health = hs })

	w := do(r, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestSignals_ListAndFilter(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	all := decodeList(t, do(r, http.MethodGet, "/api/v1/signals", "", nil))
	assert.Equal(t, 4, all.Count)
	assert.Equal(t, "BTCUSDT", all.Signals[0].Symbol)

	buys := decodeList(t, do(r, http.MethodGet, "/api/v1/signals?action=buy&min_confidence=65", "", nil))
	require.Equal(t, 1, buys.Count)
	assert.Equal(t, "BTCUSDT", buys.Signals[0].Symbol)

	w := do(r, http.MethodGet, "/api/v1/signals?action=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, "/api/v1/signals?min_confidence=high", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignals_StoreErrorsAreSkipped(t *testing.T) {
	r, _ := newTestRouter(t, func(d *Deps, _ *Options) {
		d.Symbols = func() []string { return []string{"BROKEN", "ETHUSDT"} }
	})
	list := decodeList(t, do(r, http.MethodGet, "/api/v1/signals", "", nil))
	assert.Equal(t, 1, list.Count)
}

func TestSignal_BySymbol(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := do(r, http.MethodGet, "/api/v1/signals/ethusdt", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sig model.TradingSignal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sig))
	assert.Equal(t, model.ActionSell, sig.Action)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/signals/XRPUSDT", "", nil).Code)
	assert.Equal(t, http.StatusBadGateway, do(r, http.MethodGet, "/api/v1/signals/BROKEN", "", nil).Code)
}

func TestRecommendations(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	recs := decodeList(t, do(r, http.MethodGet, "/api/v1/recommendations", "", nil))

	// HOLD and <=65 are dropped; highest confidence first.
	require.Equal(t, 2, recs.Count)
	assert.Equal(t, "ETHUSDT", recs.Signals[0].Symbol)
	assert.Equal(t, "BTCUSDT", recs.Signals[1].Symbol)
}

func TestScan(t *testing.T) {
	var hooked []model.TradingSignal
	r, sc := newTestRouter(t, func(d *Deps, _ *Options) {
		d.OnScan = func(_ context.Context, s []model.TradingSignal) { hooked = s }
	})

	w := do(r, http.MethodPost, "/api/v1/scan", `{"symbols":[" adausdt ",""]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ADAUSDT"}, sc.asked)
	assert.Len(t, hooked, 1)

	w = do(r, http.MethodPost, "/api/v1/scan", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sc.asked, 5)
	assert.Equal(t, 5, decodeList(t, w).Count)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/scan", `{"symbols":`, nil).Code)
}

func TestScan_Errors(t *testing.T) {
	r, sc := newTestRouter(t, nil)

	sc.err = context.DeadlineExceeded
	assert.Equal(t, http.StatusGatewayTimeout, do(r, http.MethodPost, "/api/v1/scan", "", nil).Code)

	sc.err = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/api/v1/scan", "", nil).Code)
}

func TestScan_TOTPGuard(t *testing.T) {
	r, _ := newTestRouter(t, func(_ *Deps, o *Options) { o.TOTPSecret = testSecret })

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/v1/scan", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(r, http.MethodPost, "/api/v1/scan", "", map[string]string{TOTPHeader: "000000x"}).Code)

	code, err := totp.GenerateCode(testSecret, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK,
		do(r, http.MethodPost, "/api/v1/scan", "", map[string]string{TOTPHeader: code}).Code)

	// Reads stay open.
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/signals", "", nil).Code)
}

func TestRateLimit(t *testing.T) {
	r, _ := newTestRouter(t, func(_ *Deps, o *Options) { o.RateLimit = 0.001; o.Burst = 2 })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/health", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/v1/health", "", nil).Code)

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOrdersAndBalancesRoutes(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/orders", "", nil).Code)

	orders := &fakeOrders{}
	r, _ = newTestRouter(t, func(d *Deps, _ *Options) { d.Orders = orders })

	w := do(r, http.MethodGet, "/api/v1/orders?symbol=btcusdt&limit=9999", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BTCUSDT", orders.symbol)
	assert.Equal(t, maxOrderLimit, orders.limit)
	assert.Contains(t, w.Body.String(), `"count":1`)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/orders?limit=-1", "", nil).Code)
}

type fakeBalances struct{}

func (fakeBalances) Balances(context.Context) ([]model.Balance, error) {
	return []model.Balance{{Asset: "USDT", Free: 100}}, nil
}

func TestBalances(t *testing.T) {
	r, _ := newTestRouter(t, func(d *Deps, _ *Options) { d.Balances = fakeBalances{} })
	w := do(r, http.MethodGet, "/api/v1/account/balances", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"asset":"USDT"`)
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	r, _ := newTestRouter(t, func(d *Deps, _ *Options) { d.Metrics = m })

	do(r, http.MethodGet, "/api/v1/signals/BTCUSDT", "", nil)
	do(r, http.MethodGet, "/nope", "", nil)

	w := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `sigengine_api_requests_total{code="200",route="/api/v1/signals/:symbol"} 1`)
	assert.Contains(t, body, `sigengine_api_requests_total{code="404",route="unmatched"} 1`)
}
