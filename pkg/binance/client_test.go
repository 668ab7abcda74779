package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-key"
	testSecret = "test-secret"
)

func fixedNow() time.Time { return time.UnixMilli(1_700_000_000_000) }

// verifySignature checks the HMAC the way the exchange does.
func verifySignature(t *testing.T, r *http.Request) {
	t.Helper()
	raw := r.URL.RawQuery
	i := strings.LastIndex(raw, "&signature=")
	require.Greater(t, i, 0, "missing signature")
	payload, sig := raw[:i], raw[i+len("&signature="):]

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(payload))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
	assert.Equal(t, testKey, r.Header.Get("X-MBX-APIKEY"))
	assert.Equal(t, "1700000000000", r.URL.Query().Get("timestamp"))
	assert.Equal(t, "5000", r.URL.Query().Get("recvWindow"))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: testKey, SecretKey: testSecret, RootURL: srv.URL, Now: fixedNow})
}

func TestKlines_ParsesArrays(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"100.5","101.0","99.5","100.8","12.3",1700003599999,"1240.1",42,"6.1","615.0","0"],
			[1700003600000,"100.8","102.0","100.1","101.9","8.0",1700007199999,"812.4",30,"4.0","406.0","0"]
		]`))
	})

	ks, err := c.Klines(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	require.Len(t, ks, 2)
	assert.Equal(t, int64(1700000000000), ks[0].OpenTime)
	assert.True(t, ks[0].Open.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, ks[1].Close.Equal(decimal.RequireFromString("101.9")))
	assert.Equal(t, int64(30), ks[1].Trades)
}

func TestKlines_RejectsShortRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1700000000000,"1","2"]]`))
	})
	_, err := c.Klines(context.Background(), "BTCUSDT", "1h", 1)
	assert.Error(t, err)
}

func TestTicker24h(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("signature"))
		w.Write([]byte(`{"symbol":"ETHUSDT","lastPrice":"2010.55000000","priceChangePercent":"-1.25"}`))
	})
	tk, err := c.Ticker24h(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "2010.55", tk.LastPrice.String())
	assert.Equal(t, "-1.25", tk.PriceChangePercent.String())
}

func TestDepth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lastUpdateId":7,"bids":[["100.1","2.0"]],"asks":[["100.2","1.5"]]}`))
	})
	d, err := c.Depth(context.Background(), "BTCUSDT", 5)
	require.NoError(t, err)
	assert.Equal(t, "100.1", d.Bids[0][0].String())
	assert.Equal(t, "1.5", d.Asks[0][1].String())
}

func TestAccount_Signed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		w.Write([]byte(`{"canTrade":true,"balances":[{"asset":"USDT","free":"1000.5","locked":"0"}]}`))
	})
	a, err := c.Account(context.Background())
	require.NoError(t, err)
	assert.True(t, a.CanTrade)
	require.Len(t, a.Balances, 1)
	assert.Equal(t, "1000.5", a.Balances[0].Free.String())
}

func TestSigned_RequiresCredentials(t *testing.T) {
	c := New(Config{RootURL: "http://127.0.0.1:1"})
	_, err := c.Account(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestPlaceOrder_FormatsEightDecimals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		verifySignature(t, r)
		q := r.URL.Query()
		assert.Equal(t, "0.00100000", q.Get("quantity"))
		assert.Equal(t, "25000.50000000", q.Get("price"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		assert.Equal(t, "cid-1", q.Get("newClientOrderId"))
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":99,"clientOrderId":"cid-1","transactTime":1700000000001,
			"price":"25000.5","origQty":"0.001","executedQty":"0","cummulativeQuoteQty":"0","status":"NEW","type":"LIMIT","side":"BUY","fills":[]}`))
	})

	o, err := c.PlaceOrder(context.Background(), NewOrder{
		Symbol: "BTCUSDT", Side: "BUY", Type: "LIMIT",
		Quantity:         decimal.RequireFromString("0.001"),
		Price:            decimal.RequireFromString("25000.5"),
		NewClientOrderID: "cid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), o.OrderID)
	assert.Equal(t, "NEW", o.Status)
}

func TestPlaceOrder_RejectsZeroQuantity(t *testing.T) {
	c := New(Config{APIKey: testKey, SecretKey: testSecret})
	_, err := c.PlaceOrder(context.Background(), NewOrder{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET"})
	assert.Error(t, err)
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})
	_, err := c.Ticker24h(context.Background(), "NOPE")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, -1121, apiErr.Code)
	assert.Equal(t, "Invalid symbol.", apiErr.Msg)
}

func TestAPIError_NonJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	})
	err := c.Ping(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "gateway timeout", apiErr.Msg)
}
