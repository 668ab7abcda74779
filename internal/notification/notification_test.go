package notification

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

	"signal-enginev1/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.alerts = append(r.alerts, a)
	return nil
}

func buy(symbol string, target, stop float64) model.TradingSignal {
	return model.TradingSignal{
		Symbol: symbol, Action: model.ActionBuy, Confidence: 75, Timeframe: "1H",
		Price: 100, TargetPrice: target, StopLoss: stop, Reasoning: "RSI oversold",
	}
}

func TestSignalAlert(t *testing.T) {
	a := SignalAlert(buy("BTCUSDT", 105, 98))
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, "BUY BTCUSDT (1H)", a.Title)
	assert.Equal(t, "BTCUSDT", a.Symbol)
	assert.Contains(t, a.Message, "Confidence: 75%")
	assert.Contains(t, a.Message, "Target: 105.0000")
	assert.Contains(t, a.Message, "RSI oversold")

	hot := buy("BTCUSDT", 105, 98)
	hot.Confidence = 85
	assert.Equal(t, AlertWarning, SignalAlert(hot).Level)
}

func TestDispatcher_SuppressesRepeats(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec)
	ctx := context.Background()

	n, err := d.Notify(ctx, []model.TradingSignal{buy("AAA", 105, 98), buy("BBB", 50, 48)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Identical and sub-tolerance changes are suppressed.
	n, _ = d.Notify(ctx, []model.TradingSignal{buy("AAA", 105, 98), buy("BBB", 50.000001, 48)})
	assert.Equal(t, 0, n)

	// Target moved beyond tolerance.
	n, _ = d.Notify(ctx, []model.TradingSignal{buy("AAA", 106, 98)})
	assert.Equal(t, 1, n)

	// Action flip.
	flip := buy("AAA", 95, 102)
	flip.Action = model.ActionSell
	n, _ = d.Notify(ctx, []model.TradingSignal{flip})
	assert.Equal(t, 1, n)

	assert.Len(t, rec.alerts, 4)
}

func TestDispatcher_HoldResetsAndIsNeverSent(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec)
	ctx := context.Background()

	d.Notify(ctx, []model.TradingSignal{buy("AAA", 105, 98)})
	n, _ := d.Notify(ctx, []model.TradingSignal{{Symbol: "AAA", Action: model.ActionHold, Confidence: 55}})
	assert.Equal(t, 0, n)

	n, _ = d.Notify(ctx, []model.TradingSignal{buy("AAA", 105, 98)})
	assert.Equal(t, 1, n)
}

func TestDispatcher_MinConfidence(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec)
	d.MinConfidence = 75

	n, _ := d.Notify(context.Background(), []model.TradingSignal{buy("AAA", 105, 98)})
	assert.Equal(t, 0, n)
}

func TestDispatcher_FailedSendRetriesNextTime(t *testing.T) {
	rec := &recorder{err: errors.New("down")}
	d := NewDispatcher(rec)
	ctx := context.Background()

	n, err := d.Notify(ctx, []model.TradingSignal{buy("AAA", 105, 98)})
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	rec.err = nil
	n, err = d.Notify(ctx, []model.TradingSignal{buy("AAA", 105, 98)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}
	err := Multi{ok, bad}.Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.alerts, 1)
}

func TestWebhookNotifier(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(srv.URL)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, w.Send(context.Background(), SignalAlert(buy("ETHUSDT", 105, 98))))

	assert.Equal(t, "INFO", got.Level)
	assert.Equal(t, "ETHUSDT", got.Symbol)
	assert.Equal(t, "2024-01-02T03:04:05Z", got.TS)
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "502")
}

func TestTelegramNotifier(t *testing.T) {
	var body map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.baseURL = srv.URL
	require.NoError(t, tg.Send(context.Background(), Alert{Level: AlertCritical, Title: "BUY X-1", Message: "a.b"}))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "MarkdownV2", body["parse_mode"])
	assert.True(t, strings.HasPrefix(body["text"].(string), "🚨 *BUY X\\-1*"))
	assert.Contains(t, body["text"], "a\\.b")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `1\.5 \(up\)`, escapeMarkdown("1.5 (up)"))
	assert.Equal(t, `a\_b\*c`, escapeMarkdown("a_b*c"))
}
