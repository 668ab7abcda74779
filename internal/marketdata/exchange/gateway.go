// Package exchange adapts the Binance REST client to the engine's ports:
// model.CandleSource, model.PriceSource and model.OrderPlacer.
package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/pkg/binance"
)

// Gateway serves candles, prices and orders from Binance.
type Gateway struct {
	client *binance.Client
	prom   *metrics.Metrics
}

// New creates a Gateway. m may be nil.
func New(client *binance.Client, m *metrics.Metrics) *Gateway {
	return &Gateway{client: client, prom: m}
}

// Client exposes the underlying REST client.
func (g *Gateway) Client() *binance.Client { return g.client }

// Candles fetches limit klines and validates them at ingestion.
// The last bar may still be forming; it is returned as-is.
func (g *Gateway) Candles(ctx context.Context, symbol, interval string, limit int) (model.Series, error) {
	start := time.Now()
	klines, err := g.client.Klines(ctx, symbol, interval, limit)
	g.prom.ObserveExchange("klines", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s := make(model.Series, len(klines))
	for i, k := range klines {
		s[i] = CandleFromKline(symbol, k)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}
	return s, nil
}

// CandleFromKline converts an exchange kline. TS is the bar open time.
func CandleFromKline(symbol string, k binance.Kline) model.Candle {
	return model.Candle{
		Symbol: symbol,
		TS:     k.OpenTime,
		Open:   k.Open.InexactFloat64(),
		High:   k.High.InexactFloat64(),
		Low:    k.Low.InexactFloat64(),
		Close:  k.Close.InexactFloat64(),
		Volume: k.Volume.InexactFloat64(),
	}
}

// LastPrice returns the 24h ticker last price.
func (g *Gateway) LastPrice(ctx context.Context, symbol string) (float64, error) {
	start := time.Now()
	t, err := g.client.Ticker24h(ctx, symbol)
	g.prom.ObserveExchange("ticker_24hr", time.Since(start), err)
	if err != nil {
		return 0, err
	}
	p := t.LastPrice.InexactFloat64()
	if p <= 0 {
		return 0, fmt.Errorf("ticker %s: non-positive last price %s", symbol, t.LastPrice)
	}
	return p, nil
}

// Balances returns the non-empty balances of the account.
func (g *Gateway) Balances(ctx context.Context) ([]model.Balance, error) {
	start := time.Now()
	a, err := g.client.Account(ctx)
	g.prom.ObserveExchange("account", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	out := make([]model.Balance, 0, len(a.Balances))
	for _, b := range a.Balances {
		if b.Free.IsZero() && b.Locked.IsZero() {
			continue
		}
		out = append(out, model.Balance{
			Asset:  b.Asset,
			Free:   b.Free.InexactFloat64(),
			Locked: b.Locked.InexactFloat64(),
		})
	}
	return out, nil
}

// PlaceOrder submits req as a signed spot order.
func (g *Gateway) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResponse, error) {
	o := binance.NewOrder{
		Symbol:           req.Symbol,
		Side:             string(req.Side),
		Type:             string(req.Type),
		TimeInForce:      string(req.TimeInForce),
		Quantity:         decimal.NewFromFloat(req.Quantity),
		NewClientOrderID: req.ClientOrderID,
	}
	if req.Type == model.OrderLimit {
		o.Price = decimal.NewFromFloat(req.Price)
	}
	if req.StopPrice > 0 {
		o.StopPrice = decimal.NewFromFloat(req.StopPrice)
	}

	start := time.Now()
	ack, err := g.client.PlaceOrder(ctx, o)
	g.prom.ObserveExchange("order", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return OrderResponseFrom(ack), nil
}

// OrderResponseFrom converts an exchange order. Price is the fill-weighted
// average when fills are present.
func OrderResponseFrom(o *binance.Order) *model.OrderResponse {
	price := o.Price
	qty := decimal.Zero
	notional := decimal.Zero
	commission := decimal.Zero
	asset := ""
	for _, f := range o.Fills {
		qty = qty.Add(f.Qty)
		notional = notional.Add(f.Qty.Mul(f.Price))
		commission = commission.Add(f.Commission)
		asset = f.CommissionAsset
	}
	if qty.IsPositive() {
		price = notional.Div(qty)
	}

	ts := o.TransactTime
	if ts == 0 {
		ts = o.Time
	}
	return &model.OrderResponse{
		OrderID:            strconv.FormatInt(o.OrderID, 10),
		ClientOrderID:      o.ClientOrderID,
		Symbol:             o.Symbol,
		Side:               model.Side(o.Side),
		Quantity:           o.OrigQty.InexactFloat64(),
		Price:              price.InexactFloat64(),
		Status:             model.OrderStatus(o.Status),
		Timestamp:          time.UnixMilli(ts).UTC(),
		ExecutedQty:        o.ExecutedQty.InexactFloat64(),
		CumulativeQuoteQty: o.CummulativeQuoteQty.InexactFloat64(),
		Commission:         commission.InexactFloat64(),
		CommissionAsset:    asset,
	}
}
