package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// Balance of one asset.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Account is the signed /api/v3/account response.
type Account struct {
	CanTrade   bool      `json:"canTrade"`
	UpdateTime int64     `json:"updateTime"`
	Balances   []Balance `json:"balances"`
}

// Account returns balances for the configured key.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	var a Account
	if err := c.getJSON(ctx, "api.account", nil, true, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// NewOrder is a spot order to submit. Zero decimals are omitted.
type NewOrder struct {
	Symbol           string
	Side             string // BUY / SELL
	Type             string // MARKET / LIMIT / STOP_LOSS / TAKE_PROFIT
	TimeInForce      string
	Quantity         decimal.Decimal
	Price            decimal.Decimal
	StopPrice        decimal.Decimal
	NewClientOrderID string
}

// Params encodes the order with quantities and prices fixed to 8 decimals.
func (o NewOrder) Params() url.Values {
	p := url.Values{}
	p.Set("symbol", o.Symbol)
	p.Set("side", o.Side)
	p.Set("type", o.Type)
	p.Set("quantity", o.Quantity.StringFixed(8))
	if o.Type == "LIMIT" {
		if !o.Price.IsZero() {
			p.Set("price", o.Price.StringFixed(8))
		}
		tif := o.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		p.Set("timeInForce", tif)
	}
	if !o.StopPrice.IsZero() {
		p.Set("stopPrice", o.StopPrice.StringFixed(8))
	}
	if o.NewClientOrderID != "" {
		p.Set("newClientOrderId", o.NewClientOrderID)
	}
	p.Set("newOrderRespType", "FULL")
	return p
}

// Fill is one execution of an order.
type Fill struct {
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
}

// Order is an order as reported by /api/v3/order and /api/v3/openOrders.
type Order struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	ClientOrderID       string          `json:"clientOrderId"`
	TransactTime        int64           `json:"transactTime"`
	Time                int64           `json:"time"`
	Price               decimal.Decimal `json:"price"`
	OrigQty             decimal.Decimal `json:"origQty"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status              string          `json:"status"`
	Type                string          `json:"type"`
	Side                string          `json:"side"`
	Fills               []Fill          `json:"fills"`
}

// PlaceOrder submits a signed order.
func (c *Client) PlaceOrder(ctx context.Context, o NewOrder) (*Order, error) {
	if o.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("binance: order quantity must be positive, got %s", o.Quantity)
	}
	raw, err := c.doRequest(ctx, http.MethodPost, "api.order", o.Params(), true)
	if err != nil {
		return nil, err
	}
	var out Order
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("binance api.order: decode: %w", err)
	}
	return &out, nil
}

// OpenOrders lists open orders, for one symbol or all when symbol is empty.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	var out []Order
	if err := c.getJSON(ctx, "api.open.orders", params, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}
