package model

import "time"

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType mirrors the exchange order types accepted by the execution collaborator.
type OrderType string

const (
	OrderMarket     OrderType = "MARKET"
	OrderLimit      OrderType = "LIMIT"
	OrderStopLoss   OrderType = "STOP_LOSS"
	OrderTakeProfit OrderType = "TAKE_PROFIT"
)

// TimeInForce for limit orders.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// OrderStatus as reported by the broker.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
)

// OrderRequest is what the executor hands to an OrderPlacer.
type OrderRequest struct {
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Quantity      float64     `json:"quantity"`
	Type          OrderType   `json:"type"`
	Price         float64     `json:"price,omitempty"`      // LIMIT only
	StopPrice     float64     `json:"stop_price,omitempty"` // STOP_LOSS / TAKE_PROFIT
	TimeInForce   TimeInForce `json:"time_in_force,omitempty"`
	ClientOrderID string      `json:"client_order_id"`
}

// OrderResponse is the broker acknowledgement for an OrderRequest.
type OrderResponse struct {
	OrderID            string      `json:"order_id"`
	ClientOrderID      string      `json:"client_order_id"`
	Symbol             string      `json:"symbol"`
	Side               Side        `json:"side"`
	Quantity           float64     `json:"quantity"`
	Price              float64     `json:"price"`
	Status             OrderStatus `json:"status"`
	Timestamp          time.Time   `json:"timestamp"`
	ExecutedQty        float64     `json:"executed_qty"`
	CumulativeQuoteQty float64     `json:"cumulative_quote_qty"`
	Commission         float64     `json:"commission"`
	CommissionAsset    string      `json:"commission_asset"`
}

// Balance of one asset on the exchange account.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}
