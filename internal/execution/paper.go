package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-enginev1/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidQuantity is returned for non-positive order quantities.
	ErrInvalidQuantity = errors.New("order quantity must be positive")
	// ErrNoMark is returned when no reference price is known for a symbol.
	ErrNoMark = errors.New("no reference price")
)

var bpsDivisor = decimal.NewFromInt(10000)

// MarkBook holds the latest reference price per symbol. It satisfies
// model.PriceSource.
type MarkBook struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewMarkBook creates an empty MarkBook.
func NewMarkBook() *MarkBook {
	return &MarkBook{prices: make(map[string]float64)}
}

// Update sets the reference price for symbol.
func (m *MarkBook) Update(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}

// LastPrice returns the reference price for symbol.
func (m *MarkBook) LastPrice(_ context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w for %s", ErrNoMark, symbol)
	}
	return p, nil
}

// PaperPlacer simulates order execution without exchange calls. MARKET
// orders fill immediately at the reference price moved against the
// order by slippageBps; LIMIT and STOP orders are accepted as NEW.
type PaperPlacer struct {
	prices   model.PriceSource
	slippage decimal.Decimal // fraction, e.g. 0.0005 for 5 bps
	now      func() time.Time

	mu       sync.RWMutex
	orders   []model.OrderResponse
	orderSeq int64
}

// NewPaperPlacer creates a paper placer that prices MARKET orders from prices.
func NewPaperPlacer(prices model.PriceSource, slippageBps int64) *PaperPlacer {
	return &PaperPlacer{
		prices:   prices,
		slippage: decimal.NewFromInt(slippageBps).Div(bpsDivisor),
		now:      time.Now,
		orders:   make([]model.OrderResponse, 0, 256),
	}
}

// Orders returns a snapshot of all simulated orders.
func (p *PaperPlacer) Orders() []model.OrderResponse {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.OrderResponse, len(p.orders))
	copy(cp, p.orders)
	return cp
}

// PlaceOrder implements model.OrderPlacer.
func (p *PaperPlacer) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResponse, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	resp := model.OrderResponse{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Status:        model.StatusNew,
		Timestamp:     p.now().UTC(),
	}

	switch req.Type {
	case model.OrderMarket:
		if p.prices == nil {
			return nil, fmt.Errorf("%w for %s", ErrNoMark, req.Symbol)
		}
		mark, err := p.prices.LastPrice(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		fill := p.fillPrice(decimal.NewFromFloat(mark), req.Side)
		qty := decimal.NewFromFloat(req.Quantity)
		resp.Price = fill.InexactFloat64()
		resp.Status = model.StatusFilled
		resp.ExecutedQty = req.Quantity
		resp.CumulativeQuoteQty = fill.Mul(qty).Round(8).InexactFloat64()
	case model.OrderLimit:
		resp.Price = req.Price
	case model.OrderStopLoss, model.OrderTakeProfit:
		resp.Price = req.StopPrice
	default:
		return nil, fmt.Errorf("unsupported order type %q", req.Type)
	}

	p.mu.Lock()
	p.orderSeq++
	resp.OrderID = fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.orders = append(p.orders, resp)
	p.mu.Unlock()

	log.Printf("[paper] %s %s %s qty=%g price=%g status=%s order=%s",
		req.Type, req.Side, req.Symbol, req.Quantity, resp.Price, resp.Status, resp.OrderID)
	return &resp, nil
}

// fillPrice moves mark against the order: buys fill higher, sells lower.
func (p *PaperPlacer) fillPrice(mark decimal.Decimal, side model.Side) decimal.Decimal {
	slip := mark.Mul(p.slippage)
	if side == model.SideBuy {
		return mark.Add(slip).Round(8)
	}
	return mark.Sub(slip).Round(8)
}
