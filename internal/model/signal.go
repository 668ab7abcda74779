package model

import "encoding/json"

// Action is the recommendation carried by a TradingSignal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// TradingSignal is the engine output for one symbol and one evaluation.
// Values are created fresh per evaluation and never mutated afterwards.
type TradingSignal struct {
	Symbol         string  `json:"symbol"`
	Action         Action  `json:"action"`
	Confidence     float64 `json:"confidence"`
	TargetPrice    float64 `json:"target_price"`
	StopLoss       float64 `json:"stop_loss"`
	Reasoning      string  `json:"reasoning"`
	Timeframe      string  `json:"timeframe"`
	RiskScore      float64 `json:"risk_score"`
	ExpectedReturn float64 `json:"expected_return"`

	Price       float64 `json:"price"`        // price the signal was evaluated at
	Score       float64 `json:"score"`        // raw additive score
	GeneratedAt int64   `json:"generated_at"` // TS of the last candle, epoch ms
}

// Actionable reports whether the signal asks for a trade.
func (s *TradingSignal) Actionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}

// StreamKey returns the Redis stream key: "signal:{symbol}".
func (s *TradingSignal) StreamKey() string {
	return "signal:" + s.Symbol
}

// LatestKey returns the Redis key holding the most recent signal.
func (s *TradingSignal) LatestKey() string {
	return "signal:latest:" + s.Symbol
}

// PubSubChannel returns the Redis PubSub channel: "pub:signal:{symbol}".
func (s *TradingSignal) PubSubChannel() string {
	return "pub:signal:" + s.Symbol
}

// JSON returns the JSON-encoded signal.
func (s *TradingSignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
