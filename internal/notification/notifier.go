// Package notification delivers trading-signal alerts to external
// channels (log, Telegram, webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"signal-enginev1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts. Used when no external channel is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all of its notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlert formats a trading signal as an alert. High-confidence
// signals are raised as warnings so they stand out in chat channels.
func SignalAlert(sig model.TradingSignal) Alert {
	level := AlertInfo
	if sig.Confidence >= 80 {
		level = AlertWarning
	}
	return Alert{
		Level:  level,
		Title:  fmt.Sprintf("%s %s (%s)", sig.Action, sig.Symbol, sig.Timeframe),
		Symbol: sig.Symbol,
		Message: fmt.Sprintf(
			"Price: %.4f\nConfidence: %.0f%%\nTarget: %.4f\nStop: %.4f\nRisk: %.0f\nExpected return: %.2f%%\n%s",
			sig.Price,
			sig.Confidence,
			sig.TargetPrice,
			sig.StopLoss,
			sig.RiskScore,
			sig.ExpectedReturn,
			sig.Reasoning,
		),
	}
}
