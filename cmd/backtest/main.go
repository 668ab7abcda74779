// cmd/backtest replays historical candles from SQLite through the strategy
// engine and scores every actionable signal against the bars that follow:
// a win when the target trades before the stop, a loss otherwise.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/signals.db --symbols=BTCUSDT,ETHUSDT --interval=1h
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"signal-enginev1/config"
	"signal-enginev1/internal/aggregator"
	"signal-enginev1/internal/marketdata/replay"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/pattern"
	sqlitestore "signal-enginev1/internal/store/sqlite"
	"signal-enginev1/internal/strategy"
)

// trade is an open signal waiting for its target or stop.
type trade struct {
	sig model.TradingSignal
}

// resolve reports whether c settles t and whether it was a win. A bar that
// spans both levels counts as a loss.
func (t trade) resolve(c model.Candle) (done, win bool) {
	switch t.sig.Action {
	case model.ActionBuy:
		if c.Low <= t.sig.StopLoss {
			return true, false
		}
		if c.High >= t.sig.TargetPrice {
			return true, true
		}
	case model.ActionSell:
		if c.High >= t.sig.StopLoss {
			return true, false
		}
		if c.Low <= t.sig.TargetPrice {
			return true, true
		}
	}
	return false, false
}

func main() {
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	symbolsStr := flag.String("symbols", "BTCUSDT", "Comma-separated symbols to replay")
	interval := flag.String("interval", "1h", "Kline interval stored with the candles")
	fromTS := flag.Int64("from", 0, "Epoch ms to start replay from (0=all)")
	dbPath := flag.String("db", "data/signals.db", "Path to SQLite database")
	minConf := flag.Float64("min-confidence", 60, "Signals at or below this confidence are ignored")
	window := flag.Int("window", aggregator.MaxSeriesLen, "Bars kept per symbol")
	flag.Parse()

	symbols := config.SplitList(*symbolsStr)
	if len(symbols) == 0 {
		log.Fatal("[backtest] no symbols specified")
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	agg := aggregator.New(aggregator.DefaultWeights(), pattern.NewDetector(pattern.DefaultConfig()), aggregator.WithMaxBars(*window))
	engine := strategy.NewEngine(agg, *window, 1)
	engine.SetFilter(aggregator.ConfidenceFilter{Min: *minConf})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	replayer := replay.New(reader)
	candleCh := make(chan model.Candle, 10000)
	go func() {
		if err := replayer.Run(ctx, symbols, *interval, *fromTS, *speed, candleCh); err != nil {
			log.Printf("[backtest] replay error: %v", err)
		}
		close(candleCh)
	}()

	var (
		processed, signals, wins, losses int
		byAction                         = map[model.Action]int{}
		open                             = map[string]trade{}
	)
	for c := range candleCh {
		processed++

		if t, ok := open[c.Symbol]; ok {
			if done, win := t.resolve(c); done {
				delete(open, c.Symbol)
				if win {
					wins++
				} else {
					losses++
				}
			}
		}

		sig, ok := engine.OnCandle(c)
		if !ok {
			continue
		}
		signals++
		byAction[sig.Action]++
		if signals <= 10 || signals%100 == 0 {
			fmt.Printf("  [%s] %s %-4s conf=%.0f price=%.4f target=%.4f stop=%.4f\n",
				c.Time().Format("2006-01-02 15:04"), sig.Symbol, sig.Action, sig.Confidence, sig.Price, sig.TargetPrice, sig.StopLoss)
		}
		if _, busy := open[sig.Symbol]; !busy && sig.Actionable() {
			open[sig.Symbol] = trade{sig: sig}
		}
	}

	winRate := 0.0
	if wins+losses > 0 {
		winRate = 100 * float64(wins) / float64(wins+losses)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles processed: %-16d ║\n", processed)
	fmt.Printf("║  Signals:           %-16d ║\n", signals)
	fmt.Printf("║  BUY / SELL / HOLD: %-16s ║\n", fmt.Sprintf("%d / %d / %d", byAction[model.ActionBuy], byAction[model.ActionSell], byAction[model.ActionHold]))
	fmt.Printf("║  Wins / Losses:     %-16s ║\n", fmt.Sprintf("%d / %d", wins, losses))
	fmt.Printf("║  Win rate:          %-16s ║\n", fmt.Sprintf("%.1f%%", winRate))
	fmt.Printf("║  Still open:        %-16d ║\n", len(open))
	fmt.Println("╚══════════════════════════════════════╝")
}
