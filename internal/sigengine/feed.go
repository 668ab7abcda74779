package sigengine

import (
	"context"
	"log"
	"time"

	"signal-enginev1/internal/marketdata/bus"
	"signal-enginev1/internal/marketdata/stream"
	"signal-enginev1/internal/model"
)

const (
	feedBuffer   = 1024
	fanoutBuffer = 512
)

// startFeed connects the kline websocket and runs the pipeline
//
//	[ingest] → [observe] → [fanout] → engine → publish
//	                                 → sqlite candle store
//
// Engine windows are seeded from the candle source first so the first
// closed bar is already past the evaluation gate.
func (svc *Service) startFeed(ctx context.Context) error {
	cfg := svc.cfg
	url := stream.StreamURL(cfg.MarketData.WSURL, cfg.Symbols, cfg.MarketData.Interval)
	ing, err := stream.New(stream.Config{URL: url})
	if err != nil {
		return err
	}
	ing.OnConnect = svc.health.SetFeedConnected
	ing.OnReconnect = svc.prom.WSReconnects.Inc
	ing.OnReject = func(err error) {
		svc.prom.CandlesRejected.Inc()
		log.Printf("[sigengine] rejected kline: %v", err)
	}

	svc.seedEngine(ctx)

	rawCh := make(chan model.Candle, feedBuffer)
	candleCh := make(chan model.Candle, feedBuffer)

	fan := bus.New(fanoutBuffer)
	fan.OnDrop = func(name string, c model.Candle) {
		svc.prom.FanoutDrops.WithLabelValues(name).Inc()
		log.Printf("[sigengine] %s full, dropping candle %s", name, c.Key())
	}
	engineCh := fan.Subscribe("engine")
	if svc.sqlWriter != nil {
		go svc.sqlWriter.Run(ctx, fan.Subscribe("sqlite"))
	}

	go func() {
		if err := ing.Start(ctx, rawCh); err != nil {
			log.Printf("[sigengine] kline stream stopped: %v", err)
		}
	}()
	go svc.observeCandles(ctx, rawCh, candleCh)
	go fan.Run(ctx, candleCh)
	go svc.engine.Run(ctx, engineCh)
	go svc.drainEngine(ctx)

	log.Printf("[sigengine] live feed %s", url)
	return nil
}

// seedEngine preloads each symbol's window with recent history.
func (svc *Service) seedEngine(ctx context.Context) {
	cfg := svc.cfg
	for _, sym := range cfg.Symbols {
		seedCtx, cancel := context.WithTimeout(ctx, cfg.Scanner.Timeout)
		history, err := svc.source.Candles(seedCtx, sym, cfg.MarketData.Interval, cfg.Engine.WindowSize)
		cancel()
		if err != nil {
			log.Printf("[sigengine] seed %s: %v", sym, err)
			continue
		}
		svc.engine.Seed(sym, history)
		log.Printf("[sigengine] seeded %s with %d bars", sym, len(history))
	}
}

// observeCandles records feed health for every closed bar and forwards it.
func (svc *Service) observeCandles(ctx context.Context, in <-chan model.Candle, out chan<- model.Candle) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-in:
			svc.prom.CandlesIngested.Inc()
			svc.health.SetLastCandleTime(time.UnixMilli(c.TS))
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// drainEngine publishes engine signals until the engine stops.
func (svc *Service) drainEngine(ctx context.Context) {
	for sig := range svc.engine.Signals() {
		svc.publish(ctx, []model.TradingSignal{sig})
	}
}
