package sigengine

import (
	"context"
	"fmt"
	"log"

	"signal-enginev1/internal/execution"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/notification"
	redisstore "signal-enginev1/internal/store/redis"
)

// sink receives every published batch of signals.
type sink struct {
	name string
	fn   func(ctx context.Context, signals []model.TradingSignal) error
}

// buildSinks registers the destinations of published signals. The order
// matters: storage first so the API sees a signal before it is alerted on.
func (svc *Service) buildSinks(ctx context.Context) {
	svc.sinks = svc.sinks[:0]

	if svc.redisWriter != nil {
		svc.buffered = redisstore.NewBufferedWriter(ctx, svc.redisWriter, svc.breaker, svc.cfg.Redis.BufferSize)
		svc.buffered.OnBuffer = svc.prom.RedisBufferedWrites.Inc
		svc.buffered.OnFlush = func(n int) {
			log.Printf("[sigengine] flushed %d buffered signals to redis", n)
		}
		svc.sinks = append(svc.sinks, sink{name: "redis", fn: svc.buffered.WriteSignals})
	}
	if svc.sqlWriter != nil {
		svc.sinks = append(svc.sinks, sink{name: "sqlite", fn: svc.sqlWriter.WriteSignals})
	}
	svc.sinks = append(svc.sinks, sink{name: "push", fn: svc.push.WriteSignals})
	svc.sinks = append(svc.sinks, sink{name: "notify", fn: func(ctx context.Context, signals []model.TradingSignal) error {
		_, err := svc.dispatcher.Notify(ctx, signals)
		return err
	}})

	// With Redis the executor reads the signal streams through its consumer
	// group; without it orders are placed inline.
	if svc.executor != nil && svc.redisReader == nil {
		svc.sinks = append(svc.sinks, sink{name: "executor", fn: func(ctx context.Context, signals []model.TradingSignal) error {
			svc.executor.Handle(ctx, signals)
			return nil
		}})
	}
}

func (svc *Service) sinkNames() []string {
	names := make([]string, len(svc.sinks))
	for i, s := range svc.sinks {
		names[i] = s.name
	}
	return names
}

// publish hands signals to every sink. A failing sink is logged and does
// not stop the others.
func (svc *Service) publish(ctx context.Context, signals []model.TradingSignal) {
	if len(signals) == 0 {
		return
	}
	for _, sig := range signals {
		svc.prom.ObserveSignal(sig)
	}
	for _, s := range svc.sinks {
		if err := s.fn(ctx, signals); err != nil {
			log.Printf("[sigengine] sink %s: %v", s.name, err)
		}
	}
}

// startExecutor runs the executor and alerts on failed orders. With Redis it
// first reclaims entries left pending by a previous run, then consumes the
// per-symbol signal streams.
func (svc *Service) startExecutor(ctx context.Context) {
	go svc.alertOrders(ctx, svc.executor.Results())

	if svc.redisReader == nil {
		return
	}

	streams := redisstore.SignalStreams(svc.cfg.Symbols)
	signalCh := make(chan model.TradingSignal, executorBuffer)
	go svc.executor.Run(ctx, signalCh)
	go func() {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, streams); err != nil {
			log.Printf("[sigengine] WARNING: consumer group setup: %v", err)
		}
		if err := svc.redisReader.RecoverPending(ctx, streams, signalCh); err != nil {
			log.Printf("[sigengine] pending recovery error: %v", err)
		}
		if err := svc.redisReader.ConsumeSignals(ctx, streams, signalCh); err != nil && ctx.Err() == nil {
			log.Printf("[sigengine] signal consumer stopped: %v", err)
		}
	}()
	log.Printf("[sigengine] executor consuming %d signal streams", len(streams))
}

// alertOrders raises a critical alert for every order the placer refused.
func (svc *Service) alertOrders(ctx context.Context, results <-chan execution.OrderResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				return
			}
			if r.Err == nil {
				continue
			}
			alert := notification.Alert{
				Level:   notification.AlertCritical,
				Title:   fmt.Sprintf("%s %s order failed", r.Request.Type, r.Request.Symbol),
				Message: fmt.Sprintf("%s %g %s: %v", r.Request.Side, r.Request.Quantity, r.Request.Symbol, r.Err),
				Symbol:  r.Request.Symbol,
			}
			if err := svc.notifier.Send(ctx, alert); err != nil {
				log.Printf("[sigengine] order alert: %v", err)
			}
		}
	}
}
