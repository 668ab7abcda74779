package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"signal-enginev1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ErrNoData is returned when a stream entry has no "data" field.
var ErrNoData = errors.New("stream entry has no data field")

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "executor"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Reader reads published signals: latest values for the API and the
// signal streams via consumer groups for the executor.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	r := NewReaderWithClient(client, cfg)
	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, r.consumerGroup, r.consumerName)
	return r, nil
}

// NewReaderWithClient wraps an existing client without pinging it.
func NewReaderWithClient(client *goredis.Client, cfg ReaderConfig) *Reader {
	group := cfg.ConsumerGroup
	if group == "" {
		group = "executor"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}
	return &Reader{client: client, consumerGroup: group, consumerName: consumer}
}

// Client returns the underlying Redis client.
func (r *Reader) Client() *goredis.Client { return r.client }

// LatestSignal returns the most recent signal for symbol, or nil, nil
// when none is stored or it has expired.
func (r *Reader) LatestSignal(ctx context.Context, symbol string) (*model.TradingSignal, error) {
	key := (&model.TradingSignal{Symbol: symbol}).LatestKey()
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var sig model.TradingSignal
	if err := json.Unmarshal([]byte(data), &sig); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &sig, nil
}

// LatestSignals returns the latest signal of every known symbol, sorted
// by symbol. Expired entries are skipped.
func (r *Reader) LatestSignals(ctx context.Context) ([]model.TradingSignal, error) {
	symbols, err := r.client.SMembers(ctx, symbolsKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis SMEMBERS %s: %w", symbolsKey, err)
	}
	if len(symbols) == 0 {
		return nil, nil
	}
	sort.Strings(symbols)

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = (&model.TradingSignal{Symbol: s}).LatestKey()
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET latest signals: %w", err)
	}

	out := make([]model.TradingSignal, 0, len(vals))
	for i, v := range vals {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var sig model.TradingSignal
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			log.Printf("[redis-reader] bad latest signal for %s: %v", symbols[i], err)
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// RecentSignals returns up to n signals for symbol from its stream, newest first.
func (r *Reader) RecentSignals(ctx context.Context, symbol string, n int64) ([]model.TradingSignal, error) {
	stream := (&model.TradingSignal{Symbol: symbol}).StreamKey()
	msgs, err := r.client.XRevRangeN(ctx, stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", stream, err)
	}
	out := make([]model.TradingSignal, 0, len(msgs))
	for _, msg := range msgs {
		sig, err := decodeSignal(msg.Values)
		if err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// SignalStreams maps symbols to their stream keys.
func SignalStreams(symbols []string) []string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = (&model.TradingSignal{Symbol: s}).StreamKey()
	}
	return streams
}

// EnsureConsumerGroup creates the consumer group on each stream if it
// doesn't exist. Fresh groups start at "$" (new entries only).
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// ConsumeSignals reads signals from the given streams using the consumer
// group and sends them to out, acknowledging each after delivery.
// Returns when ctx is cancelled.
func (r *Reader) ConsumeSignals(ctx context.Context, streams []string, out chan<- model.TradingSignal) error {
	if len(streams) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	// [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, stream := range results {
			if err := r.deliver(ctx, stream.Stream, stream.Messages, out); err != nil {
				return err
			}
		}
	}
}

// RecoverPending redelivers entries that were read but never acknowledged,
// e.g. after a crash between delivery and XACK.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.TradingSignal) error {
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  r.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}
			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				Messages: ids,
			}).Result()
			if err != nil {
				log.Printf("[redis-reader] xclaim error on %s: %v", stream, err)
				break
			}
			if err := r.deliver(ctx, stream, claimed, out); err != nil {
				return err
			}
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// deliver decodes and forwards messages, acking each one. Undecodable
// entries are acked and skipped so they are not redelivered forever.
func (r *Reader) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, out chan<- model.TradingSignal) error {
	for _, msg := range msgs {
		sig, err := decodeSignal(msg.Values)
		if err != nil {
			log.Printf("[redis-reader] skipping %s/%s: %v", stream, msg.ID, err)
			r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
			continue
		}

		select {
		case out <- sig:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
	}
	return nil
}

// SubscribeSignals subscribes to every pub:signal:* channel and forwards
// decoded signals to out. Blocks until ctx is cancelled.
func (r *Reader) SubscribeSignals(ctx context.Context, out chan<- model.TradingSignal) error {
	sub := r.client.PSubscribe(ctx, "pub:signal:*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var sig model.TradingSignal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				log.Printf("[redis-reader] bad pubsub payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- sig:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}

func decodeSignal(values map[string]interface{}) (model.TradingSignal, error) {
	var sig model.TradingSignal
	data, ok := values["data"].(string)
	if !ok {
		return sig, ErrNoData
	}
	if err := json.Unmarshal([]byte(data), &sig); err != nil {
		return sig, fmt.Errorf("unmarshal signal: %w", err)
	}
	return sig, nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}
