// Package sigengine wires the market data gateway, the strategy engine, the
// scanner, storage, notifications and order execution into one service.
package sigengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"signal-enginev1/config"
	"signal-enginev1/internal/aggregator"
	"signal-enginev1/internal/execution"
	"signal-enginev1/internal/marketdata/exchange"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/notification"
	"signal-enginev1/internal/pattern"
	"signal-enginev1/internal/push"
	"signal-enginev1/internal/scanner"
	redisstore "signal-enginev1/internal/store/redis"
	sqlitestore "signal-enginev1/internal/store/sqlite"
	"signal-enginev1/internal/strategy"
	"signal-enginev1/pkg/binance"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	livenessInterval = 15 * time.Second
	pruneInterval    = time.Hour
	executorBuffer   = 256
)

// Service is the top-level orchestrator for the signal engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config

	reg    *prometheus.Registry
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	agg     *aggregator.Aggregator
	gateway *exchange.Gateway
	source  model.CandleSource
	prices  model.PriceSource
	scanner *scanner.Scanner
	engine  *strategy.Engine

	sqlWriter *sqlitestore.Writer
	sqlReader *sqlitestore.Reader

	rdb         *goredis.Client
	breaker     *redisstore.CircuitBreaker
	redisWriter *redisstore.Writer
	redisReader *redisstore.Reader
	buffered    *redisstore.BufferedWriter

	push       *push.Hub
	notifier   notification.Notifier
	dispatcher *notification.Dispatcher
	executor   *execution.Executor
	journal    *execution.Journal

	sinks      []sink
	apiSrv     *http.Server
	metricsSrv *metrics.Server
}

// New creates a Service from cfg. It opens SQLite, connects to Redis when
// enabled and builds the evaluation pipeline.
func New(cfg *config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := &Service{
		cfg:    cfg,
		reg:    reg,
		prom:   metrics.NewMetrics(reg),
		health: metrics.NewHealthStatus(),
	}
	svc.agg = aggregator.New(
		cfg.Weights,
		pattern.NewDetector(pattern.DefaultConfig()),
		aggregator.WithTimeframe(cfg.Engine.Timeframe),
		aggregator.WithMaxBars(cfg.Engine.WindowSize),
	)

	// ---- Open SQLite ----
	if err := ensureDir(cfg.SQLite.Path); err != nil {
		return nil, err
	}
	var err error
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:   cfg.SQLite.Path,
		Interval: cfg.MarketData.Interval,
	})
	if err != nil {
		log.Printf("[sigengine] WARNING: sqlite writer init failed: %v (continuing without candle store)", err)
	} else {
		svc.sqlWriter.OnCommit = func(n int, d time.Duration) {
			svc.prom.SQLiteCommitDur.Observe(d.Seconds())
		}
		svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLite.Path)
		if err != nil {
			log.Printf("[sigengine] WARNING: sqlite reader init failed: %v", err)
		}
	}

	// ---- Connect to Redis ----
	if cfg.Redis.Enabled {
		svc.connectRedis()
	}

	// ---- Market data ----
	if err := svc.buildMarketData(); err != nil {
		svc.closeStores()
		return nil, err
	}

	svc.scanner = svc.buildScanner()

	svc.engine = strategy.NewEngine(svc.agg, cfg.Engine.WindowSize, cfg.Engine.SignalBuffer)
	svc.engine.SetFilter(aggregator.ConfidenceFilter{Min: cfg.Engine.MinConfidence})
	svc.engine.OnDrop = func(sig model.TradingSignal) {
		svc.prom.SignalsDropped.Inc()
		log.Printf("[sigengine] signal channel full, dropped %s %s", sig.Action, sig.Symbol)
	}

	svc.push = push.NewHub(0)
	svc.push.OnDrop = svc.prom.PushDrops.Inc

	svc.notifier = buildNotifier(cfg)
	svc.dispatcher = notification.NewDispatcher(svc.notifier)
	svc.dispatcher.MinConfidence = cfg.Notification.MinConfidence

	if cfg.Execution.Enabled {
		if err := svc.buildExecutor(); err != nil {
			svc.closeStores()
			return nil, err
		}
	}

	return svc, nil
}

// connectRedis creates the shared client and every Redis collaborator. An
// unreachable server is not fatal: the circuit breaker buffers writes until
// it comes back.
func (svc *Service) connectRedis() {
	cfg := svc.cfg
	svc.rdb = goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("[sigengine] WARNING: redis ping %s failed: %v (writes will be buffered)", cfg.Redis.Addr, err)
	} else {
		log.Printf("[sigengine] connected to redis at %s", cfg.Redis.Addr)
	}

	svc.redisWriter = redisstore.NewWithClient(svc.rdb, redisstore.WriterConfig{
		StreamMaxLen: cfg.Redis.StreamMaxLen,
		LatestTTL:    cfg.Redis.LatestTTL,
	})
	svc.redisWriter.OnWrite = func(d time.Duration) {
		svc.prom.RedisWriteDur.Observe(d.Seconds())
	}

	host, _ := os.Hostname()
	if host == "" {
		host = "worker-1"
	}
	svc.redisReader = redisstore.NewReaderWithClient(svc.rdb, redisstore.ReaderConfig{
		ConsumerGroup: "executor",
		ConsumerName:  host,
	})

	svc.breaker = redisstore.NewCircuitBreaker(cfg.Redis.BreakerFailures, cfg.Redis.BreakerReset)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Printf("[sigengine] redis circuit %s -> %s", from, to)
	}
}

// buildMarketData picks the candle source. Binance REST history is cached
// in Redis when it is enabled; the sqlite source replays stored candles.
func (svc *Service) buildMarketData() error {
	cfg := svc.cfg
	md := cfg.MarketData

	if md.Source == "binance" || cfg.Execution.Live {
		client := binance.New(binance.Config{
			APIKey:     md.APIKey,
			SecretKey:  md.SecretKey,
			RootURL:    md.RestURL,
			RecvWindow: md.RecvWindow,
			Timeout:    md.Timeout,
			ProxyURL:   md.Proxy,
		})
		svc.gateway = exchange.New(client, svc.prom)
	}

	switch md.Source {
	case "binance":
		svc.source = redisstore.NewCachedSource(svc.rdb, svc.gateway, cfg.Redis.CacheTTL, svc.prom)
		svc.prices = svc.gateway
	case "sqlite":
		if svc.sqlReader == nil {
			return errors.New("market data source sqlite needs a readable sqlite database")
		}
		svc.source = svc.sqlReader
	default:
		return fmt.Errorf("unknown market data source %q", md.Source)
	}
	return nil
}

func (svc *Service) buildScanner() *scanner.Scanner {
	cfg := svc.cfg
	opts := []scanner.Option{
		scanner.WithFilter(aggregator.ConfidenceFilter{Min: cfg.Engine.MinConfidence}),
		scanner.WithMetrics(svc.prom),
	}
	if svc.prices != nil {
		opts = append(opts, scanner.WithPriceSource(svc.prices))
	}
	return scanner.New(scanner.Config{
		Interval:    cfg.MarketData.Interval,
		Limit:       cfg.MarketData.Limit,
		Concurrency: cfg.Scanner.Concurrency,
		Timeout:     cfg.Scanner.Timeout,
	}, svc.source, svc.agg, opts...)
}

// buildExecutor opens the order journal and picks the placer: the
// exchange when live, otherwise a paper placer filling at signal prices.
func (svc *Service) buildExecutor() error {
	cfg := svc.cfg
	if err := ensureDir(cfg.SQLite.JournalPath); err != nil {
		return err
	}
	journal, err := execution.NewJournal(cfg.SQLite.JournalPath)
	if err != nil {
		return fmt.Errorf("order journal: %w", err)
	}
	svc.journal = journal

	opts := []execution.Option{
		execution.WithJournal(journal),
		execution.WithMetrics(svc.prom),
	}
	var placer model.OrderPlacer
	if cfg.Execution.Live {
		if !svc.gateway.Client().HasCredentials() {
			return errors.New("live execution needs BINANCE_API_KEY and BINANCE_SECRET_KEY")
		}
		placer = svc.gateway
	} else {
		marks := execution.NewMarkBook()
		placer = execution.NewPaperPlacer(marks, cfg.Execution.SlippageBps)
		opts = append(opts, execution.WithMarks(marks))
	}

	svc.executor = execution.NewExecutor(execution.Config{
		Quantity:      cfg.Execution.Quantity,
		PlaceStop:     cfg.Execution.PlaceStop,
		MinConfidence: cfg.Execution.MinConfidence,
		Cooldown:      cfg.Execution.Cooldown,
	}, placer, executorBuffer, opts...)
	return nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	notifiers := notification.Multi{notification.NewLogNotifier()}
	n := cfg.Notification
	if n.TelegramBotToken != "" && n.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(n.TelegramBotToken, n.TelegramChatID))
	}
	if n.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(n.WebhookURL))
	}
	return notifiers
}

// Scanner returns the on-demand scanner.
func (svc *Service) Scanner() *scanner.Scanner { return svc.scanner }

// Registry returns the registry every service metric is registered on.
func (svc *Service) Registry() *prometheus.Registry { return svc.reg }

// Symbols returns the configured symbol universe.
func (svc *Service) Symbols() []string { return svc.cfg.Symbols }

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[sigengine] starting Signal Engine...")

	sqlDB := svc.sqlDB()
	svc.health.Enable(cfg.MarketData.Stream, svc.rdb != nil, sqlDB != nil)
	svc.health.SetSymbols(cfg.Symbols)
	if svc.rdb != nil {
		svc.health.CheckRedis(ctx, svc.rdb)
	}
	if sqlDB != nil {
		svc.health.CheckSQLite(ctx, sqlDB)
	}

	// ---- Signal sinks ----
	svc.buildSinks(ctx)
	if svc.executor != nil {
		svc.startExecutor(ctx)
	}

	// ---- Live feed ----
	if cfg.MarketData.Stream {
		if err := svc.startFeed(ctx); err != nil {
			return err
		}
	}

	// ---- Scheduled scans ----
	if cfg.Scanner.Cron != "" {
		if err := svc.scanner.Schedule(ctx, cfg.Scanner.Cron, svc.Symbols, svc.onScan); err != nil {
			return err
		}
	}

	if svc.sqlWriter != nil && cfg.SQLite.KeepSignals > 0 {
		go svc.pruneLoop(ctx)
	}

	// ---- Start subsystems ----
	svc.health.StartLivenessChecker(ctx, svc.rdb, sqlDB, livenessInterval)
	svc.metricsSrv = metrics.NewServer(cfg.Service.MetricsAddr, svc.health, svc.reg)
	svc.metricsSrv.Start()
	svc.startAPI()

	// ---- Startup banner ----
	log.Println("[sigengine] ╔════════════════════════════════════════════════════════╗")
	log.Println("[sigengine] ║  Signal Engine Active                                  ║")
	log.Println("[sigengine] ║                                                        ║")
	log.Println("[sigengine] ║  [Klines] → [Indicators] → [Signals] → [Sinks]         ║")
	log.Printf("[sigengine] ║  Source: %-8s  Interval: %-4s  Stream: %-5v      ║", cfg.MarketData.Source, cfg.MarketData.Interval, cfg.MarketData.Stream)
	log.Printf("[sigengine] ║  Symbols: %v", cfg.Symbols)
	log.Printf("[sigengine] ║  Sinks: %v", svc.sinkNames())
	log.Println("[sigengine] ╚════════════════════════════════════════════════════════╝")
	log.Println("[sigengine] ✅ all systems running. Press Ctrl+C to stop.")

	// Block until context cancelled
	<-ctx.Done()

	svc.shutdown()
	return nil
}

// onScan publishes the kept signals of a scheduled scan.
func (svc *Service) onScan(ctx context.Context, signals []model.TradingSignal) {
	svc.health.RecordScan(time.Now(), len(signals))
	log.Printf("[sigengine] scheduled scan kept %d signals", len(signals))
	svc.publish(ctx, signals)
}

// pruneLoop trims the signal journal to the newest KeepSignals rows per symbol.
func (svc *Service) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.sqlWriter.PruneSignals(ctx, svc.cfg.SQLite.KeepSignals)
			if err != nil {
				log.Printf("[sigengine] prune signals: %v", err)
			} else if n > 0 {
				log.Printf("[sigengine] pruned %d journaled signals", n)
			}
		}
	}
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlWriter == nil {
		return nil
	}
	return svc.sqlWriter.DB()
}

// shutdown stops the servers and closes connections.
func (svc *Service) shutdown() {
	log.Println("[sigengine] shutdown signal received...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if svc.apiSrv != nil {
		if err := svc.apiSrv.Shutdown(shutCtx); err != nil {
			log.Printf("[sigengine] api shutdown: %v", err)
		}
	}
	if svc.metricsSrv != nil {
		svc.metricsSrv.Stop(shutCtx)
	}
	if svc.buffered != nil && svc.buffered.PendingCount() > 0 {
		log.Printf("[sigengine] WARNING: %d signals still buffered for redis", svc.buffered.PendingCount())
	}

	svc.closeStores()
	log.Println("[sigengine] shutdown complete.")
}

func (svc *Service) closeStores() {
	if svc.journal != nil {
		svc.journal.Close()
	}
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	if svc.rdb != nil {
		svc.rdb.Close()
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
