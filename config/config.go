package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"signal-enginev1/internal/aggregator"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration: YAML file first, then
// environment overrides.
type Config struct {
	Service struct {
		Name        string `yaml:"name"`
		LogLevel    string `yaml:"log_level"`
		HTTPAddr    string `yaml:"http_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"service"`

	Symbols []string `yaml:"symbols"`

	MarketData struct {
		Source     string        `yaml:"source"` // "binance" or "sqlite"
		RestURL    string        `yaml:"rest_url"`
		WSURL      string        `yaml:"ws_url"`
		Stream     bool          `yaml:"stream"` // live kline websocket feed
		Interval   string        `yaml:"interval"`
		Limit      int           `yaml:"limit"`
		APIKey     string        `yaml:"api_key"`
		SecretKey  string        `yaml:"secret_key"`
		RecvWindow time.Duration `yaml:"recv_window"`
		Timeout    time.Duration `yaml:"timeout"`
		Proxy      string        `yaml:"proxy"`
	} `yaml:"market_data"`

	Engine struct {
		Timeframe     string  `yaml:"timeframe"`
		WindowSize    int     `yaml:"window_size"`
		SignalBuffer  int     `yaml:"signal_buffer"`
		MinConfidence float64 `yaml:"min_confidence"`
	} `yaml:"engine"`

	Scanner struct {
		Cron        string        `yaml:"cron"`
		Concurrency int           `yaml:"concurrency"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"scanner"`

	Weights aggregator.Weights `yaml:"weights"`

	Redis struct {
		Enabled         bool          `yaml:"enabled"`
		Addr            string        `yaml:"addr"`
		Password        string        `yaml:"password"`
		DB              int           `yaml:"db"`
		StreamMaxLen    int64         `yaml:"stream_max_len"`
		LatestTTL       time.Duration `yaml:"latest_ttl"`
		CacheTTL        time.Duration `yaml:"cache_ttl"`
		BreakerFailures int           `yaml:"breaker_failures"`
		BreakerReset    time.Duration `yaml:"breaker_reset"`
		BufferSize      int           `yaml:"buffer_size"`
	} `yaml:"redis"`

	SQLite struct {
		Path        string `yaml:"path"`
		JournalPath string `yaml:"journal_path"`
		KeepSignals int    `yaml:"keep_signals"`
	} `yaml:"sqlite"`

	Notification struct {
		TelegramBotToken string  `yaml:"telegram_bot_token"`
		TelegramChatID   string  `yaml:"telegram_chat_id"`
		WebhookURL       string  `yaml:"webhook_url"`
		MinConfidence    float64 `yaml:"min_confidence"`
	} `yaml:"notification"`

	Execution struct {
		Enabled       bool          `yaml:"enabled"`
		Live          bool          `yaml:"live"` // send orders to the exchange instead of the paper placer
		Quantity      float64       `yaml:"quantity"`
		SlippageBps   int64         `yaml:"slippage_bps"`
		PlaceStop     bool          `yaml:"place_stop"`
		MinConfidence float64       `yaml:"min_confidence"`
		Cooldown      time.Duration `yaml:"cooldown"`
	} `yaml:"execution"`

	API struct {
		RateLimit  float64 `yaml:"rate_limit"` // requests per second per client
		Burst      int     `yaml:"burst"`
		TOTPSecret string  `yaml:"totp_secret"`
	} `yaml:"api"`
}

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.Service.Name = "sigengine"
	c.Service.LogLevel = "info"
	c.Service.HTTPAddr = ":8080"
	c.Service.MetricsAddr = ":9090"

	c.Symbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"}

	c.MarketData.Source = "binance"
	c.MarketData.RestURL = "https://api.binance.com"
	c.MarketData.WSURL = "wss://stream.binance.com:9443"
	c.MarketData.Stream = true
	c.MarketData.Interval = "1h"
	c.MarketData.Limit = 100
	c.MarketData.RecvWindow = 5 * time.Second
	c.MarketData.Timeout = 10 * time.Second

	c.Engine.Timeframe = aggregator.DefaultTimeframe
	c.Engine.WindowSize = aggregator.MaxSeriesLen
	c.Engine.SignalBuffer = 256
	c.Engine.MinConfidence = 60

	c.Scanner.Cron = "0 1 * * * *" // one second past every hour
	c.Scanner.Concurrency = 8
	c.Scanner.Timeout = 15 * time.Second

	c.Weights = aggregator.DefaultWeights()

	c.Redis.Enabled = true
	c.Redis.Addr = "localhost:6379"
	c.Redis.StreamMaxLen = 5000
	c.Redis.LatestTTL = 2 * time.Hour
	c.Redis.CacheTTL = 30 * time.Second
	c.Redis.BreakerFailures = 5
	c.Redis.BreakerReset = 10 * time.Second
	c.Redis.BufferSize = 10000

	c.SQLite.Path = "data/signals.db"
	c.SQLite.JournalPath = "data/orders.db"
	c.SQLite.KeepSignals = 1000

	c.Notification.MinConfidence = 65

	c.Execution.Quantity = 0.001
	c.Execution.SlippageBps = 5
	c.Execution.PlaceStop = true
	c.Execution.MinConfidence = 65
	c.Execution.Cooldown = 4 * time.Hour

	c.API.RateLimit = 10
	c.API.Burst = 20
	return c
}

// Load reads .env (if present), the YAML file at path (if it exists), then
// applies environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Service.LogLevel = getEnv("LOG_LEVEL", c.Service.LogLevel)
	c.Service.HTTPAddr = getEnv("HTTP_ADDR", c.Service.HTTPAddr)
	c.Service.MetricsAddr = getEnv("METRICS_ADDR", c.Service.MetricsAddr)

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = SplitList(v)
	}

	c.MarketData.Source = getEnv("MARKET_DATA_SOURCE", c.MarketData.Source)
	c.MarketData.RestURL = getEnv("BINANCE_REST_URL", c.MarketData.RestURL)
	c.MarketData.WSURL = getEnv("BINANCE_WS_URL", c.MarketData.WSURL)
	c.MarketData.Stream = getEnvBool("MARKET_DATA_STREAM", c.MarketData.Stream)
	c.MarketData.Interval = getEnv("CANDLE_INTERVAL", c.MarketData.Interval)
	c.MarketData.APIKey = getEnv("BINANCE_API_KEY", c.MarketData.APIKey)
	c.MarketData.SecretKey = getEnv("BINANCE_SECRET_KEY", c.MarketData.SecretKey)
	c.MarketData.Proxy = getEnv("HTTPS_PROXY", c.MarketData.Proxy)

	c.Scanner.Cron = getEnv("SCAN_CRON", c.Scanner.Cron)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)
	c.SQLite.JournalPath = getEnv("JOURNAL_PATH", c.SQLite.JournalPath)

	c.Notification.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notification.TelegramBotToken)
	c.Notification.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notification.TelegramChatID)
	c.Notification.WebhookURL = getEnv("WEBHOOK_URL", c.Notification.WebhookURL)

	c.Execution.Enabled = getEnvBool("EXECUTION_ENABLED", c.Execution.Enabled)
	c.Execution.Live = getEnvBool("EXECUTION_LIVE", c.Execution.Live)
	c.Execution.Quantity = getEnvFloat("ORDER_QUANTITY", c.Execution.Quantity)

	c.API.TOTPSecret = getEnv("API_TOTP_SECRET", c.API.TOTPSecret)
	c.API.RateLimit = getEnvFloat("API_RATE_LIMIT", c.API.RateLimit)
}

var validIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("symbols: at least one symbol is required"))
	}
	switch c.MarketData.Source {
	case "binance", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("market_data.source: unknown source %q", c.MarketData.Source))
	}
	if !validIntervals[c.MarketData.Interval] {
		errs = append(errs, fmt.Errorf("market_data.interval: unsupported interval %q", c.MarketData.Interval))
	}
	if c.MarketData.Limit <= aggregator.MinBars || c.MarketData.Limit > 1000 {
		errs = append(errs, fmt.Errorf("market_data.limit must be in (%d, 1000], got %d", aggregator.MinBars, c.MarketData.Limit))
	}
	if c.Engine.WindowSize <= aggregator.MinBars {
		errs = append(errs, fmt.Errorf("engine.window_size must exceed %d, got %d", aggregator.MinBars, c.Engine.WindowSize))
	}
	if c.Scanner.Concurrency <= 0 {
		errs = append(errs, errors.New("scanner.concurrency must be positive"))
	}
	if c.Weights.BuyThreshold <= c.Weights.SellThreshold {
		errs = append(errs, errors.New("weights: buy_threshold must be greater than sell_threshold"))
	}
	if (c.Notification.TelegramBotToken == "") != (c.Notification.TelegramChatID == "") {
		errs = append(errs, errors.New("notification: telegram_bot_token and telegram_chat_id must be set together"))
	}
	if c.Execution.Enabled {
		if c.Execution.Quantity <= 0 {
			errs = append(errs, errors.New("execution.quantity must be positive"))
		}
		if c.Execution.Live && (c.MarketData.APIKey == "" || c.MarketData.SecretKey == "") {
			errs = append(errs, errors.New("execution.live requires market_data.api_key and secret_key"))
		}
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, errors.New("api.rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}

// SplitList parses a comma-separated list, trimming blanks and upper-casing
// symbols.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return f
}
