package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"signal-enginev1/config"
	"signal-enginev1/internal/logger"
	"signal-enginev1/internal/sigengine"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (env vars and .env override it)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[sigengine] config: %v", err)
	}
	level := logger.ParseLevel(cfg.Service.LogLevel)
	logger.Init(cfg.Service.Name, level)
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Printf("[sigengine] symbols: %v, interval: %s, source: %s", cfg.Symbols, cfg.MarketData.Interval, cfg.MarketData.Source)

	svc, err := sigengine.New(cfg)
	if err != nil {
		log.Fatalf("[sigengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[sigengine] fatal: %v", err)
	}
}
