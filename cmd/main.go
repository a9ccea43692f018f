package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-candles-feed/internal/api"
	"crypto-candles-feed/internal/feed"
	"crypto-candles-feed/internal/service"
	"crypto-candles-feed/pkg/ta"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; endpoint overrides for local runs.
	godotenv.Load()

	service.InitLogger()
	defer service.Logger.Sync()

	configPath := "config"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		service.Logger.Fatal("Configuration directory 'config/' not found. Please create it.")
	}
	cfg := service.LoadConfig(configPath)

	rest := api.NewRestClient(cfg.Exchange.RESTURL)
	dialer := api.NewWsDialer(cfg.Exchange.WSURL, service.Logger)

	candlesFeed, err := feed.New(feed.Config{
		TradingPair: cfg.Feed.TradingPair,
		Interval:    cfg.Feed.Interval,
		MaxRecords:  cfg.Feed.MaxRecords,
	}, rest, dialer, service.Logger)
	if err != nil {
		service.Logger.Fatal("Failed to construct candles feed", zap.Error(err))
	}

	// Probe the REST side before starting the loops so a bad endpoint
	// fails loudly instead of as endless backfill retries.
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	err = backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return candlesFeed.CheckNetwork(ctx)
	}, bo, func(err error, next time.Duration) {
		service.Logger.Warn("Exchange health check failed, retrying",
			zap.Error(err), zap.Duration("Backoff", next))
	})
	if err != nil {
		service.Logger.Fatal("Exchange unreachable", zap.Error(err))
	}

	candlesFeed.Start()
	defer candlesFeed.Stop()
	service.Logger.Info("Candles feed running", zap.String("Feed", candlesFeed.Name()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	taClient := ta.NewTACalculator(service.Logger)
	status := time.NewTicker(30 * time.Second)
	defer status.Stop()

	for {
		select {
		case <-sigChan:
			service.Logger.Info("Shutting down candles feed")
			return
		case <-status.C:
			candles := candlesFeed.Candles()
			fields := []zap.Field{
				zap.String("Feed", candlesFeed.Name()),
				zap.Bool("Ready", candlesFeed.IsReady()),
				zap.Int("Candles", len(candles)),
			}
			if snapshot, ok := taClient.Compute(candles); ok {
				fields = append(fields,
					zap.Float64("MA", snapshot.MA),
					zap.Float64("RSI", snapshot.RSI),
					zap.Float64("ATR", snapshot.ATR))
			}
			service.Logger.Info("Feed status", fields...)
		}
	}
}
