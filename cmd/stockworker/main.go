package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shopcore/fulfillment/internal/config"
	"github.com/shopcore/fulfillment/internal/inventory"
	kafkax "github.com/shopcore/fulfillment/internal/kafka"
	"github.com/shopcore/fulfillment/internal/logx"
	"github.com/shopcore/fulfillment/internal/postgres"
	"github.com/shopcore/fulfillment/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName + "-stockworker")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	adj := &inventory.Adjuster{
		Ledger: &inventory.Store{DB: db},
		Dedup:  &redisx.Dedup{Client: rdb, Service: cfg.ServiceName},
		Log:    log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockGroup, inventory.TopicStockAdjusted, cfg.StockWorkers, log)

	go func() {
		log.Info("stock consumer started",
			zap.String("group", cfg.StockGroup),
			zap.String("topic", inventory.TopicStockAdjusted),
			zap.Int("workers", cfg.StockWorkers))
		if err := cons.Start(ctx, adj.HandleStockAdjusted); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
