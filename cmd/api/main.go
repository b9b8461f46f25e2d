package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shopcore/fulfillment/internal/cart"
	"github.com/shopcore/fulfillment/internal/config"
	"github.com/shopcore/fulfillment/internal/httpx"
	"github.com/shopcore/fulfillment/internal/inventory"
	kafkax "github.com/shopcore/fulfillment/internal/kafka"
	"github.com/shopcore/fulfillment/internal/logx"
	"github.com/shopcore/fulfillment/internal/orders"
	"github.com/shopcore/fulfillment/internal/postgres"
	"github.com/shopcore/fulfillment/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName)
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

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	// Services
	store := &inventory.Store{DB: db}
	carts := cart.NewService(&cart.PgxRepo{DB: db}, store, log)
	svc := orders.NewService(&orders.PgxRepo{DB: db}, store, store, carts, prod, log, cfg.ServiceName)

	// Router
	router := httpx.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(httpx.Authenticate)
		(&httpx.CartHandler{Carts: carts}).Register(r)
		(&httpx.OrdersHandler{Svc: svc, Redis: rdb, Log: log}).Register(r)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inbox, flush pending writes
	cancel()
	prod.WaitClosed()
}
