package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/ht-marketplace/internal/api"
	"github.com/example/ht-marketplace/internal/auth"
	"github.com/example/ht-marketplace/internal/config"
	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/domain/catalog"
	"github.com/example/ht-marketplace/internal/domain/order"
	"github.com/example/ht-marketplace/internal/domain/stock"
	"github.com/example/ht-marketplace/internal/infrastructure/kafka"
	"github.com/example/ht-marketplace/internal/infrastructure/session"
	"github.com/example/ht-marketplace/internal/infrastructure/store"
	"github.com/example/ht-marketplace/internal/payment"
	"github.com/example/ht-marketplace/internal/payment/moncash"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()
	log.Logger = logger

	cfg, err := config.LoadAPI()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}
	logger.Info().Msg("connected to postgres")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	// Stores
	productStore := store.NewPostgresProductStore(db)
	cartStore := store.NewPostgresCartStore(db)
	orderStore := store.NewPostgresOrderStore(db)
	txnStore := store.NewPostgresTransactionStore(db)
	eventStore := store.NewPostgresWebhookEventStore(db)
	sessions := session.NewRedisStore(redisClient, cfg.CartIdleWindow)

	// Services
	stockMgr := stock.NewManager(productStore)
	catalogSvc := catalog.NewService(productStore)
	cartSvc := cart.NewService(cartStore, productStore, stockMgr)
	orderSvc := order.NewService(orderStore, producer)

	gateway := moncash.NewClient(cfg.MonCash)
	paymentSvc := payment.NewService(gateway, txnStore, eventStore, orderSvc, cfg.WebhookSecret)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)

	handlers := api.NewHandlers(catalogSvc, cartSvc, orderSvc, paymentSvc, sessions)
	router := api.NewRouter(handlers, jwtService, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("shutdown complete")
}
