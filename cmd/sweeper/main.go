package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/ht-marketplace/internal/config"
	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/domain/stock"
	"github.com/example/ht-marketplace/internal/infrastructure/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweeper").Logger()
	log.Logger = logger

	cfg, err := config.Load()
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

	productStore := store.NewPostgresProductStore(db)
	cartStore := store.NewPostgresCartStore(db)
	cartSvc := cart.NewService(cartStore, productStore, stock.NewManager(productStore))

	logger.Info().
		Dur("idle_window", cfg.CartIdleWindow).
		Dur("interval", cfg.SweepInterval).
		Msg("cart sweeper started")

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown complete")
			return
		case <-ticker.C:
			n, err := cartSvc.ExpireIdle(ctx, cfg.CartIdleWindow)
			if err != nil {
				logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("carts", n).Msg("expired idle carts")
			}
		}
	}
}
