package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/ht-marketplace/internal/config"
	"github.com/example/ht-marketplace/internal/email"
	"github.com/example/ht-marketplace/internal/infrastructure/kafka"
	"github.com/example/ht-marketplace/internal/notification"
)

const consumerGroup = "email-notifier"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "notifier").Logger()
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom)
	handler := notification.NewHandler(emailSvc)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup)
	defer consumer.Close()

	logger.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Str("group", consumerGroup).
		Msg("notifier consuming order events")

	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("consumer error")
	}
	logger.Info().Msg("shutdown complete")
}
