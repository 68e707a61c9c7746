package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/romariotrain/catalog-bot/internal/catalog/botapi"
	"github.com/romariotrain/catalog-bot/internal/catalog/kafka"
	"github.com/romariotrain/catalog-bot/internal/catalog/outbox"
	"github.com/romariotrain/catalog-bot/internal/catalog/service"
	"github.com/romariotrain/catalog-bot/internal/storage/postgres"
	"github.com/romariotrain/catalog-bot/internal/telegram"
)

func run(ctx context.Context, logger zerolog.Logger) error {
	_ = godotenv.Load()

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		return fmt.Errorf("BOT_TOKEN is empty")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is empty")
	}
	ownerID, err := envInt64("OWNER_ID")
	if err != nil {
		return err
	}
	archiveChatID, err := envInt64("ARCHIVE_CHAT_ID")
	if err != nil {
		return err
	}
	forceChannel := os.Getenv("FORCE_CHANNEL")

	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	// Dependencies
	outboxRepo := postgres.NewOutboxRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	catalogRepo := postgres.NewCatalogRepo(db, outboxRepo)
	chatRepo := postgres.NewChatRepo(db)

	gateway, err := telegram.New(token, logger)
	if err != nil {
		return err
	}

	ingestor, err := service.NewIngestor(service.IngestorConfig{
		Sessions:      sessionRepo,
		Catalog:       catalogRepo,
		Forwarder:     gateway,
		ArchiveChatID: archiveChatID,
		OwnerID:       ownerID,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	catalogSvc := service.NewCatalog(catalogRepo, gateway, service.NewRatePacer(time.Second), logger)

	handler, err := botapi.New(botapi.Config{
		Gateway:      gateway,
		Ingestor:     ingestor,
		Catalog:      catalogSvc,
		Chats:        chatRepo,
		OwnerID:      ownerID,
		ForceChannel: forceChannel,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	// The outbox publisher is optional: without Kafka the bot still works,
	// events just accumulate unprocessed.
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("KAFKA_TOPIC")
		if topic == "" {
			topic = "catalog-events"
		}

		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   topic,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()

		publisher, err := outbox.NewPublisher(outbox.PublisherConfig{
			OutboxRepo: outboxRepo,
			Producer:   producer,
			Interval:   5 * time.Second,
			BatchSize:  100,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("outbox publisher: %w", err)
		}
		go func() { _ = publisher.Start(ctx) }()
	}

	return handler.Run(ctx, gateway.Updates(ctx))
}

func envInt64(name string) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is empty", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}
