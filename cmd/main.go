package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"geofeatures/internal/models"
	"geofeatures/internal/server"
	"geofeatures/internal/storage"
)

func main() {
	cfg, err := models.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := storage.NewStorage(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer db.Close()

	// Kafka producer
	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: []string{cfg.KafkaBroker},
		Topic:   cfg.KafkaTopic,
	})

	// Start Kafka consumer in background: buffers queued features at the
	// default radius as their ids arrive.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		consumer := kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{cfg.KafkaBroker},
			Topic:   cfg.KafkaTopic,
			GroupID: "feature-buffer-group",
		})
		defer consumer.Close()

		for {
			msg, err := consumer.ReadMessage(ctx)
			if err != nil {
				if err == context.Canceled {
					return
				}
				log.Printf("error reading message: %v", err)
				continue
			}

			id, err := uuid.Parse(string(msg.Value))
			if err != nil {
				log.Printf("skipping malformed feature id %q: %v", msg.Value, err)
				continue
			}

			err = db.ProcessFeature(ctx, id, cfg.DefaultBufferM)
			switch {
			case errors.Is(err, storage.ErrAlreadyBuffered):
				// Redelivery or a manual buffer call won the race.
				log.Printf("feature %s already buffered, skipping", id)
			case errors.Is(err, storage.ErrFeatureNotFound):
				log.Printf("feature %s no longer exists, skipping", id)
			case err != nil:
				log.Printf("error buffering feature %s: %v", id, err)
			}
		}
	}()

	srv := server.NewServer(cfg, db, producer)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	srv.Stop()
	producer.Close()
}
