package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"exam-gateway/cmd"
	"exam-gateway/internal/database"
	"exam-gateway/internal/messaging"
	"exam-gateway/internal/reconciler"
	"exam-gateway/internal/storage"
)

type ReconcilerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	BatchSize     int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
	MaxAttempts   int           `env:"MAX_PUBLISH_ATTEMPTS" envDefault:"10"`
}

func main() {
	log.Println("Starting reconciler...")

	cmd.LoadEnvFile()

	var cfg ReconcilerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL, messaging.ExamEventQueue)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := reconciler.New(db, store, publisher, reconciler.Config{
		Interval:    cfg.SweepInterval,
		BatchSize:   cfg.BatchSize,
		MaxAttempts: cfg.MaxAttempts,
	})

	log.Printf("Reconciler sweeping every %s", cfg.SweepInterval)
	r.Run(ctx)

	log.Println("Reconciler stopped.")
}
