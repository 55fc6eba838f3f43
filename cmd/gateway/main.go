package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"exam-gateway/cmd"
	"exam-gateway/internal/api"
	"exam-gateway/internal/database"
	"exam-gateway/internal/exam"
	"exam-gateway/internal/exam/ecg"
	"exam-gateway/internal/exam/xray"
	"exam-gateway/internal/messaging"
	"exam-gateway/internal/pipeline"
	"exam-gateway/internal/ratelimit"
	"exam-gateway/internal/scanner"
	"exam-gateway/internal/storage"
)

type GatewayConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	ExamBucketName    string `env:"EXAM_BUCKET_NAME" envDefault:"exams"`

	ClamdAddress string        `env:"CLAMD_ADDRESS" envDefault:"tcp://localhost:3310"`
	ScanTimeout  time.Duration `env:"SCAN_TIMEOUT" envDefault:"30s"`

	RateLimitQuota   int           `env:"RATE_LIMIT_QUOTA" envDefault:"10"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitIdleTTL time.Duration `env:"RATE_LIMIT_IDLE_TTL" envDefault:"15m"`

	UploadTimeout   time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30s"`
	PublishTimeout  time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"10s"`
	MaxInfraRetries uint64        `env:"MAX_INFRA_RETRIES" envDefault:"3"`

	XrayTargetWidth  int     `env:"XRAY_TARGET_WIDTH" envDefault:"1024"`
	XrayTargetHeight int     `env:"XRAY_TARGET_HEIGHT" envDefault:"1024"`
	EcgMaxAmplitude  float64 `env:"ECG_MAX_AMPLITUDE" envDefault:"2.0"`

	MaxBodyBytes int64  `env:"MAX_BODY_BYTES" envDefault:"33554432"`
	APIPort      string `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting exam gateway...")

	cmd.LoadEnvFile()

	var cfg GatewayConfig
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
	if err := store.CreateBucket(context.Background(), cfg.ExamBucketName); err != nil {
		log.Fatalf("Failed to ensure exam bucket %s: %v", cfg.ExamBucketName, err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL, messaging.ExamEventQueue)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	scan, err := scanner.NewClamdScanner(cfg.ClamdAddress, cfg.ScanTimeout)
	if err != nil {
		log.Fatalf("Failed to connect to clamd at %s: %v", cfg.ClamdAddress, err)
	}

	limiter := ratelimit.NewHospitalLimiter(ratelimit.Config{
		Quota:   cfg.RateLimitQuota,
		Window:  cfg.RateLimitWindow,
		IdleTTL: cfg.RateLimitIdleTTL,
	})
	stopEviction := make(chan struct{})
	defer close(stopEviction)
	limiter.StartEviction(stopEviction)

	registry := exam.NewRegistry()
	registry.Register(exam.TypeXray,
		xray.NewValidator(xray.DefaultValidatorConfig()),
		xray.NewTransformer(xray.TransformerConfig{TargetWidth: cfg.XrayTargetWidth, TargetHeight: cfg.XrayTargetHeight}))
	registry.Register(exam.TypeEcg,
		ecg.NewValidator(ecg.ValidatorConfig{MaxAmplitude: cfg.EcgMaxAmplitude}),
		ecg.NewTransformer(ecg.TransformerConfig{MaxAmplitude: cfg.EcgMaxAmplitude}))

	p := pipeline.New(limiter, scan, registry, store, publisher, db, pipeline.Config{
		Bucket:          cfg.ExamBucketName,
		UploadTimeout:   cfg.UploadTimeout,
		PublishTimeout:  cfg.PublishTimeout,
		MaxInfraRetries: cfg.MaxInfraRetries,
	})

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	api.NewGatewayService(db, p, cfg.MaxBodyBytes).AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Gateway listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
