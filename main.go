package main

import (
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"payment-webhook-service/internal/audit"
	"payment-webhook-service/internal/config"
	"payment-webhook-service/internal/db"
	"payment-webhook-service/internal/kafka"
	"payment-webhook-service/internal/logging"
	"payment-webhook-service/internal/metrics"
	"payment-webhook-service/internal/notify"
	"payment-webhook-service/internal/ratelimit"
	"payment-webhook-service/internal/server"
	"payment-webhook-service/internal/signature"
	"payment-webhook-service/internal/ttlstore"
	"payment-webhook-service/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadConfig(config.GetEnv("CONFIG_PATH", "./config"))

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	connStr := db.ConnString(cfg.Database)
	db.RunMigrations(connStr, "./migrations")

	pool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	repo := db.NewRepository(pool, cfg.Webhook.EventTable)

	var mirror audit.MessageWriter
	if cfg.Kafka.Broker.URL != "" {
		writer := kafka.NewWriter(cfg.Kafka)
		defer writer.Close()
		mirror = writer
	}
	auditor := audit.New(logger, mirror)

	dispatcher := notify.NewDispatcher(cfg.Notifier, logger)
	processor := webhook.NewProcessor(repo, dispatcher, auditor, logger)

	tolerance := time.Duration(cfg.Webhook.ToleranceSeconds) * time.Second
	verifier := signature.NewVerifier(config.GetRequired("WEBHOOK_SECRET"), tolerance)

	limiterStore := ttlstore.New(time.Minute)
	defer limiterStore.Stop()
	limiter := ratelimit.NewLimiter(cfg.RateLimit, limiterStore)

	handler := server.NewWebhookHandler(verifier, processor, limiter, auditor, logger, cfg.Webhook.MaxBodyBytes)
	mux := server.NewMux(handler)

	logger.Info("Starting server", "port", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, mux))
}
