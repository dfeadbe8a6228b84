package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mukando/payment-service/config"
	"github.com/mukando/payment-service/internal/api/rest"
	"github.com/mukando/payment-service/internal/kafka"
	"github.com/mukando/payment-service/internal/kafka/producer"
	"github.com/mukando/payment-service/internal/metrics"
	"github.com/mukando/payment-service/internal/pesepay"
	"github.com/mukando/payment-service/internal/service"
	"github.com/mukando/payment-service/pkg/logger"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		// Logger is not up yet.
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg.Logging.Level)
	defer log.Sync()

	log.Infow("Payment service starting up", "env", cfg.Server.Env)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	gateway := pesepay.NewClient(pesepay.Config{
		IntegrationKey: cfg.PesePay.IntegrationKey,
		EncryptionKey:  cfg.PesePay.EncryptionKey,
		BaseURL:        cfg.PesePay.BaseURL,
		ReturnURL:      cfg.PesePay.ReturnURL,
		ResultURL:      cfg.PesePay.ResultURL,
		Environment:    cfg.PesePay.Environment,
		Timeout:        time.Duration(cfg.PesePay.TimeoutSeconds) * time.Second,
	}, log)

	var recorder service.TransactionRecorder
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopics(cfg.Kafka.Brokers, log); err != nil {
			log.Warnw("Failed to ensure Kafka topics, continuing", "error", err)
		}

		saramaProducer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafka.NewSaramaConfig(kafka.NewConfig(cfg.Kafka.Brokers)))
		if err != nil {
			log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		} else {
			transactionProducer := producer.NewTransactionProducer(saramaProducer, log)
			defer func() {
				if err := transactionProducer.Close(); err != nil {
					log.Errorw("Error closing Kafka producer", "error", err)
				}
			}()
			recorder = transactionProducer
			log.Infow("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	processor := service.NewProcessor(gateway, recorder, paymentMetrics, log)

	router := rest.SetupRouter(processor, registry, log)
	server := rest.NewServer(router, cfg, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalw("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}
}
