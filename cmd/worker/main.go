// Worker consumes mirrored visits from Kafka and logs them.
// Set KAFKA_BROKERS, VISIT_KAFKA_TOPIC and KAFKA_GROUP_ID.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"visitor-relay/internal/config"
	"visitor-relay/internal/telemetry/consumer"
	otelsetup "visitor-relay/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-worker", cfg.Env, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	logger := providers.NewLogger(cfg.ServiceName+"-worker", os.Stderr, cfg.Level())

	reader := consumer.NewReader(brokers, cfg.VisitKafkaTopic, cfg.KafkaGroupID)
	defer reader.Close()

	logger.Info("worker consuming", "topic", cfg.VisitKafkaTopic, "group", cfg.KafkaGroupID)
	if err := consumer.New(reader, logger).Run(ctx); err != nil {
		logger.Error("worker failed", "error", err)
	} else {
		logger.Info("worker stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}
