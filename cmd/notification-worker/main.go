package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/adapters/rabbit"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/config"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/observability"
)

// The notification worker consumes booking events off the broker and
// hands them to the delivery channel (email, push). Delivery itself is
// stubbed to a log line; the interesting part is the at-least-once
// consumption with manual acks.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "srb.notifications", "booking.*")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to start consuming: %v", err)
	}

	go func() {
		for d := range deliveries {
			var event map[string]interface{}
			if err := json.Unmarshal(d.Body, &event); err != nil {
				logger.Error("malformed event: ", err)
				d.Nack(false, false)
				continue
			}
			logger.WithField("routing_key", d.RoutingKey).
				WithField("booking_id", event["booking_id"]).
				Info("notification dispatched")
			d.Ack(false)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown notification worker")
}
