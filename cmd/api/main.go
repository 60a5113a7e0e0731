package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/seat-reservations-and-bookings/internal/adapters/mongo"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/seat-reservations-and-bookings/internal/adapters/redis"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/booking"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/config"
	httphandler "github.com/robertarktes/seat-reservations-and-bookings/internal/http"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/idempotency"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/observability"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/outbox"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/payment"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("srb")
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	gateway := payment.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewaySecret, cfg.GatewayTimeout)

	svc := booking.NewService(repo, gateway, logger,
		booking.WithHoldTTL(cfg.HoldTTL),
		booking.WithAllowAuthorized(cfg.AllowAuthorized),
		booking.WithCheckInPolicy(cfg.CheckInPolicy),
		booking.WithAudit(audit),
		booking.WithCache(redisCache),
	)

	handlers := httphandler.NewHandlers(cfg, svc, idemp, catalog)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp, cfg.JWTSecret)

	// The API process also drains its own outbox; a dedicated binary
	// exists for running the publisher separately.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go outbox.NewPublisher(repo, rabbitPub, logger).Run(ctx)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
