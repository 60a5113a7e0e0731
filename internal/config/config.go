package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
)

type Config struct {
	CRDBDSN   string
	MongoURI  string
	RedisAddr string
	RabbitURL string
	JWTSecret string

	// HoldTTL is the hold window for temporary bookings.
	HoldTTL        time.Duration
	ReaperInterval time.Duration

	GatewayBaseURL string
	GatewayKeyID   string
	GatewaySecret  string
	GatewayTimeout time.Duration
	// AllowAuthorized accepts payments that are authorized but not yet
	// captured. Policy-dependent; off by default.
	AllowAuthorized bool

	CheckInPolicy domain.CheckInPolicy

	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	holdTTL, _ := time.ParseDuration(os.Getenv("HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = 15 * time.Minute
	}
	reaperInterval, _ := time.ParseDuration(os.Getenv("REAPER_INTERVAL"))
	if reaperInterval == 0 {
		reaperInterval = time.Minute
	}
	gatewayTimeout, _ := time.ParseDuration(os.Getenv("GATEWAY_TIMEOUT"))
	if gatewayTimeout == 0 {
		gatewayTimeout = 5 * time.Second
	}

	policy := domain.CheckInSingleUse
	if os.Getenv("CHECKIN_POLICY") == string(domain.CheckInMultiUse) {
		policy = domain.CheckInMultiUse
	}

	return &Config{
		CRDBDSN:         os.Getenv("CRDB_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		HoldTTL:         holdTTL,
		ReaperInterval:  reaperInterval,
		GatewayBaseURL:  os.Getenv("GATEWAY_BASE_URL"),
		GatewayKeyID:    os.Getenv("GATEWAY_KEY_ID"),
		GatewaySecret:   os.Getenv("GATEWAY_SECRET"),
		GatewayTimeout:  gatewayTimeout,
		AllowAuthorized: os.Getenv("ALLOW_AUTHORIZED_CAPTURE") == "true",
		CheckInPolicy:   policy,
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
