package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"sparesdb"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     string `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	KafkaEnabled bool   `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBroker  string `envconfig:"KAFKA_BROKER" default:"localhost:9092"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"order_events"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"change-me-in-production"`

	// Hosted payment provider credentials and business identity shown
	// on the provider's checkout page and dashboard.
	PaymentPublicKey  string `envconfig:"PAYMENT_PUBLIC_KEY" default:""`
	PaymentSecretKey  string `envconfig:"PAYMENT_SECRET_KEY" default:""`
	PaymentLiveMode   bool   `envconfig:"PAYMENT_LIVE_MODE" default:"false"`
	PaymentAPIBaseURL string `envconfig:"PAYMENT_API_BASE_URL" default:""`

	BusinessName  string `envconfig:"BUSINESS_NAME" default:"Triomar Spares"`
	BusinessPhone string `envconfig:"BUSINESS_PHONE" default:""`
	BusinessEmail string `envconfig:"BUSINESS_EMAIL" default:""`

	// Externally reachable host used to build redirect/callback links
	// for hosted card and wallet sessions.
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	Currency          string  `envconfig:"CURRENCY" default:"KES"`
	MobileMoneyMinAmt float64 `envconfig:"MOBILE_MONEY_MIN_AMOUNT" default:"10"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
