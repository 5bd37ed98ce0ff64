package config

import (
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	Shipping  ShippingConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	Schema       string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host        string
	Port        string
	Password    string
	DB          int
	CategoryTTL time.Duration
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

type PaymentConfig struct {
	StripeSecretKey string
	Currency        string
	Timeout         time.Duration
}

type ShippingConfig struct {
	FreeThreshold decimal.Decimal
	FlatFee       decimal.Decimal
}

type NotifyConfig struct {
	Driver       string // "log" or "kafka"
	From         string
	KafkaBrokers []string
	KafkaTopic   string
}

type RateLimitConfig struct {
	CheckoutRequests int
	CheckoutWindow   time.Duration
}

// IsDevelopment reports whether the server runs outside production
func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_CATEGORY_TTL", "5m")
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("PAYMENT_CURRENCY", "inr")
	viper.SetDefault("PAYMENT_TIMEOUT", "15s")
	viper.SetDefault("SHIPPING_FREE_THRESHOLD", "999")
	viper.SetDefault("SHIPPING_FLAT_FEE", "50")
	viper.SetDefault("NOTIFY_DRIVER", "log")
	viper.SetDefault("NOTIFY_FROM", "orders@storefront.local")
	viper.SetDefault("KAFKA_BROKERS", "localhost:9092")
	viper.SetDefault("KAFKA_NOTIFY_TOPIC", "order.confirmation")
	viper.SetDefault("RATE_LIMIT_CHECKOUT_REQUESTS", 10)
	viper.SetDefault("RATE_LIMIT_CHECKOUT_WINDOW", "1m")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			LogLevel:       viper.GetString("LOG_LEVEL"),
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetString("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     viper.GetString("DB_PASSWORD"),
			Database:     viper.GetString("DB_DATABASE"),
			Schema:       viper.GetString("DB_SCHEMA"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Host:        viper.GetString("REDIS_HOST"),
			Port:        viper.GetString("REDIS_PORT"),
			Password:    viper.GetString("REDIS_PASSWORD"),
			DB:          viper.GetInt("REDIS_DB"),
			CategoryTTL: viper.GetDuration("REDIS_CATEGORY_TTL"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Payment: PaymentConfig{
			StripeSecretKey: viper.GetString("STRIPE_SECRET_KEY"),
			Currency:        viper.GetString("PAYMENT_CURRENCY"),
			Timeout:         viper.GetDuration("PAYMENT_TIMEOUT"),
		},
		Shipping: ShippingConfig{
			FreeThreshold: mustDecimal("SHIPPING_FREE_THRESHOLD"),
			FlatFee:       mustDecimal("SHIPPING_FLAT_FEE"),
		},
		Notify: NotifyConfig{
			Driver:       viper.GetString("NOTIFY_DRIVER"),
			From:         viper.GetString("NOTIFY_FROM"),
			KafkaBrokers: splitList(viper.GetString("KAFKA_BROKERS")),
			KafkaTopic:   viper.GetString("KAFKA_NOTIFY_TOPIC"),
		},
		RateLimit: RateLimitConfig{
			CheckoutRequests: viper.GetInt("RATE_LIMIT_CHECKOUT_REQUESTS"),
			CheckoutWindow:   viper.GetDuration("RATE_LIMIT_CHECKOUT_WINDOW"),
		},
	}
}

func mustDecimal(key string) decimal.Decimal {
	value, err := decimal.NewFromString(viper.GetString(key))
	if err != nil {
		log.Fatalf("Invalid decimal for %s: %v", key, err)
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
