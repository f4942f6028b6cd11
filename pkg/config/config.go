package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	Bookings   BookingsConfig
	Payments   PaymentsConfig
	Analytics  AnalyticsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds verification material for tokens issued by the account service.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig governs slot materialization from provider availability.
type SchedulingConfig struct {
	HorizonWeeks int
	SlotDuration time.Duration
}

// BookingsConfig controls the checkout hold sweeper.
type BookingsConfig struct {
	HoldTTL       time.Duration
	SweepInterval time.Duration
	SweepWorkers  int
}

// PaymentsConfig configures the checkout gateway boundary.
type PaymentsConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
	MaxAmount     decimal.Decimal
	Timeout       time.Duration
}

// AnalyticsConfig governs cache behaviour for the provider analytics endpoint.
type AnalyticsConfig struct {
	CacheTTL   time.Duration
	SampleSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduling = SchedulingConfig{
		HorizonWeeks: v.GetInt("SCHEDULING_HORIZON_WEEKS"),
		SlotDuration: parseDuration(v.GetString("SCHEDULING_SLOT_DURATION"), time.Hour),
	}
	if cfg.Scheduling.HorizonWeeks < 1 {
		cfg.Scheduling.HorizonWeeks = 1
	}

	cfg.Bookings = BookingsConfig{
		HoldTTL:       parseDuration(v.GetString("BOOKING_HOLD_TTL"), 30*time.Minute),
		SweepInterval: parseDuration(v.GetString("BOOKING_SWEEP_INTERVAL"), 5*time.Minute),
		SweepWorkers:  v.GetInt("BOOKING_SWEEP_WORKERS"),
	}
	// The gateway cannot expire a checkout session sooner than 30 minutes
	// after creation; a hold must live at least as long as its session.
	if cfg.Bookings.HoldTTL < 30*time.Minute {
		cfg.Bookings.HoldTTL = 30 * time.Minute
	}

	maxAmount, err := decimal.NewFromString(v.GetString("PAYMENTS_MAX_AMOUNT"))
	if err != nil {
		return nil, err
	}
	cfg.Payments = PaymentsConfig{
		SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		Currency:      v.GetString("PAYMENTS_CURRENCY"),
		SuccessURL:    v.GetString("PAYMENTS_SUCCESS_URL"),
		CancelURL:     v.GetString("PAYMENTS_CANCEL_URL"),
		MaxAmount:     maxAmount,
		Timeout:       parseDuration(v.GetString("PAYMENTS_TIMEOUT"), 15*time.Second),
	}

	cfg.Analytics = AnalyticsConfig{
		CacheTTL:   parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
		SampleSize: v.GetInt("ANALYTICS_SAMPLE_SIZE"),
	}
	if cfg.Analytics.SampleSize <= 0 {
		cfg.Analytics.SampleSize = 10
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "slotwise")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULING_HORIZON_WEEKS", 4)
	v.SetDefault("SCHEDULING_SLOT_DURATION", "1h")

	v.SetDefault("BOOKING_HOLD_TTL", "30m")
	v.SetDefault("BOOKING_SWEEP_INTERVAL", "5m")
	v.SetDefault("BOOKING_SWEEP_WORKERS", 1)

	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("PAYMENTS_CURRENCY", "usd")
	v.SetDefault("PAYMENTS_SUCCESS_URL", "http://localhost:8080/payment/success")
	v.SetDefault("PAYMENTS_CANCEL_URL", "http://localhost:8080/payment/cancel")
	v.SetDefault("PAYMENTS_MAX_AMOUNT", "999999.99")
	v.SetDefault("PAYMENTS_TIMEOUT", "15s")

	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")
	v.SetDefault("ANALYTICS_SAMPLE_SIZE", 10)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
