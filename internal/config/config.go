package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	UseMemoryStore     bool
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	AuthJWTSecret      string
	CORSAllowedOrigins []string

	// Per-caller limit on booking requests; zero disables it.
	BookRateLimit float64
	BookRateBurst int

	// Notification fan-out
	NotifyWorkers   int
	NotifyQueueSize int
	RabbitMQURL     string
	NotifyExchange  string

	// AWS (SQS event queue, SES email)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	NotifyQueueURL      string
	EmailProvider       string
	SESFromEmail        string
	SESFromName         string
	SESConfigurationSet string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	Engine EngineSettings
}

// EngineSettings carries the booking engine knobs. It is built once at
// startup and handed to every engine component.
type EngineSettings struct {
	BusinessTimezone   string
	SlotDuration       time.Duration
	StandardPointsCost int64
	DiscountPointsCost int64
	StandardPriceCents int64
	CacheTTL           time.Duration
	StoreTimeout       time.Duration
	CacheTimeout       time.Duration
}

// DefaultEngineSettings mirrors the defaults applied by Load.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		BusinessTimezone:   "America/Sao_Paulo",
		SlotDuration:       30 * time.Minute,
		StandardPointsCost: 10,
		DiscountPointsCost: 5,
		StandardPriceCents: 5000,
		CacheTTL:           60 * time.Second,
		StoreTimeout:       5 * time.Second,
		CacheTimeout:       250 * time.Millisecond,
	}
}

// PointsFor returns the points a booking of the given kind consumes.
func (s EngineSettings) PointsFor(kind string) int64 {
	switch kind {
	case "TRIAL_FREE":
		return 0
	case "DISCOUNT_SECOND":
		return s.DiscountPointsCost
	default:
		return s.StandardPointsCost
	}
}

// PriceCentsFor returns the list price recorded on an appointment of kind.
func (s EngineSettings) PriceCentsFor(kind string) int64 {
	switch kind {
	case "TRIAL_FREE":
		return 0
	case "DISCOUNT_SECOND":
		return s.StandardPriceCents / 2
	default:
		return s.StandardPriceCents
	}
}

// Validate reports settings the engine cannot run with.
func (s EngineSettings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.BusinessTimezone) == "" {
		errs = append(errs, errors.New("business timezone is required"))
	} else if _, err := time.LoadLocation(s.BusinessTimezone); err != nil {
		errs = append(errs, fmt.Errorf("business timezone %q: %w", s.BusinessTimezone, err))
	}
	if s.SlotDuration < time.Minute || s.SlotDuration%time.Minute != 0 {
		errs = append(errs, errors.New("slot duration must be a positive whole number of minutes"))
	}
	if s.StandardPointsCost < 0 || s.DiscountPointsCost < 0 {
		errs = append(errs, errors.New("points cost must not be negative"))
	}
	if s.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache ttl must be positive"))
	}
	if s.StoreTimeout <= 0 || s.CacheTimeout <= 0 {
		errs = append(errs, errors.New("store and cache timeouts must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	defaults := DefaultEngineSettings()
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		UseMemoryStore:     getEnvAsBool("USE_MEMORY_STORE", false),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		BookRateLimit:      getEnvAsFloat("BOOK_RATE_LIMIT", 2),
		BookRateBurst:      getEnvAsInt("BOOK_RATE_BURST", 5),

		NotifyWorkers:   getEnvAsInt("NOTIFY_WORKERS", 4),
		NotifyQueueSize: getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		NotifyExchange:  getEnv("NOTIFY_EXCHANGE", "booking.events"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		NotifyQueueURL:      getEnv("NOTIFY_QUEUE_URL", ""),
		EmailProvider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "")),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESFromName:         getEnv("SES_FROM_NAME", "Barber Booking"),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Barber Booking"),

		Engine: EngineSettings{
			BusinessTimezone:   getEnv("BUSINESS_TIMEZONE", defaults.BusinessTimezone),
			SlotDuration:       getEnvAsDuration("SLOT_DURATION", defaults.SlotDuration),
			StandardPointsCost: int64(getEnvAsInt("STANDARD_POINTS_COST", int(defaults.StandardPointsCost))),
			DiscountPointsCost: int64(getEnvAsInt("DISCOUNT_POINTS_COST", int(defaults.DiscountPointsCost))),
			StandardPriceCents: int64(getEnvAsInt("STANDARD_PRICE_CENTS", int(defaults.StandardPriceCents))),
			CacheTTL:           getEnvAsDuration("AVAILABILITY_CACHE_TTL", defaults.CacheTTL),
			StoreTimeout:       getEnvAsDuration("STORE_TIMEOUT", defaults.StoreTimeout),
			CacheTimeout:       getEnvAsDuration("CACHE_TIMEOUT", defaults.CacheTimeout),
		},
	}
}

// Validate checks the settings that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	if !c.UseMemoryStore && strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("config: DATABASE_URL is required unless USE_MEMORY_STORE is set")
	}
	if c.NotifyWorkers <= 0 || c.NotifyQueueSize <= 0 {
		return errors.New("config: NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive")
	}
	return c.Engine.Validate()
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
