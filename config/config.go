package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // EVENTS_TIMEZONE must resolve on minimal images

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Email       EmailConfig
	AMQP        AMQPConfig
	Events      EventsConfig
	FrontendURL string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/events?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
	Issuer      string
}

// AWSConfig holds AWS credentials and the event image bucket. Uploads are
// disabled when ImagesBucket is empty.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ImagesBucket    string
	PublicBaseURL   string
	PublicRead      bool
}

// EmailConfig for SMTP. Mail is only logged when SMTPHost is empty.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
}

// AMQPConfig enables "event.created" messages on RabbitMQ when URL is set.
type AMQPConfig struct {
	URL string
}

// EventsConfig holds the lifecycle engine settings, read from EVENTS_* variables.
type EventsConfig struct {
	LockTimeout        time.Duration `split_words:"true" default:"900s"`
	Timezone           string        `default:"Europe/Berlin"`
	TransitionInterval time.Duration `split_words:"true" default:"5m"`
	HistoryLimit       int           `split_words:"true" default:"50"`
}

// Location resolves Timezone.
func (c EventsConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("events timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c EventsConfig) validate() error {
	if c.LockTimeout <= 0 {
		return fmt.Errorf("EVENTS_LOCK_TIMEOUT must be positive, got %s", c.LockTimeout)
	}
	if c.TransitionInterval <= 0 {
		return fmt.Errorf("EVENTS_TRANSITION_INTERVAL must be positive, got %s", c.TransitionInterval)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("EVENTS_HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	_, err := c.Location()
	return err
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (DATABASE_URL), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// SMTPFrom formats the envelope sender, "Name <address>" when a name is set.
func (c EmailConfig) SMTPFrom() string {
	if c.FromName == "" {
		return c.FromAddress
	}
	return fmt.Sprintf("%s <%s>", c.FromName, c.FromAddress)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	_ = godotenv.Load("env")

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "events"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
			Issuer:      getEnv("JWT_ISSUER", "intranet-events"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "eu-central-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ImagesBucket:    getEnv("AWS_S3_IMAGES_BUCKET", ""),
			PublicBaseURL:   getEnv("AWS_S3_PUBLIC_BASE_URL", ""),
			PublicRead:      getEnvBool("AWS_S3_PUBLIC_READ", false),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Intranet Events"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
		},
		AMQP: AMQPConfig{
			URL: getEnv("AMQP_URL", ""),
		},
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
	}

	if err := envconfig.Process("EVENTS", &cfg.Events); err != nil {
		return nil, fmt.Errorf("events config: %w", err)
	}
	if err := cfg.Events.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
