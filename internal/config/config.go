package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Email     EmailConfig
	Send      SendConfig
	Reconcile ReconcileConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	// Empty means the in-memory store is used.
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type EmailConfig struct {
	Provider       string
	SenderEmail    string
	SenderName     string
	SMTPServer     string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SendGridAPIKey string
}

type SendConfig struct {
	Timeout      time.Duration
	RetryBackoff time.Duration
}

type ReconcileConfig struct {
	Interval        time.Duration
	SendingDeadline time.Duration
}

const (
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
)

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Email: EmailConfig{
			Provider:       getEnv("EMAIL_PROVIDER", ProviderSMTP),
			SenderEmail:    getEnv("SENDER_EMAIL", "noreply@contacts-app.com"),
			SenderName:     getEnv("SENDER_NAME", "Contacts App"),
			SMTPServer:     getEnv("SMTP_SERVER", "smtp.gmail.com"),
			SMTPPort:       getEnvInt("SMTP_PORT", 587),
			SMTPUsername:   os.Getenv("SMTP_USERNAME"),
			SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		},
		Send: SendConfig{
			Timeout:      time.Duration(getEnvInt("SEND_TIMEOUT_SECONDS", 10)) * time.Second,
			RetryBackoff: time.Duration(getEnvInt("RETRY_BACKOFF_MS", 500)) * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			Interval:        time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 60)) * time.Second,
			SendingDeadline: time.Duration(getEnvInt("SENDING_DEADLINE_SECONDS", 300)) * time.Second,
		},
		Redis: loadRedisConfig(),
	}

	validate(cfg)
	return cfg, nil
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
		TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 86400)) * time.Second,
	}
}

func validate(cfg *Config) {
	if cfg.Email.Provider != ProviderSMTP && cfg.Email.Provider != ProviderSendGrid {
		panic(fmt.Sprintf("unsupported EMAIL_PROVIDER: %s", cfg.Email.Provider))
	}
	if cfg.Email.SMTPPort <= 0 {
		panic("SMTP_PORT must be > 0")
	}
	if cfg.Send.Timeout <= 0 {
		panic("SEND_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Reconcile.Interval <= 0 {
		panic("RECONCILE_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Reconcile.SendingDeadline <= 0 {
		panic("SENDING_DEADLINE_SECONDS must be > 0")
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
