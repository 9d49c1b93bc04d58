package config

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Database.PostgresURL != "" {
		t.Fatalf("expected empty PostgresURL, got %q", cfg.Database.PostgresURL)
	}
	if cfg.Email.Provider != ProviderSMTP {
		t.Fatalf("unexpected provider default: %q", cfg.Email.Provider)
	}
	if cfg.Email.SenderEmail != "noreply@contacts-app.com" {
		t.Fatalf("unexpected SenderEmail default: %q", cfg.Email.SenderEmail)
	}
	if cfg.Email.SMTPServer != "smtp.gmail.com" || cfg.Email.SMTPPort != 587 {
		t.Fatalf("unexpected SMTP defaults: %q:%d", cfg.Email.SMTPServer, cfg.Email.SMTPPort)
	}
	if cfg.Send.Timeout != 10*time.Second {
		t.Fatalf("unexpected Send.Timeout default: %v", cfg.Send.Timeout)
	}
	if cfg.Send.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected Send.RetryBackoff default: %v", cfg.Send.RetryBackoff)
	}
	if cfg.Reconcile.Interval != 60*time.Second {
		t.Fatalf("unexpected Reconcile.Interval default: %v", cfg.Reconcile.Interval)
	}
	if cfg.Reconcile.SendingDeadline != 300*time.Second {
		t.Fatalf("unexpected Reconcile.SendingDeadline default: %v", cfg.Reconcile.SendingDeadline)
	}
	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_SendGridProvider(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("EMAIL_PROVIDER", "sendgrid")
	t.Setenv("SENDGRID_API_KEY", "SG.test-key")
	t.Setenv("SENDER_EMAIL", "team@example.com")
	t.Setenv("SENDER_NAME", "Team")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Email.Provider != ProviderSendGrid {
		t.Fatalf("unexpected provider: %q", cfg.Email.Provider)
	}
	if cfg.Email.SendGridAPIKey != "SG.test-key" {
		t.Fatalf("unexpected api key: %q", cfg.Email.SendGridAPIKey)
	}
	if cfg.Email.SenderEmail != "team@example.com" || cfg.Email.SenderName != "Team" {
		t.Fatalf("unexpected sender: %q <%s>", cfg.Email.SenderName, cfg.Email.SenderEmail)
	}
}

func TestLoadAll_WithRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
	if cfg.Redis.TTL != 42*time.Second {
		t.Fatalf("unexpected Redis.TTL: %v", cfg.Redis.TTL)
	}
}

func TestLoadAll_UnsupportedProviderPanics(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("EMAIL_PROVIDER", "carrier-pigeon")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic for unsupported provider")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "EMAIL_PROVIDER") {
			t.Fatalf("unexpected panic value: %v", r)
		}
	}()

	_, _ = LoadAll()
}

func TestLoadAll_InvalidIntPanics(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("SMTP_PORT", "not-a-number")

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for invalid int")
		}
	}()

	_, _ = LoadAll()
}

func clearTestEnv(t *testing.T) {
	t.Helper()

	keys := []string{
		"SERVER_ADDRESS",
		"POSTGRES_URL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_TTL_SECONDS",
		"EMAIL_PROVIDER", "SENDER_EMAIL", "SENDER_NAME",
		"SMTP_SERVER", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD",
		"SENDGRID_API_KEY",
		"SEND_TIMEOUT_SECONDS", "RETRY_BACKOFF_MS",
		"RECONCILE_INTERVAL_SECONDS", "SENDING_DEADLINE_SECONDS",
	}
	for _, k := range keys {
		if _, ok := os.LookupEnv(k); ok {
			t.Setenv(k, "")
			_ = os.Unsetenv(k)
		}
	}
}
