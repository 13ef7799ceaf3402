package mocks

import (
	"io"
	"log/slog"
	"time"

	"github.com/cradoe/songbid/internal/config"
)

// NewConfig returns a configuration suitable for tests: fast polling, no
// external endpoints.
func NewConfig() *config.Config {
	var cfg config.Config

	cfg.BaseURL = "http://localhost"
	cfg.HttpPort = 8080
	cfg.Db.Dsn = "mock_dsn"
	cfg.Db.Automigrate = false
	cfg.Jwt.SecretKey = "test_secret"
	cfg.Notifications.Email = ""

	cfg.Smtp.Host = "smtp.example.com"
	cfg.Smtp.Port = 587
	cfg.Smtp.Username = "user@example.com"
	cfg.Smtp.Password = "password"
	cfg.Smtp.From = "no-reply@example.com"

	cfg.Payments.PollInterval = 5 * time.Millisecond
	cfg.Payments.MaxTransportErrors = 5
	cfg.Payments.DelayedAfter = 200 * time.Millisecond
	cfg.Payments.ExpireAfter = time.Hour
	cfg.Payments.ReconcileEvery = 10 * time.Millisecond
	cfg.Payments.ReconcileBatch = 50

	cfg.Bulk.Concurrency = 4

	cfg.KafkaServers = "localhost:9092"
	cfg.RedisServer = "localhost:6379"

	return &cfg
}

// NewLogger returns a logger that discards everything.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
