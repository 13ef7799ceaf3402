package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cradoe/songbid/internal/bid"
	"github.com/cradoe/songbid/internal/bulk"
	"github.com/cradoe/songbid/internal/cache"
	"github.com/cradoe/songbid/internal/config"
	"github.com/cradoe/songbid/internal/env"
	"github.com/cradoe/songbid/internal/errHandler"
	"github.com/cradoe/songbid/internal/gateway"
	"github.com/cradoe/songbid/internal/gateway/mpesa"
	"github.com/cradoe/songbid/internal/helper"
	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/notify"
	"github.com/cradoe/songbid/internal/payment"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/cradoe/songbid/internal/smtp"
	"github.com/cradoe/songbid/internal/stream"
	"github.com/cradoe/songbid/internal/withdrawal"
	"github.com/cradoe/songbid/internal/worker"
	"github.com/joho/godotenv"
)

// LockStore holds the reconciler's cross-instance lock and is pinged by the
// status endpoint. *cache.Cache is the production implementation.
type LockStore interface {
	payment.Locker
	Ping(ctx context.Context) error
}

// Essential services and resources are exposed to the application
// this makes it possible for methods to have access to these items and when they need them
type Application struct {
	Config       config.Config
	DB           repository.Database
	Logger       *slog.Logger
	Mailer       smtp.MailerInterface
	WG           sync.WaitGroup
	errorHandler *errHandler.ErrorRepository
	helper       *helper.HelperRepository
	Kafka        *stream.KafkaStream
	Cache        LockStore

	Ledger      *ledger.Service
	Payments    *payment.Engine
	Reconciler  *payment.Reconciler
	Withdrawals *withdrawal.Service
	Bids        *bid.Service
	Bulk        *bulk.Operator

	// ctx outlives requests and is cancelled on shutdown; background watchers
	// and workers run under it
	ctx    context.Context
	cancel context.CancelFunc
}

// LoadConfig reads the configuration from the environment.
// Default values are provided for these items and these should strictly be values for development mode only
// make sure no production-level value is exposed as default value here
func LoadConfig() config.Config {
	var cfg config.Config

	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/db")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)

	cfg.Jwt.SecretKey = env.GetString("JWT_SECRET_KEY", "ajf5nx3qmp6zquevllxocxqvyz42ypuo")

	// server errors won't be sent via email if the NOTIFICATIONS_EMAIL wasn't set in the .env file
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Example Name <no_reply@example.org>")

	cfg.Mpesa.BaseURL = env.GetString("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke")
	cfg.Mpesa.ConsumerKey = env.GetString("MPESA_CONSUMER_KEY", "")
	cfg.Mpesa.ConsumerSecret = env.GetString("MPESA_CONSUMER_SECRET", "")
	cfg.Mpesa.PassKey = env.GetString("MPESA_PASSKEY", "")
	cfg.Mpesa.ShortCode = env.GetString("MPESA_SHORTCODE", "174379")
	cfg.Mpesa.CallbackURL = env.GetString("MPESA_CALLBACK_URL", cfg.BaseURL+"/mpesa/callback")

	cfg.Payments.PollInterval = env.GetDuration("PAYMENTS_POLL_INTERVAL", payment.DefaultPolicy.Interval)
	cfg.Payments.MaxTransportErrors = env.GetInt("PAYMENTS_MAX_TRANSPORT_ERRORS", payment.DefaultPolicy.MaxTransportErrors)
	cfg.Payments.DelayedAfter = env.GetDuration("PAYMENTS_DELAYED_AFTER", payment.DefaultPolicy.DelayedAfter)
	cfg.Payments.ExpireAfter = env.GetDuration("PAYMENTS_EXPIRE_AFTER", payment.DefaultExpireAfter)
	cfg.Payments.ReconcileEvery = env.GetDuration("PAYMENTS_RECONCILE_EVERY", payment.DefaultReconcileEvery)
	cfg.Payments.ReconcileBatch = env.GetInt("PAYMENTS_RECONCILE_BATCH", payment.DefaultReconcileBatch)

	cfg.Bulk.Concurrency = env.GetInt("BULK_CONCURRENCY", 8)

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")
	cfg.RedisServer = env.GetString("REDIS_SERVER", "localhost:6379")

	return cfg
}

func NewApplication(logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", "error", err)
	}

	cfg := LoadConfig()

	db, err := repository.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	kafkaStream := stream.New(cfg.KafkaServers, logger)

	gw := mpesa.New(mpesa.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		PassKey:        cfg.Mpesa.PassKey,
		ShortCode:      cfg.Mpesa.ShortCode,
		CallbackURL:    cfg.Mpesa.CallbackURL,
	})

	app := newApplication(cfg, db, logger, mailer, gw, kafkaStream, cache.New(cfg.RedisServer, 0))
	app.Kafka = kafkaStream

	return app, nil
}

// newApplication wires the services on top of already opened resources.
func newApplication(cfg config.Config, db repository.Database, logger *slog.Logger, mailer smtp.MailerInterface,
	gw gateway.Gateway, publisher notify.Publisher, locks LockStore) *Application {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		Config: cfg,
		DB:     db,
		Logger: logger,
		Mailer: mailer,
		Cache:  locks,
		ctx:    ctx,
		cancel: cancel,
	}

	app.helper = helper.New(cfg.BaseURL, &app.WG, logger)
	app.errorHandler = errHandler.New(cfg.Notifications.Email, mailer, logger, app.helper)

	notifier := notify.NewDispatcher(publisher, logger)

	app.Ledger = ledger.NewService(db, logger)
	app.Payments = payment.NewEngine(db, app.Ledger, gw, notifier, logger)
	app.Reconciler = payment.NewReconciler(app.Payments, locks, &app.Config, logger)
	app.Withdrawals = withdrawal.NewService(db, app.Ledger, notifier, logger)
	app.Bids = bid.NewService(db, app.Ledger, logger)
	app.Bulk = bulk.NewOperator(app.Withdrawals, app.Bids, cfg.Bulk.Concurrency, logger)

	return app
}

// StartWorkers runs the notification consumer and the payment reconciler
// until the application shuts down.
func (app *Application) StartWorkers() {
	wk := worker.New(&worker.Worker{
		Stream:     app.Kafka,
		DB:         app.DB,
		Mailer:     app.Mailer,
		Helper:     app.helper,
		Logger:     app.Logger,
		Reconciler: app.Reconciler,
	})

	wk.Start(app.ctx)
}

// Close stops background work and releases the application's connections.
func (app *Application) Close() error {
	app.cancel()
	app.WG.Wait()

	if app.Kafka != nil {
		app.Kafka.Close()
	}
	if closer, ok := app.Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			app.Logger.Error("close cache", "error", err)
		}
	}

	return app.DB.Close()
}
