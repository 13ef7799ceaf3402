package worker

import (
	"context"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/songbid/internal/helper"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/cradoe/songbid/internal/smtp"
	"github.com/cradoe/songbid/internal/stream"
)

// Stream is the consuming half of stream.KafkaStream.
type Stream interface {
	Consume(ctx context.Context, consumer *stream.StreamConsumer, handle func(ctx context.Context, msg *kafka.Message) error) error
}

// Job is a long running loop such as payment.Reconciler.
type Job interface {
	Run(ctx context.Context) error
}

type Worker struct {
	Stream     Stream
	DB         repository.Database
	Mailer     smtp.MailerInterface
	Helper     *helper.HelperRepository
	Logger     *slog.Logger
	Reconciler Job
}

const (
	// notificationGroupID is used for workers that deliver wallet notifications to users
	notificationGroupID = "wallet-notification-group"
)

// Our workers typically need access to the database and the event stream.
// Worker-specific dependencies can be passed as fields.
func New(wk *Worker) *Worker {
	return &Worker{
		Stream:     wk.Stream,
		DB:         wk.DB,
		Mailer:     wk.Mailer,
		Helper:     wk.Helper,
		Logger:     wk.Logger,
		Reconciler: wk.Reconciler,
	}
}

// Start launches every background loop. They stop when ctx is cancelled and
// are tracked by the helper's WaitGroup.
func (wk *Worker) Start(ctx context.Context) {
	wk.Helper.BackgroundTask(nil, func() error {
		wk.Logger.Info("notification worker started", "topic", notificationTopic())
		return wk.NotificationWorker(ctx)
	})

	if wk.Reconciler != nil {
		wk.Helper.BackgroundTask(nil, func() error {
			wk.Logger.Info("payment reconciler started")
			return wk.Reconciler.Run(ctx)
		})
	}
}
