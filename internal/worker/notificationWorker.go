// Terminal payment and withdrawal transitions are published by notify.Dispatcher
// once the money movement has committed. This worker turns those events into
// user emails and activity log rows.
// A payment email is sent at most once: the email_sent flag on the payment is
// checked before sending and set right after.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/notify"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/cradoe/songbid/internal/stream"
	"github.com/shopspring/decimal"
)

type notification struct {
	entity      string
	template    string
	description string
}

// notifications maps an event type to its email and activity entry. An empty
// template means the event is only logged.
var notifications = map[string]notification{
	notify.EventPaymentCompleted:    {repository.ActivityLogPaymentEntity, "payment-completed.tmpl", "Wallet top-up completed"},
	notify.EventPaymentFailed:       {repository.ActivityLogPaymentEntity, "payment-failed.tmpl", "Wallet top-up failed"},
	notify.EventPaymentExpired:      {repository.ActivityLogPaymentEntity, "payment-failed.tmpl", "Wallet top-up expired"},
	notify.EventPaymentCancelled:    {repository.ActivityLogPaymentEntity, "", "Wallet top-up cancelled"},
	notify.EventWithdrawalApproved:  {repository.ActivityLogWithdrawalEntity, "withdrawal-approved.tmpl", "Withdrawal approved"},
	notify.EventWithdrawalRejected:  {repository.ActivityLogWithdrawalEntity, "withdrawal-rejected.tmpl", "Withdrawal rejected"},
	notify.EventWithdrawalCompleted: {repository.ActivityLogWithdrawalEntity, "withdrawal-completed.tmpl", "Withdrawal paid out"},
}

func notificationTopic() string {
	return notify.Topic
}

// consumerRestartDelay separates a failed consumer from its replacement.
var consumerRestartDelay = 5 * time.Second

// NotificationWorker consumes notification events until ctx is cancelled. A
// consumer that stops with an error is replaced by a new one, which resumes
// from the group's last committed offset.
func (wk *Worker) NotificationWorker(ctx context.Context) error {
	for {
		err := wk.Stream.Consume(ctx, &stream.StreamConsumer{
			GroupId: notificationGroupID,
			Topic:   notificationTopic(),
		}, wk.handleMessage)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		wk.Logger.Error("notification consumer stopped, restarting", "topic", notificationTopic(), "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(consumerRestartDelay):
		}
	}
}

func (wk *Worker) handleMessage(ctx context.Context, msg *kafka.Message) error {
	var event notify.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// redelivery cannot fix a malformed payload, so it is committed and dropped
		wk.Logger.Error("discarding malformed notification", "offset", msg.TopicPartition.Offset.String(), "error", err)
		return nil
	}

	return wk.HandleNotification(ctx, event)
}

// HandleNotification delivers a single event. A returned error leaves the
// message uncommitted so it is retried.
func (wk *Worker) HandleNotification(ctx context.Context, event notify.Event) error {
	n, ok := notifications[event.Type]
	if !ok {
		wk.Logger.Warn("unknown notification type", "type", event.Type, "entity_id", event.EntityID)
		return nil
	}

	user, found, err := wk.DB.User().GetOne(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", event.UserID, err)
	}
	if !found {
		wk.Logger.Warn("notification for unknown user", "type", event.Type, "user_id", event.UserID)
		return nil
	}

	data := wk.Helper.NewEmailData()
	data["Name"] = user.FullName()
	data["Amount"] = event.Amount
	data["Currency"] = event.Currency
	data["Reason"] = event.Reason
	data["Reference"] = event.EntityID
	data["Balance"] = decimal.Zero

	var payment *models.PendingPayment

	switch n.entity {
	case repository.ActivityLogPaymentEntity:
		p, found, err := wk.DB.Payment().GetOne(ctx, event.EntityID)
		if err != nil {
			return fmt.Errorf("load payment %s: %w", event.EntityID, err)
		}
		if found {
			if p.EmailSent {
				wk.Logger.Debug("payment notification already delivered", "payment_id", p.ID)
				return nil
			}
			data["Reference"] = p.Reference
			payment = p
		}
	case repository.ActivityLogWithdrawalEntity:
		w, found, err := wk.DB.Withdrawal().GetOne(ctx, event.EntityID)
		if err != nil {
			return fmt.Errorf("load withdrawal %s: %w", event.EntityID, err)
		}
		if found {
			data["Reference"] = w.Reference
		}
	}

	if wallet, found, err := wk.DB.Wallet().GetOne(ctx, user.ID); err == nil && found {
		data["Balance"] = wallet.Balance
	}

	if n.template != "" {
		if err := wk.Mailer.Send(ctx, user.Email, data, n.template); err != nil {
			return fmt.Errorf("send %s email: %w", event.Type, err)
		}
	}

	if payment != nil {
		if _, err := wk.DB.Payment().MarkEmailSent(ctx, payment.ID); err != nil {
			wk.Logger.Error("flag payment email", "payment_id", payment.ID, "error", err)
		}
	}

	_, err = wk.DB.Activity().Insert(ctx, &models.ActivityLog{
		UserID:      user.ID,
		Entity:      n.entity,
		EntityId:    event.EntityID,
		Description: n.description,
	})
	if err != nil {
		wk.Logger.Error("log notification activity", "type", event.Type, "entity_id", event.EntityID, "error", err)
	}

	wk.Logger.Info("notification delivered", "type", event.Type, "user_id", user.ID, "entity_id", event.EntityID)

	return nil
}
