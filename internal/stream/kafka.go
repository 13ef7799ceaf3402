package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

type KafkaStream struct {
	kafkaServers string
	logger       *slog.Logger

	// retryBackoff overrides minRetryBackoff when set
	retryBackoff time.Duration

	mu       sync.Mutex
	producer *kafka.Producer
}

func New(kafkaServers string, logger *slog.Logger) *KafkaStream {
	return &KafkaStream{
		kafkaServers: kafkaServers,
		logger:       logger,
	}
}

// getProducer lazily creates the shared producer and starts draining its
// delivery reports.
func (st *KafkaStream) getProducer() (*kafka.Producer, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.producer != nil {
		return st.producer, nil
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  st.kafkaServers,
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, err
	}

	go func() {
		for e := range producer.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				st.logger.Error("message delivery failed", "topic", *m.TopicPartition.Topic, "error", m.TopicPartition.Error)
			}
		}
	}()

	st.producer = producer
	return producer, nil
}

// ProduceMessage enqueues a message. Delivery is asynchronous; failures are
// logged from the delivery report.
func (st *KafkaStream) ProduceMessage(topic, key string, message []byte) error {
	producer, err := st.getProducer()
	if err != nil {
		return err
	}

	err = producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          message,
	}, nil)
	if err != nil {
		st.logger.Error("failed to produce message", "topic", topic, "error", err)
		return err
	}

	st.logger.Debug("message sent", "topic", topic, "key", key)
	return nil
}

type StreamConsumer struct {
	GroupId string
	Topic   string
}

func (st *KafkaStream) CreateConsumer(consumerStruct *StreamConsumer) (*kafka.Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  st.kafkaServers,
		"group.id":           consumerStruct.GroupId,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(consumerStruct.Topic, nil); err != nil {
		consumer.Close()
		return nil, err
	}

	return consumer, nil
}

// Delay before a failed message is handed back to the handler. It doubles on
// every consecutive failure up to maxRetryBackoff.
const (
	minRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

// messageSource is the part of *kafka.Consumer the consume loop needs.
type messageSource interface {
	Poll(timeoutMs int) kafka.Event
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, ignoredTimeoutMs int) error
}

// Consume polls the topic until ctx is cancelled. A message is committed once
// handle returns nil. When handle fails the partition is rewound to that
// message and it is handed back after a backoff, so no later offset on the
// partition is committed past it.
func (st *KafkaStream) Consume(ctx context.Context, consumerStruct *StreamConsumer, handle func(ctx context.Context, msg *kafka.Message) error) error {
	consumer, err := st.CreateConsumer(consumerStruct)
	if err != nil {
		return err
	}
	defer consumer.Close()

	return st.consume(ctx, consumer, consumerStruct.Topic, handle)
}

func (st *KafkaStream) consume(ctx context.Context, src messageSource, topic string, handle func(ctx context.Context, msg *kafka.Message) error) error {
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		event := src.Poll(100)
		switch e := event.(type) {
		case *kafka.Message:
			if err := handle(ctx, e); err != nil {
				failures++
				delay := st.retryDelay(failures)
				st.logger.Error("message handling failed", "topic", topic, "partition", e.TopicPartition.Partition,
					"offset", e.TopicPartition.Offset.String(), "attempt", failures, "retry_in", delay.String(), "error", err)

				if err := src.Seek(e.TopicPartition, 0); err != nil {
					// without the rewind the next poll moves past the message
					return fmt.Errorf("rewind %s to offset %s: %w", topic, e.TopicPartition.Offset, err)
				}
				if !sleep(ctx, delay) {
					return nil
				}
				continue
			}

			failures = 0
			if _, err := src.CommitMessage(e); err != nil {
				st.logger.Error("commit failed", "topic", topic, "offset", e.TopicPartition.Offset.String(), "error", err)
			}
		case kafka.Error:
			st.logger.Error("kafka error", "topic", topic, "code", e.Code().String(), "error", e)
			if e.IsFatal() {
				return errors.New(e.Error())
			}
		}
	}
}

func (st *KafkaStream) retryDelay(failures int) time.Duration {
	delay := st.retryBackoff
	if delay <= 0 {
		delay = minRetryBackoff
	}
	for i := 1; i < failures && delay < maxRetryBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxRetryBackoff)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close flushes pending messages for up to five seconds.
func (st *KafkaStream) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.producer == nil {
		return
	}

	st.producer.Flush(5000)
	st.producer.Close()
	st.producer = nil
}
