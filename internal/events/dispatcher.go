package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// LogDispatcher используется, когда Kafka не настроена
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, e Event) error {
	log.WithFields(log.Fields{"event": e.Type(), "order_id": e.OrderKey()}).Info("order event")
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaDispatcher struct {
	writer  messageWriter
	timeout time.Duration
}

// batchTimeout Dispatch is synchronous on the webhook path, kafka-go defaults to 1s
const batchTimeout = 10 * time.Millisecond

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: batchTimeout,
		},
		timeout: 10 * time.Second,
	}
}

// Dispatch keys messages by order id so one order's events stay ordered.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, e Event) error {
	env := NewEnvelope(e)
	body, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(env.OrderID.String()),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.Type)},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s", env.Type)
	}
	log.WithFields(log.Fields{"event_id": env.EventID, "event": env.Type, "order_id": env.OrderID}).Debug("order event published")
	return nil
}

func (d *KafkaDispatcher) Close() error {
	if d.writer != nil {
		return d.writer.Close()
	}
	return nil
}
