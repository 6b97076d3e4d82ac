package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/goliatone/go-integrations/core"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// KafkaBroadcaster writes each update keyed by user id, so one user's updates
// stay ordered within a partition. The fan-out topic becomes the Kafka topic.
type KafkaBroadcaster struct {
	writer MessageWriter
	now    func() time.Time
}

func NewKafkaBroadcaster(cfg KafkaConfig) (*KafkaBroadcaster, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("fanout: at least one kafka broker is required")
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaBroadcasterWithWriter(writer), nil
}

func NewKafkaBroadcasterWithWriter(writer MessageWriter) *KafkaBroadcaster {
	return &KafkaBroadcaster{
		writer: writer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (b *KafkaBroadcaster) Broadcast(ctx context.Context, topic string, userID string, message []byte) error {
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(userID),
		Value: message,
		Headers: []kafka.Header{
			{Key: "user_id", Value: []byte(userID)},
		},
		Time: b.now(),
	})
	if err != nil {
		return fmt.Errorf("fanout: kafka write: %w", err)
	}
	return nil
}

func (b *KafkaBroadcaster) Close() error {
	return b.writer.Close()
}

var _ core.Broadcaster = (*KafkaBroadcaster)(nil)
