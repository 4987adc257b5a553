package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"todo-sync/internal/config"
	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

// EnsureTopic creates the change topic with configured partitions (idempotent).
// Call at startup; if it fails (e.g. no broker or topic exists), app still runs.
func EnsureTopic(ctx context.Context) {
	cfg := config.Get()
	if len(cfg.KafkaBrokers) == 0 {
		return
	}
	conn, err := kafka.DialContext(ctx, "tcp", cfg.KafkaBrokers[0])
	if err != nil {
		logger.Debug(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Debug(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		logger.Debug(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrlConn.Close()
	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.KafkaTopic,
		NumPartitions:     cfg.KafkaPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Debug(ctx, "Kafka create topic failed (topic may already exist)", "error", err)
		return
	}
	logger.Info(ctx, "Kafka topic ensured", "topic", cfg.KafkaTopic, "partitions", cfg.KafkaPartitions)
}

var (
	writer *kafka.Writer
	wOnce  sync.Once
)

// Producer returns the global Kafka writer for change events (initialized on
// first use). Writes are synchronous so a lost event surfaces as an error.
func Producer(ctx context.Context) *kafka.Writer {
	wOnce.Do(func() {
		cfg := config.Get()
		if len(cfg.KafkaBrokers) == 0 {
			return
		}
		writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaTopic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 5 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		}
		logger.Info(ctx, "Kafka producer initialized", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	})
	return writer
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher writes committed change events to the change topic, keyed by
// todo id so events for one record stay on one partition in commit order.
type Publisher struct {
	w MessageWriter
}

func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// Publish encodes e and writes it.
func (p *Publisher) Publish(ctx context.Context, e models.ChangeEvent) error {
	if p.w == nil {
		return fmt.Errorf("publish %s: kafka not configured", e.EventType)
	}
	msg, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

// EncodeEvent builds the Kafka message for e.
func EncodeEvent(e models.ChangeEvent) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", e.EventType, err)
	}
	return kafka.Message{
		Key:   []byte(e.TodoID()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.EventType)},
		},
	}, nil
}

// DecodeEvent reads a change event from a message value.
func DecodeEvent(value []byte) (models.ChangeEvent, error) {
	var e models.ChangeEvent
	if err := json.Unmarshal(value, &e); err != nil {
		return models.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if !e.Valid() {
		return models.ChangeEvent{}, fmt.Errorf("decode change event: malformed %q event", e.EventType)
	}
	return e, nil
}

// Topic returns the change topic name.
func Topic() string {
	return config.Get().KafkaTopic
}

// Brokers returns Kafka broker addresses.
func Brokers() []string {
	return config.Get().KafkaBrokers
}
