package worker

import (
	"context"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"todo-sync/internal/config"
	"todo-sync/internal/models"
	"todo-sync/internal/queue"
	"todo-sync/pkg/logger"
)

// Sink receives every change event read from the topic.
type Sink interface {
	Publish(ctx context.Context, e models.ChangeEvent) error
}

// Run consumes the change topic and hands each event to sink until ctx is done.
// Every replica uses its own consumer group so each one sees every event and
// can feed its own websocket subscribers.
func Run(ctx context.Context, sink Sink) {
	cfg := config.Get()
	brokers := queue.Brokers()
	if len(brokers) == 0 {
		logger.Info(ctx, "Change consumer disabled (no Kafka brokers)")
		return
	}
	topic := queue.Topic()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     cfg.FeedGroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	var processed int64
	logger.Info(ctx, "Change consumer started", "topic", topic, "group", cfg.FeedGroupID)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Change consumer stopped", "processed", atomic.LoadInt64(&processed))
				return
			}
			logger.Error(ctx, "Consumer fetch failed", "error", err)
			continue
		}
		if err := handleMessage(ctx, sink, msg.Value); err != nil {
			logger.Error(ctx, "Consumer handle failed", "error", err, "offset", msg.Offset)
		}
		// committed even on failure so a bad payload cannot block the partition
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "Consumer commit failed", "error", err)
		}
		atomic.AddInt64(&processed, 1)
	}
}

func handleMessage(ctx context.Context, sink Sink, payload []byte) error {
	e, err := queue.DecodeEvent(payload)
	if err != nil {
		return err
	}
	return sink.Publish(ctx, e)
}
