// Package consumer turns content lifecycle messages from Kafka into calls on
// the indexer's lifecycle handlers.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/kafka"
)

// LifecycleMessage is the payload on the content lifecycle topic. When
// SourceID is empty the message key is used.
type LifecycleMessage struct {
	Event    string `json:"event"`
	SourceID string `json:"source_id"`
}

// Dispatcher is satisfied by *indexer.Engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.LifecycleEvent, sourceID string) (indexer.Outcome, error)
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

func (ic *IndexConsumer) Close() error {
	return ic.consumer.Close()
}

// HandleMessage returns a Kafka MessageHandler that dispatches each
// lifecycle message. Undecodable or invalid messages are logged and
// committed; transient failures (source unavailable, storage) are returned
// so the message is retried.
func HandleMessage(d Dispatcher) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		msg, err := kafka.DecodeJSON[LifecycleMessage](value)
		if err != nil {
			logger.Error("failed to decode lifecycle message",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if msg.SourceID == "" {
			msg.SourceID = string(key)
		}
		event, err := domain.ParseLifecycleEvent(msg.Event)
		if err != nil {
			logger.Warn("ignoring lifecycle message", "error", err, "source_id", msg.SourceID)
			return nil
		}

		outcome, err := d.Dispatch(ctx, event, msg.SourceID)
		if err != nil {
			if isTransient(err) {
				return fmt.Errorf("handling %s for %s: %w", event, msg.SourceID, err)
			}
			logger.Warn("lifecycle event rejected",
				"event", event,
				"source_id", msg.SourceID,
				"error", err,
			)
			return nil
		}
		logger.Info("lifecycle event handled",
			"event", event,
			"source_id", msg.SourceID,
			"outcome", outcome,
		)
		return nil
	}
}

func isTransient(err error) bool {
	return errors.Is(err, apperrors.ErrSourceUnavailable) || errors.Is(err, apperrors.ErrStorage)
}
