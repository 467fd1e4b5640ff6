// Package messaging publishes ledger events to Kafka for downstream
// analytics. Publication is advisory: the ledger commit is the source of
// truth and events are dropped after exhausted retries rather than failing
// the operation that produced them.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/config"
)

// FeedbackEvent is emitted after an interaction flag was committed.
type FeedbackEvent struct {
	Kind      string    `json:"kind"`
	UserID    int64     `json:"user_id"`
	ArticleID string    `json:"article_id,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	State     string    `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DigestEvent is emitted after a digest was handed to the mail collaborator
// and its traces were stamped.
type DigestEvent struct {
	UserID    int64     `json:"user_id"`
	Articles  int       `json:"articles"`
	Days      int       `json:"days"`
	Timestamp time.Time `json:"timestamp"`
}

// InterleavingEvent is emitted once per scheduler run.
type InterleavingEvent struct {
	Date        string    `json:"date"`
	Users       int       `json:"users"`
	Impressions int       `json:"impressions"`
	Timestamp   time.Time `json:"timestamp"`
}

type MessageBus struct {
	feedbackWriter *kafka.Writer
	digestWriter   *kafka.Writer
	logger         *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	feedbackWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.FeedbackEvents,
		Balancer:     &kafka.Hash{}, // Key by user for per-user ordering
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	digestWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.DigestDispatched,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	return &MessageBus{
		feedbackWriter: feedbackWriter,
		digestWriter:   digestWriter,
		logger:         logger,
	}, nil
}

// PublishFeedbackEvent emits one accepted interaction.
func (mb *MessageBus) PublishFeedbackEvent(ctx context.Context, event FeedbackEvent) error {
	return mb.publish(ctx, mb.feedbackWriter, strconv.FormatInt(event.UserID, 10), event, logrus.Fields{
		"kind":    event.Kind,
		"user_id": event.UserID,
	})
}

// PublishDigestDispatched emits one per-user digest dispatch record.
func (mb *MessageBus) PublishDigestDispatched(ctx context.Context, event DigestEvent) error {
	return mb.publish(ctx, mb.digestWriter, strconv.FormatInt(event.UserID, 10), event, logrus.Fields{
		"user_id":  event.UserID,
		"articles": event.Articles,
	})
}

// PublishInterleavingCompleted emits one per-run scheduler summary on the
// digest topic's stream.
func (mb *MessageBus) PublishInterleavingCompleted(ctx context.Context, event InterleavingEvent) error {
	return mb.publish(ctx, mb.digestWriter, event.Date, event, logrus.Fields{
		"date":        event.Date,
		"users":       event.Users,
		"impressions": event.Impressions,
	})
}

func (mb *MessageBus) publish(ctx context.Context, writer *kafka.Writer, key string, payload interface{}, fields logrus.Fields) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	// Bounded retries with exponential backoff; events are advisory and get
	// dropped (logged) when the brokers stay unreachable.
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for attempt := 0; ; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = writer.WriteMessages(writeCtx, message)
		cancel()
		if err == nil {
			return nil
		}

		if attempt >= maxRetries {
			mb.logger.WithError(err).WithFields(fields).Error("Dropping event after retries")
			return fmt.Errorf("failed to publish event after %d attempts: %w", attempt+1, err)
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		mb.logger.WithError(err).WithFields(fields).WithField("attempt", attempt+1).
			Warn("Event publish failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.feedbackWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close feedback writer: %w", err))
	}

	if err := mb.digestWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close digest writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}

	return nil
}

// Stats exposes writer statistics for monitoring.
func (mb *MessageBus) Stats() map[string]interface{} {
	feedback := mb.feedbackWriter.Stats()
	digest := mb.digestWriter.Stats()
	return map[string]interface{}{
		"feedback_messages": feedback.Messages,
		"feedback_errors":   feedback.Errors,
		"digest_messages":   digest.Messages,
		"digest_errors":     digest.Errors,
	}
}
