package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/livelab/internal/config"
)

func TestNewMessageBusRequiresBrokers(t *testing.T) {
	cfg := &config.Config{}
	logger := logrus.New()

	bus, err := NewMessageBus(cfg, logger)
	assert.Error(t, err)
	assert.Nil(t, bus)
}

func TestNewMessageBusWiresTopics(t *testing.T) {
	cfg := &config.Config{}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topics.FeedbackEvents = "feedback.events"
	cfg.Kafka.Topics.DigestDispatched = "digest.dispatched"

	bus, err := NewMessageBus(cfg, logrus.New())
	require.NoError(t, err)
	defer bus.Close()

	assert.Equal(t, "feedback.events", bus.feedbackWriter.Topic)
	assert.Equal(t, "digest.dispatched", bus.digestWriter.Topic)
}

func TestFeedbackEventSerialization(t *testing.T) {
	event := FeedbackEvent{
		Kind:      "clicked_email",
		UserID:    42,
		ArticleID: "2401.00001",
		Timestamp: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded FeedbackEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event, decoded)

	// Topic-state fields are omitted for article events.
	assert.NotContains(t, string(data), `"topic"`)
	assert.NotContains(t, string(data), `"state"`)
}

func TestTopicStateEventCarriesStateFields(t *testing.T) {
	event := FeedbackEvent{
		Kind:      "topic_state",
		UserID:    42,
		Topic:     "machine learning",
		State:     "SYSTEM_RECOMMENDED_ACCEPTED",
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"topic":"machine learning"`)
	assert.Contains(t, string(data), `"state":"SYSTEM_RECOMMENDED_ACCEPTED"`)
}

func TestDigestEventSerialization(t *testing.T) {
	event := DigestEvent{
		UserID:    7,
		Articles:  6,
		Days:      2,
		Timestamp: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded DigestEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event, decoded)
}

func TestRetryBackoffIsExponential(t *testing.T) {
	baseDelay := 100 * time.Millisecond

	delays := make([]time.Duration, 0, 3)
	for attempt := 0; attempt < 3; attempt++ {
		delays = append(delays, baseDelay*time.Duration(1<<uint(attempt)))
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, delays)
}
