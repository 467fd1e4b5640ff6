package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/ledger"
	"github.com/temcen/livelab/internal/messaging"
	"github.com/temcen/livelab/pkg/models"
)

// ErrTraceMismatch is returned when a tokenized email event carries a trace
// that does not match the one minted for the impression. The row is left
// untouched.
var ErrTraceMismatch = errors.New("trace does not match impression")

// ErrInvalidTopicState is returned for unknown topic lifecycle states.
var ErrInvalidTopicState = errors.New("invalid topic state")

type feedbackLedger interface {
	SetClickedWeb(ctx context.Context, userID int64, articleID string, now time.Time) (bool, error)
	SetSeenWeb(ctx context.Context, userID int64, articleIDs []string, now time.Time) error
	SetSaved(ctx context.Context, userID int64, articleID string, saved bool, now time.Time) (bool, error)
	SetClickedEmailByTrace(ctx context.Context, userID int64, articleID string, trace uuid.UUID, now time.Time) (bool, error)
	SetSavedByTrace(ctx context.Context, userID int64, articleID string, trace uuid.UUID, now time.Time) (bool, error)
	UnsubscribeByTrace(ctx context.Context, trace, next uuid.UUID) error
	TopicIDByName(ctx context.Context, topic string) (int64, error)
	SetUserTopicState(ctx context.Context, userID, topicID int64, state models.TopicState, now time.Time) error
}

type feedbackPublisher interface {
	PublishFeedbackEvent(ctx context.Context, event messaging.FeedbackEvent) error
}

// FeedbackService maps inbound interaction events onto existing impression
// rows. Every operation is idempotent: a flag timestamp transitions from null
// at most once, and replayed events leave it alone. The contributing system
// was fixed at fusion time and is never re-attributed here.
type FeedbackService struct {
	logger  *logrus.Logger
	store   feedbackLedger
	metrics *Metrics
	bus     feedbackPublisher
}

func NewFeedbackService(logger *logrus.Logger, store feedbackLedger,
	metrics *Metrics, bus feedbackPublisher) *FeedbackService {
	return &FeedbackService{
		logger:  logger,
		store:   store,
		metrics: metrics,
		bus:     bus,
	}
}

// ClickWeb records a click in the web UI. An event for a (user, article)
// without an impression row is silently ignored.
func (s *FeedbackService) ClickWeb(ctx context.Context, userID int64, articleID string) error {
	matched, err := s.store.SetClickedWeb(ctx, userID, articleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("click_web: %w", err)
	}
	if !matched {
		s.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"article_id": articleID,
		}).Debug("Web click without impression, ignored")
		return nil
	}
	s.record(ctx, "clicked_web", userID, articleID)
	return nil
}

// SeenWeb records that the web UI displayed the given articles.
func (s *FeedbackService) SeenWeb(ctx context.Context, userID int64, articleIDs []string) error {
	if len(articleIDs) == 0 {
		return nil
	}
	if err := s.store.SetSeenWeb(ctx, userID, articleIDs, time.Now().UTC()); err != nil {
		return fmt.Errorf("seen_web: %w", err)
	}
	s.record(ctx, "seen_web", userID, "")
	return nil
}

// SaveWeb sets or clears the saved flag. Saving is the one reversible flag.
func (s *FeedbackService) SaveWeb(ctx context.Context, userID int64, articleID string, saved bool) error {
	matched, err := s.store.SetSaved(ctx, userID, articleID, saved, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save_web: %w", err)
	}
	if !matched {
		s.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"article_id": articleID,
		}).Debug("Web save without impression, ignored")
		return nil
	}
	s.record(ctx, "saved", userID, articleID)
	return nil
}

// ClickEmail records a tokenized email click. The update only happens when
// the trace matches the one embedded in the digest link; anything else is
// rejected without touching the row.
func (s *FeedbackService) ClickEmail(ctx context.Context, userID int64, articleID string, trace uuid.UUID) error {
	matched, err := s.store.SetClickedEmailByTrace(ctx, userID, articleID, trace, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("click_email: %w", err)
	}
	if !matched {
		return ErrTraceMismatch
	}
	s.record(ctx, "clicked_email", userID, articleID)
	return nil
}

// SaveEmail records a tokenized email save, keyed on the save trace.
func (s *FeedbackService) SaveEmail(ctx context.Context, userID int64, articleID string, trace uuid.UUID) error {
	matched, err := s.store.SetSavedByTrace(ctx, userID, articleID, trace, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save_email: %w", err)
	}
	if !matched {
		return ErrTraceMismatch
	}
	s.record(ctx, "saved_email", userID, articleID)
	return nil
}

// Unsubscribe turns the trace owner's digest cadence off and rotates the
// trace so the link cannot be replayed.
func (s *FeedbackService) Unsubscribe(ctx context.Context, trace uuid.UUID) error {
	err := s.store.UnsubscribeByTrace(ctx, trace, uuid.New())
	if errors.Is(err, ledger.ErrNotFound) {
		return ErrTraceMismatch
	}
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	s.record(ctx, "unsubscribed", 0, "")
	return nil
}

// SetTopicState records what the user did with a suggested topic.
func (s *FeedbackService) SetTopicState(ctx context.Context, userID int64, topic string, state models.TopicState) error {
	if !models.ValidTopicState(state) {
		return fmt.Errorf("%w: %q", ErrInvalidTopicState, state)
	}

	topicID, err := s.store.TopicIDByName(ctx, topic)
	if errors.Is(err, ledger.ErrNotFound) {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"topic":   topic,
		}).Debug("State change for unknown topic, ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("topic state: %w", err)
	}

	if err := s.store.SetUserTopicState(ctx, userID, topicID, state, time.Now().UTC()); err != nil {
		return fmt.Errorf("topic state: %w", err)
	}

	if s.metrics != nil {
		s.metrics.FeedbackEvents.WithLabelValues("topic_state").Inc()
	}
	if s.bus != nil {
		if err := s.bus.PublishFeedbackEvent(ctx, messaging.FeedbackEvent{
			Kind:      "topic_state",
			UserID:    userID,
			Topic:     topic,
			State:     string(state),
			Timestamp: time.Now().UTC(),
		}); err != nil {
			s.logger.WithError(err).Warn("Failed to publish topic state event")
		}
	}
	return nil
}

// record counts the accepted event and publishes it downstream. Publication
// is advisory; the ledger commit already happened.
func (s *FeedbackService) record(ctx context.Context, kind string, userID int64, articleID string) {
	if s.metrics != nil {
		s.metrics.FeedbackEvents.WithLabelValues(kind).Inc()
	}
	if s.bus != nil {
		if err := s.bus.PublishFeedbackEvent(ctx, messaging.FeedbackEvent{
			Kind:      kind,
			UserID:    userID,
			ArticleID: articleID,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			s.logger.WithError(err).WithField("kind", kind).
				Warn("Failed to publish feedback event")
		}
	}
}
