package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/ledger"
	"github.com/temcen/livelab/internal/messaging"
	"github.com/temcen/livelab/internal/multileave"
	"github.com/temcen/livelab/pkg/models"
)

type interleavingLedger interface {
	CountUsers(ctx context.Context) (int, error)
	PageUsers(ctx context.Context, limit, offset int) ([]int64, error)
	FetchCandidates(ctx context.Context, userIDs []int64, today time.Time) (map[int64]map[int64][]models.Candidate, error)
	InsertImpressions(ctx context.Context, impressions []models.Impression, today time.Time) error
	TopicCandidates(ctx context.Context, userID int64) (map[int64][]string, error)
	ExpireSuggestedTopics(ctx context.Context, userID int64, state models.TopicState, now time.Time) error
	StampTopicSuggestions(ctx context.Context, suggestions []ledger.TopicSuggestion) error
}

type interleavingPublisher interface {
	PublishInterleavingCompleted(ctx context.Context, event messaging.InterleavingEvent) error
}

// InterleavingService is the batch scheduler fusing candidate rankings into
// impressions. RunDaily is invoked by an external scheduler at most once per
// calendar day; re-running it on the same day finds no eligible users and is
// a no-op.
type InterleavingService struct {
	config   *config.Config
	logger   *logrus.Logger
	store    interleavingLedger
	metrics  *Metrics
	progress *ProgressTracker
	bus      interleavingPublisher
}

func NewInterleavingService(cfg *config.Config, logger *logrus.Logger, store interleavingLedger,
	metrics *Metrics, progress *ProgressTracker, bus interleavingPublisher) *InterleavingService {
	return &InterleavingService{
		config:   cfg,
		logger:   logger,
		store:    store,
		metrics:  metrics,
		progress: progress,
		bus:      bus,
	}
}

// RunDaily interleaves article recommendations for every eligible user, one
// page at a time. Each page is one transaction; a failed page is logged and
// skipped, and the calendar gate retries it on the next scheduler tick.
// Cancellation is honoured between pages, never mid-transaction.
func (s *InterleavingService) RunDaily(ctx context.Context) error {
	now := time.Now().UTC()
	today := ledger.UTCDate(now)

	length := s.config.Interleave.RecommendationsPerUser
	ml := multileave.New(length, s.config.Interleave.SystemsPerUser)

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("interleaving: %w", err)
	}

	prog := &BatchProgress{
		Job:        "interleave",
		Date:       today.Format("2006-01-02"),
		Status:     BatchStatusRunning,
		TotalUsers: total,
		StartedAt:  now,
	}
	s.progress.Record(ctx, prog)

	pageSize := s.config.Interleave.UsersPerBatch
	served, written := 0, 0

	for offset := 0; offset < total; offset += pageSize {
		if err := ctx.Err(); err != nil {
			prog.Status = BatchStatusFailed
			s.progress.Record(context.Background(), prog)
			return err
		}

		pageStart := time.Now()
		users, impressions, err := s.interleavePage(ctx, ml, pageSize, offset, now, today)
		if err != nil {
			s.logger.WithError(err).WithField("offset", offset).
				Error("Interleaving page failed, will retry next batch")
			prog.Failures++
		} else {
			served += users
			written += impressions
			if s.metrics != nil {
				s.metrics.ImpressionsWritten.Add(float64(impressions))
				s.metrics.BatchPageDuration.WithLabelValues("interleave").
					Observe(time.Since(pageStart).Seconds())
			}
		}

		prog.PagesDone++
		prog.UsersServed = served
		prog.Items = written
		s.progress.Record(ctx, prog)
	}

	prog.Status = BatchStatusCompleted
	s.progress.Record(ctx, prog)

	s.logger.WithFields(logrus.Fields{
		"users":       served,
		"impressions": written,
	}).Info("Interleaving batch finished")

	if s.bus != nil {
		if err := s.bus.PublishInterleavingCompleted(ctx, messaging.InterleavingEvent{
			Date:        today.Format("2006-01-02"),
			Users:       served,
			Impressions: written,
			Timestamp:   time.Now().UTC(),
		}); err != nil {
			s.logger.WithError(err).Warn("Failed to publish interleaving event")
		}
	}

	return nil
}

// interleavePage fuses one page of users and writes the resulting impressions
// in a single transaction. Returns how many users received rows and how many
// rows were written.
func (s *InterleavingService) interleavePage(ctx context.Context, ml *multileave.Multileaver,
	limit, offset int, now, today time.Time) (int, int, error) {

	userIDs, err := s.store.PageUsers(ctx, limit, offset)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to page users: %w", err)
	}
	if len(userIDs) == 0 {
		return 0, 0, nil
	}

	candidates, err := s.store.FetchCandidates(ctx, userIDs, today)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch candidates: %w", err)
	}

	var rows []models.Impression
	users := 0
	for _, userID := range userIDs {
		lists := candidates[userID]
		if len(lists) == 0 {
			s.logger.WithField("user_id", userID).Info("No recommendations for user")
			continue
		}

		userRows := s.interleaveUser(ml, userID, lists, now)
		if len(userRows) > 0 {
			rows = append(rows, userRows...)
			users++
		}
	}

	if err := s.store.InsertImpressions(ctx, rows, today); err != nil {
		return 0, 0, err
	}
	return users, len(rows), nil
}

// interleaveUser fuses one user's candidate lists into impression rows. The
// position score is dense and strictly decreasing with rank: length - index.
func (s *InterleavingService) interleaveUser(ml *multileave.Multileaver, userID int64,
	lists map[int64][]models.Candidate, now time.Time) []models.Impression {

	systems := make([]int64, 0, len(lists))
	rankings := make(map[int64][]string, len(lists))
	explanations := make(map[int64]map[string]string, len(lists))

	for systemID, candidates := range lists {
		if len(candidates) == 0 {
			continue
		}
		systems = append(systems, systemID)
		items := make([]string, len(candidates))
		expl := make(map[string]string, len(candidates))
		for i, c := range candidates {
			items[i] = c.ArticleID
			expl[c.ArticleID] = c.Explanation
		}
		rankings[systemID] = items
		explanations[systemID] = expl
	}
	if len(systems) == 0 {
		return nil
	}

	selected := ml.SelectSystems(systems)
	drafted := make(map[int64][]string, len(selected))
	for _, systemID := range selected {
		drafted[systemID] = rankings[systemID]
	}

	ranking, credit := ml.Multileave(drafted)

	length := s.config.Interleave.RecommendationsPerUser
	rows := make([]models.Impression, 0, len(ranking))
	for i, articleID := range ranking {
		systemID := credit[i]
		if systemID == multileave.NoCredit {
			continue
		}
		rows = append(rows, models.Impression{
			UserID:        userID,
			ArticleID:     articleID,
			SystemID:      systemID,
			PositionScore: length - i,
			Explanation:   explanations[systemID][articleID],
			InterleavedAt: now,
		})
	}
	return rows
}

// SuggestTopics is the on-demand topic path: it fuses the user's pending
// topic candidate lists, expires suggestions the user never acted on, stamps
// the fused rows with their interleaving order and a shared batch timestamp,
// and returns the ordered suggestions.
func (s *InterleavingService) SuggestTopics(ctx context.Context, userID int64) ([]models.SuggestedTopic, error) {
	now := time.Now().UTC()

	lists, err := s.store.TopicCandidates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("topic suggestions: %w", err)
	}
	if len(lists) == 0 {
		return nil, nil
	}

	ml := multileave.New(s.config.Interleave.TopicsPerBatch, s.config.Interleave.SystemsPerUser)

	systems := make([]int64, 0, len(lists))
	for systemID, topics := range lists {
		if len(topics) > 0 {
			systems = append(systems, systemID)
		}
	}
	if len(systems) == 0 {
		return nil, nil
	}

	selected := ml.SelectSystems(systems)
	drafted := make(map[int64][]string, len(selected))
	for _, systemID := range selected {
		drafted[systemID] = lists[systemID]
	}

	ranking, credit := ml.Multileave(drafted)
	if len(ranking) == 0 {
		return nil, nil
	}

	if err := s.store.ExpireSuggestedTopics(ctx, userID, models.TopicExpired, now); err != nil {
		return nil, fmt.Errorf("topic suggestions: %w", err)
	}

	suggestions := make([]ledger.TopicSuggestion, 0, len(ranking))
	out := make([]models.SuggestedTopic, 0, len(ranking))
	for i, topic := range ranking {
		if credit[i] == multileave.NoCredit {
			continue
		}
		suggestions = append(suggestions, ledger.TopicSuggestion{
			UserID:   userID,
			Topic:    topic,
			SystemID: credit[i],
			Order:    i,
			Batch:    now,
		})
		out = append(out, models.SuggestedTopic{
			Topic:             topic,
			InterleavingOrder: i,
			InterleavingBatch: now,
		})
	}

	if err := s.store.StampTopicSuggestions(ctx, suggestions); err != nil {
		return nil, fmt.Errorf("topic suggestions: %w", err)
	}
	return out, nil
}
