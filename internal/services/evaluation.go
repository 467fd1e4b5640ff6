package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/ledger"
	"github.com/temcen/livelab/pkg/models"
)

// RewardWindow selects what the reward aggregator computes: the calendar
// window, the target system, article or topic mode, and the bucket size.
type RewardWindow struct {
	Start       time.Time
	End         time.Time
	SystemID    int64
	Mode        string // "article" or "topic"
	Aggregation string // "day", "week" or "month"
}

type evaluationLedger interface {
	FetchFeedbackWindow(ctx context.Context, start, end time.Time) ([]models.FeedbackRow, error)
	FetchTopicFeedbackWindow(ctx context.Context, start, end time.Time) ([]models.TopicFeedbackRow, error)
}

// EvaluationService converts raw interaction flags into the online evaluation
// metric: the per-interleaving share of reward a system earned against the
// concurrent field, averaged over day, week or month buckets.
type EvaluationService struct {
	config *config.Config
	logger *logrus.Logger
	store  evaluationLedger
}

func NewEvaluationService(cfg *config.Config, logger *logrus.Logger, store evaluationLedger) *EvaluationService {
	return &EvaluationService{config: cfg, logger: logger, store: store}
}

// interleaving is one (date, user) fusion event: the per-system rewards its
// impressions earned.
type interleaving struct {
	date    time.Time
	rewards map[int64]float64
}

// NormalizedRewards computes the target system's impressions and mean
// normalized reward per bucket. Within one interleaving the share is
// reward_S / Σ rewards with the convention 0/0 ≡ 0, so shares across the
// field sum to 1 exactly when any reward was earned.
func (s *EvaluationService) NormalizedRewards(ctx context.Context, q RewardWindow) (*models.RewardSeries, error) {
	groups, err := s.interleavings(ctx, q)
	if err != nil {
		return nil, err
	}

	labels, byLabel := bucketLabels(q.Start, q.End, q.Aggregation)
	impressions := make(map[string]int)
	shares := make(map[string][]float64)

	for _, il := range groups {
		reward, participated := il.rewards[q.SystemID]
		if !participated {
			continue
		}
		label := byLabel[dateKey(il.date)]

		total := 0.0
		for _, r := range il.rewards {
			total += r
		}
		share := 0.0
		if total > 0 {
			share = reward / total
		}

		impressions[label]++
		shares[label] = append(shares[label], share)
	}

	series := &models.RewardSeries{
		SystemID:              q.SystemID,
		Mode:                  q.Mode,
		Aggregation:           q.Aggregation,
		Labels:                labels,
		Impressions:           make([]int, len(labels)),
		MeanNormalizedRewards: make([]float64, len(labels)),
	}
	for i, label := range labels {
		series.Impressions[i] = impressions[label]
		if len(shares[label]) > 0 {
			series.MeanNormalizedRewards[i] = stat.Mean(shares[label], nil)
		}
	}
	return series, nil
}

// Outcomes computes the win/tie/loss view of the same interleavings: the
// target wins an interleaving when its reward is the strict maximum, ties at
// a shared positive maximum, and loses otherwise. The bucket value is
// (wins + ties/2) / interleavings.
func (s *EvaluationService) Outcomes(ctx context.Context, q RewardWindow) (*models.OutcomeSeries, error) {
	groups, err := s.interleavings(ctx, q)
	if err != nil {
		return nil, err
	}

	labels, byLabel := bucketLabels(q.Start, q.End, q.Aggregation)
	impressions := make(map[string]int)
	outcomes := make(map[string][]float64)

	for _, il := range groups {
		reward, participated := il.rewards[q.SystemID]
		if !participated {
			continue
		}
		label := byLabel[dateKey(il.date)]

		max := 0.0
		for sys, r := range il.rewards {
			if sys == q.SystemID {
				continue
			}
			if r > max {
				max = r
			}
		}

		outcome := 0.0
		switch {
		case reward > max:
			outcome = 1.0
		case reward == max && max > 0:
			outcome = 0.5
		}

		impressions[label]++
		outcomes[label] = append(outcomes[label], outcome)
	}

	series := &models.OutcomeSeries{
		SystemID:     q.SystemID,
		Aggregation:  q.Aggregation,
		Labels:       labels,
		Impressions:  make([]int, len(labels)),
		MeanOutcomes: make([]float64, len(labels)),
	}
	for i, label := range labels {
		series.Impressions[i] = impressions[label]
		if len(outcomes[label]) > 0 {
			series.MeanOutcomes[i] = stat.Mean(outcomes[label], nil)
		}
	}
	return series, nil
}

// interleavings pulls the window's rows and folds them into per-(date, user)
// reward vectors. A system participates in an interleaving as soon as it
// contributed one position, even with zero reward.
func (s *EvaluationService) interleavings(ctx context.Context, q RewardWindow) ([]interleaving, error) {
	type key struct {
		date string
		user int64
	}
	groups := make(map[key]*interleaving)

	add := func(date time.Time, userID, systemID int64, reward float64) {
		k := key{date: dateKey(date), user: userID}
		il, ok := groups[k]
		if !ok {
			il = &interleaving{date: ledger.UTCDate(date), rewards: make(map[int64]float64)}
			groups[k] = il
		}
		il.rewards[systemID] += reward
	}

	switch q.Mode {
	case "topic":
		rows, err := s.store.FetchTopicFeedbackWindow(ctx, q.Start, q.End)
		if err != nil {
			return nil, fmt.Errorf("evaluation: %w", err)
		}
		for _, r := range rows {
			add(r.Date, r.UserID, r.SystemID, s.topicReward(r.State))
		}
	default:
		rows, err := s.store.FetchFeedbackWindow(ctx, q.Start, q.End)
		if err != nil {
			return nil, fmt.Errorf("evaluation: %w", err)
		}
		for _, r := range rows {
			add(r.Date, r.UserID, r.SystemID, s.articleReward(r))
		}
	}

	out := make([]interleaving, 0, len(groups))
	for _, il := range groups {
		out = append(out, *il)
	}
	return out, nil
}

// articleReward scores one impression row: each flag counts iff its timestamp
// is set, weighted by configuration.
func (s *EvaluationService) articleReward(r models.FeedbackRow) float64 {
	w := s.config.Rewards
	reward := 0.0
	if r.ClickedEmail != nil {
		reward += w.ClickedEmailWeight
	}
	if r.ClickedWeb != nil {
		reward += w.ClickedWebWeight
	}
	if r.Saved != nil {
		reward += w.SavedWeight
	}
	return reward
}

func (s *EvaluationService) topicReward(state *models.TopicState) float64 {
	if state == nil {
		return 0
	}
	return s.config.Rewards.StateWeights[string(*state)]
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// bucketLabels walks every calendar date of the window and assigns it to a
// day, ISO-week or month bucket. Returns the ordered labels plus the
// date-to-label lookup, so the output vectors cover the whole window even
// where no interleaving happened.
func bucketLabels(start, end time.Time, aggregation string) ([]string, map[string]string) {
	var labels []string
	seen := make(map[string]bool)
	byDate := make(map[string]string)

	for d := ledger.UTCDate(start); !d.After(ledger.UTCDate(end)); d = d.AddDate(0, 0, 1) {
		var label string
		switch aggregation {
		case "week":
			year, week := d.ISOWeek()
			label = fmt.Sprintf("Week %02d %d", week, year)
		case "month":
			label = d.Format("January 2006")
		default:
			label = d.Format("2006-01-02")
		}
		byDate[dateKey(d)] = label
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels, byDate
}
