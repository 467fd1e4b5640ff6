package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/livelab/pkg/models"
)

type fakeEvaluationLedger struct {
	rows      []models.FeedbackRow
	topicRows []models.TopicFeedbackRow
}

func (f *fakeEvaluationLedger) FetchFeedbackWindow(ctx context.Context, start, end time.Time) ([]models.FeedbackRow, error) {
	return f.rows, nil
}

func (f *fakeEvaluationLedger) FetchTopicFeedbackWindow(ctx context.Context, start, end time.Time) ([]models.TopicFeedbackRow, error) {
	return f.topicRows, nil
}

func flagged() *time.Time {
	ts := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	return &ts
}

func TestNormalizedRewardsShareOfInterleaving(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	store := &fakeEvaluationLedger{
		rows: []models.FeedbackRow{
			// User 1: system 1 earned a click, system 2 nothing.
			{Date: date, UserID: 1, SystemID: 1, ClickedWeb: flagged()},
			{Date: date, UserID: 1, SystemID: 2},
			// User 2: neither system earned anything.
			{Date: date, UserID: 2, SystemID: 1},
			{Date: date, UserID: 2, SystemID: 2},
		},
	}
	svc := NewEvaluationService(testConfig(), testLogger(), store)
	window := RewardWindow{Start: date, End: date, Mode: "article", Aggregation: "day"}

	t.Run("winner", func(t *testing.T) {
		window.SystemID = 1
		series, err := svc.NormalizedRewards(context.Background(), window)
		require.NoError(t, err)

		require.Equal(t, []string{"2026-03-02"}, series.Labels)
		assert.Equal(t, []int{2}, series.Impressions)
		// User 1 gives share 1, user 2 gives 0/0 = 0; the mean is 0.5.
		assert.InDelta(t, 0.5, series.MeanNormalizedRewards[0], 1e-9)
	})

	t.Run("loser", func(t *testing.T) {
		window.SystemID = 2
		series, err := svc.NormalizedRewards(context.Background(), window)
		require.NoError(t, err)

		assert.Equal(t, []int{2}, series.Impressions)
		assert.InDelta(t, 0.0, series.MeanNormalizedRewards[0], 1e-9)
	})
}

func TestNormalizedRewardsSharesSumToOne(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	store := &fakeEvaluationLedger{
		rows: []models.FeedbackRow{
			{Date: date, UserID: 1, SystemID: 1, ClickedWeb: flagged(), Saved: flagged()},
			{Date: date, UserID: 1, SystemID: 2, ClickedEmail: flagged()},
			{Date: date, UserID: 1, SystemID: 3},
		},
	}
	svc := NewEvaluationService(testConfig(), testLogger(), store)
	window := RewardWindow{Start: date, End: date, Mode: "article", Aggregation: "day"}

	total := 0.0
	for _, systemID := range []int64{1, 2, 3} {
		window.SystemID = systemID
		series, err := svc.NormalizedRewards(context.Background(), window)
		require.NoError(t, err)
		total += series.MeanNormalizedRewards[0]
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestOutcomes(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	store := &fakeEvaluationLedger{
		rows: []models.FeedbackRow{
			// User 1: strict win for system 1.
			{Date: date, UserID: 1, SystemID: 1, ClickedWeb: flagged()},
			{Date: date, UserID: 1, SystemID: 2},
			// User 2: tie at a shared positive maximum.
			{Date: date, UserID: 2, SystemID: 1, Saved: flagged()},
			{Date: date, UserID: 2, SystemID: 2, ClickedWeb: flagged()},
			// User 3: loss for system 1.
			{Date: date, UserID: 3, SystemID: 1},
			{Date: date, UserID: 3, SystemID: 2, ClickedWeb: flagged()},
		},
	}
	svc := NewEvaluationService(testConfig(), testLogger(), store)

	series, err := svc.Outcomes(context.Background(), RewardWindow{
		Start: date, End: date, SystemID: 1, Mode: "article", Aggregation: "day",
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3}, series.Impressions)
	// (1 + 0.5 + 0) / 3
	assert.InDelta(t, 0.5, series.MeanOutcomes[0], 1e-9)
}

func TestOutcomesZeroRewardTieIsNotATie(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	store := &fakeEvaluationLedger{
		rows: []models.FeedbackRow{
			{Date: date, UserID: 1, SystemID: 1},
			{Date: date, UserID: 1, SystemID: 2},
		},
	}
	svc := NewEvaluationService(testConfig(), testLogger(), store)

	series, err := svc.Outcomes(context.Background(), RewardWindow{
		Start: date, End: date, SystemID: 1, Mode: "article", Aggregation: "day",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, series.MeanOutcomes[0], 1e-9)
}

func TestRewardSeriesCoversWholeWindow(t *testing.T) {
	// Rows exist only on the first day; the series still spans every bucket
	// of the window, ISO-week aligned.
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	store := &fakeEvaluationLedger{
		rows: []models.FeedbackRow{
			{Date: start, UserID: 1, SystemID: 1, ClickedWeb: flagged()},
		},
	}
	svc := NewEvaluationService(testConfig(), testLogger(), store)

	series, err := svc.NormalizedRewards(context.Background(), RewardWindow{
		Start: start, End: end, SystemID: 1, Mode: "article", Aggregation: "week",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"Week 01 2026", "Week 02 2026"}, series.Labels)
	assert.Equal(t, []int{1, 0}, series.Impressions)
	assert.InDelta(t, 1.0, series.MeanNormalizedRewards[0], 1e-9)
	assert.Zero(t, series.MeanNormalizedRewards[1])
}

func TestRewardSeriesMonthlyBuckets(t *testing.T) {
	start := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	svc := NewEvaluationService(testConfig(), testLogger(), &fakeEvaluationLedger{})

	series, err := svc.NormalizedRewards(context.Background(), RewardWindow{
		Start: start, End: end, SystemID: 1, Mode: "article", Aggregation: "month",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"January 2026", "February 2026"}, series.Labels)
}

func TestTopicModeUsesStateWeights(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	accepted := models.TopicRecommendedAccepted
	store := &fakeEvaluationLedger{
		topicRows: []models.TopicFeedbackRow{
			{Date: date, UserID: 1, SystemID: 1, State: &accepted},
			{Date: date, UserID: 1, SystemID: 2},
		},
	}
	svc := NewEvaluationService(testConfig(), testLogger(), store)

	series, err := svc.NormalizedRewards(context.Background(), RewardWindow{
		Start: date, End: date, SystemID: 1, Mode: "topic", Aggregation: "day",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, series.Impressions)
	assert.InDelta(t, 1.0, series.MeanNormalizedRewards[0], 1e-9)
}
