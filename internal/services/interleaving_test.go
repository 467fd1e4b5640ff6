package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/ledger"
	"github.com/temcen/livelab/pkg/models"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.BaseURL = "http://localhost:8080"
	cfg.Server.WebAddress = "http://localhost:8080"
	cfg.Interleave.RecommendationsPerUser = 4
	cfg.Interleave.TopicsPerBatch = 3
	cfg.Interleave.SystemsPerUser = 2
	cfg.Interleave.UsersPerBatch = 100
	cfg.Digest.ArticlesPerDate = 3
	cfg.Digest.Weekday = int(time.Now().UTC().Weekday())
	cfg.Digest.Subject = "ArXiv Digest"
	cfg.Digest.MailTimeout = time.Second
	cfg.Rewards.ClickedEmailWeight = 1.0
	cfg.Rewards.ClickedWebWeight = 1.0
	cfg.Rewards.SavedWeight = 1.0
	cfg.Rewards.StateWeights = map[string]float64{
		"USER_ADDED":                  1.0,
		"SYSTEM_RECOMMENDED_ACCEPTED": 1.0,
	}
	cfg.Ingestion.MaxUsersPerRecommendation = 100
	cfg.Ingestion.MaxRecommendationsPerUser = 10
	cfg.Ingestion.MaxExplanationLen = 400
	cfg.Ingestion.MaxTopicLength = 50
	return cfg
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeInterleavingLedger struct {
	users         []int64
	candidates    map[int64]map[int64][]models.Candidate
	candidatesErr error
	inserted      []models.Impression
	insertCalls   int

	topicLists   map[int64][]string
	expireCalls  int
	expiredState models.TopicState
	stamped      []ledger.TopicSuggestion
}

func (f *fakeInterleavingLedger) CountUsers(ctx context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeInterleavingLedger) PageUsers(ctx context.Context, limit, offset int) ([]int64, error) {
	if offset >= len(f.users) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.users) {
		end = len(f.users)
	}
	return f.users[offset:end], nil
}

func (f *fakeInterleavingLedger) FetchCandidates(ctx context.Context, userIDs []int64, today time.Time) (map[int64]map[int64][]models.Candidate, error) {
	if f.candidatesErr != nil {
		return nil, f.candidatesErr
	}
	out := make(map[int64]map[int64][]models.Candidate)
	for _, id := range userIDs {
		if lists, ok := f.candidates[id]; ok {
			out[id] = lists
		}
	}
	return out, nil
}

func (f *fakeInterleavingLedger) InsertImpressions(ctx context.Context, impressions []models.Impression, today time.Time) error {
	f.insertCalls++
	f.inserted = append(f.inserted, impressions...)
	return nil
}

func (f *fakeInterleavingLedger) TopicCandidates(ctx context.Context, userID int64) (map[int64][]string, error) {
	return f.topicLists, nil
}

func (f *fakeInterleavingLedger) ExpireSuggestedTopics(ctx context.Context, userID int64, state models.TopicState, now time.Time) error {
	f.expireCalls++
	f.expiredState = state
	return nil
}

func (f *fakeInterleavingLedger) StampTopicSuggestions(ctx context.Context, suggestions []ledger.TopicSuggestion) error {
	f.stamped = append(f.stamped, suggestions...)
	return nil
}

func candidateList(ids ...string) []models.Candidate {
	out := make([]models.Candidate, len(ids))
	for i, id := range ids {
		out[i] = models.Candidate{
			ArticleID:   id,
			Score:       float64(len(ids) - i),
			Explanation: "because " + id,
		}
	}
	return out
}

func TestRunDailyWritesImpressions(t *testing.T) {
	store := &fakeInterleavingLedger{
		users: []int64{42},
		candidates: map[int64]map[int64][]models.Candidate{
			42: {
				1: candidateList("a", "b"),
				2: candidateList("c", "d"),
			},
		},
	}
	svc := NewInterleavingService(testConfig(), testLogger(), store, nil, nil, nil)

	require.NoError(t, svc.RunDaily(context.Background()))

	require.Len(t, store.inserted, 4)
	for i, imp := range store.inserted {
		assert.Equal(t, int64(42), imp.UserID)
		assert.Equal(t, 4-i, imp.PositionScore, "position score must be dense and decreasing")
		assert.Contains(t, []int64{1, 2}, imp.SystemID)
		assert.Equal(t, "because "+imp.ArticleID, imp.Explanation,
			"explanation must come from the credited system's list")
	}

	// The lists are disjoint, so the credited system must actually have
	// proposed the article.
	lists := store.candidates[42]
	for _, imp := range store.inserted {
		found := false
		for _, c := range lists[imp.SystemID] {
			if c.ArticleID == imp.ArticleID {
				found = true
			}
		}
		assert.True(t, found, "article %q credited to system %d", imp.ArticleID, imp.SystemID)
	}
}

func TestRunDailyNoCandidatesWritesNothing(t *testing.T) {
	store := &fakeInterleavingLedger{
		users:      []int64{1, 2, 3},
		candidates: map[int64]map[int64][]models.Candidate{},
	}
	svc := NewInterleavingService(testConfig(), testLogger(), store, nil, nil, nil)

	require.NoError(t, svc.RunDaily(context.Background()))
	assert.Empty(t, store.inserted)
}

func TestRunDailyPageFailureDoesNotAbortBatch(t *testing.T) {
	store := &fakeInterleavingLedger{
		users:         []int64{1},
		candidatesErr: errors.New("connection reset"),
	}
	svc := NewInterleavingService(testConfig(), testLogger(), store, nil, nil, nil)

	// A failed page is logged and skipped; the calendar gate retries it on
	// the next scheduler tick.
	require.NoError(t, svc.RunDaily(context.Background()))
	assert.Empty(t, store.inserted)
}

func TestRunDailyHonoursCancellation(t *testing.T) {
	store := &fakeInterleavingLedger{users: []int64{1, 2}}
	svc := NewInterleavingService(testConfig(), testLogger(), store, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.RunDaily(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.insertCalls)
}

func TestRunDailyPagesThroughAllUsers(t *testing.T) {
	cfg := testConfig()
	cfg.Interleave.UsersPerBatch = 2

	users := []int64{1, 2, 3, 4, 5}
	candidates := make(map[int64]map[int64][]models.Candidate, len(users))
	for _, u := range users {
		candidates[u] = map[int64][]models.Candidate{
			1: candidateList("x", "y"),
		}
	}
	store := &fakeInterleavingLedger{users: users, candidates: candidates}
	svc := NewInterleavingService(cfg, testLogger(), store, nil, nil, nil)

	require.NoError(t, svc.RunDaily(context.Background()))

	assert.Equal(t, 3, store.insertCalls)
	served := make(map[int64]bool)
	for _, imp := range store.inserted {
		served[imp.UserID] = true
	}
	assert.Len(t, served, len(users))
}

func TestSuggestTopicsStampsOrderAndBatch(t *testing.T) {
	store := &fakeInterleavingLedger{
		topicLists: map[int64][]string{
			1: {"machine learning", "robotics"},
			2: {"databases", "machine learning"},
		},
	}
	svc := NewInterleavingService(testConfig(), testLogger(), store, nil, nil, nil)

	suggestions, err := svc.SuggestTopics(context.Background(), 7)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	require.Len(t, store.stamped, len(suggestions))

	assert.Equal(t, 1, store.expireCalls)
	assert.Equal(t, models.TopicExpired, store.expiredState)

	batch := store.stamped[0].Batch
	for i, s := range store.stamped {
		assert.Equal(t, int64(7), s.UserID)
		assert.Equal(t, i, s.Order)
		assert.Equal(t, batch, s.Batch, "all suggestions of one batch share a timestamp")
		assert.Equal(t, suggestions[i].Topic, s.Topic)
		assert.Equal(t, i, suggestions[i].InterleavingOrder)
	}
}

func TestSuggestTopicsNoCandidates(t *testing.T) {
	store := &fakeInterleavingLedger{topicLists: map[int64][]string{}}
	svc := NewInterleavingService(testConfig(), testLogger(), store, nil, nil, nil)

	suggestions, err := svc.SuggestTopics(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
	assert.Zero(t, store.expireCalls, "nothing is expired when there is nothing to suggest")
}
