package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/livelab/pkg/models"
)

type fakeIngestionLedger struct {
	missingUsers    []int64
	missingArticles []string
	eligible        []string

	inserted      map[int64][]models.Candidate
	topicInserted map[int64][]models.TopicCandidate
}

func (f *fakeIngestionLedger) UsersExist(ctx context.Context, ids []int64) ([]int64, error) {
	return f.missingUsers, nil
}

func (f *fakeIngestionLedger) ArticlesExist(ctx context.Context, ids []string) ([]string, error) {
	return f.missingArticles, nil
}

func (f *fakeIngestionLedger) EligibleArticleIDs(ctx context.Context, today time.Time) ([]string, error) {
	return f.eligible, nil
}

func (f *fakeIngestionLedger) InsertCandidates(ctx context.Context, systemID int64, lists map[int64][]models.Candidate, now time.Time) error {
	f.inserted = lists
	return nil
}

func (f *fakeIngestionLedger) InsertTopicCandidates(ctx context.Context, systemID int64, lists map[int64][]models.TopicCandidate, now time.Time) error {
	f.topicInserted = lists
	return nil
}

func ingestionSvc(store *fakeIngestionLedger) *IngestionService {
	return NewIngestionService(testConfig(), testLogger(), store, nil, nil)
}

func articleRequest(userKey string, recs ...models.Candidate) *models.ArticleRecommendationRequest {
	return &models.ArticleRecommendationRequest{
		Recommendations: map[string][]models.Candidate{userKey: recs},
	}
}

func validCandidate(articleID string) models.Candidate {
	return models.Candidate{ArticleID: articleID, Score: 1.0, Explanation: "matches your topics"}
}

func TestSubmitArticlesAccepted(t *testing.T) {
	store := &fakeIngestionLedger{eligible: []string{"2401.00001", "2401.00002"}}
	svc := ingestionSvc(store)

	err := svc.SubmitArticleRecommendations(context.Background(), 1,
		articleRequest("42", validCandidate("2401.00001"), validCandidate("2401.00002")))

	require.NoError(t, err)
	require.Contains(t, store.inserted, int64(42))
	assert.Len(t, store.inserted[42], 2)
}

func TestSubmitArticlesValidationMessages(t *testing.T) {
	tests := []struct {
		name    string
		store   *fakeIngestionLedger
		req     *models.ArticleRecommendationRequest
		wantMsg string
	}{
		{
			name:    "empty request",
			store:   &fakeIngestionLedger{},
			req:     &models.ArticleRecommendationRequest{Recommendations: map[string][]models.Candidate{}},
			wantMsg: "No recommendations submitted.",
		},
		{
			name:    "non numeric user key",
			store:   &fakeIngestionLedger{},
			req:     articleRequest("not-a-number", validCandidate("2401.00001")),
			wantMsg: "No users with ids: not-a-number.",
		},
		{
			name:    "unknown user",
			store:   &fakeIngestionLedger{missingUsers: []int64{42}},
			req:     articleRequest("42", validCandidate("2401.00001")),
			wantMsg: "No users with ids: 42.",
		},
		{
			name:    "no articles",
			store:   &fakeIngestionLedger{},
			req:     articleRequest("42"),
			wantMsg: "No articles submitted.",
		},
		{
			name:    "unknown article",
			store:   &fakeIngestionLedger{missingArticles: []string{"2401.99999"}},
			req:     articleRequest("42", validCandidate("2401.99999")),
			wantMsg: "Could not find articles with ids: 2401.99999.",
		},
		{
			name:    "stale article",
			store:   &fakeIngestionLedger{eligible: []string{"2401.00001"}},
			req:     articleRequest("42", validCandidate("2312.00001")),
			wantMsg: "These articles are not from the past seven days: 2312.00001.",
		},
		{
			name:  "missing explanation",
			store: &fakeIngestionLedger{eligible: []string{"2401.00001"}},
			req: articleRequest("42",
				models.Candidate{ArticleID: "2401.00001", Score: 1.0}),
			wantMsg: "Recommendations must include explanation.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := ingestionSvc(tt.store)
			err := svc.SubmitArticleRecommendations(context.Background(), 1, tt.req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantMsg, verr.Msg)
			assert.Nil(t, tt.store.inserted, "a rejected push leaves no rows behind")
		})
	}
}

func TestSubmitArticlesCaps(t *testing.T) {
	t.Run("too many users", func(t *testing.T) {
		cfg := testConfig()
		cfg.Ingestion.MaxUsersPerRecommendation = 1
		svc := NewIngestionService(cfg, testLogger(), &fakeIngestionLedger{}, nil, nil)

		req := &models.ArticleRecommendationRequest{
			Recommendations: map[string][]models.Candidate{
				"1": {validCandidate("2401.00001")},
				"2": {validCandidate("2401.00001")},
			},
		}
		err := svc.SubmitArticleRecommendations(context.Background(), 1, req)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Requests must not contain more than 1 users.", verr.Msg)
	})

	t.Run("too many recommendations per user", func(t *testing.T) {
		cfg := testConfig()
		cfg.Ingestion.MaxRecommendationsPerUser = 1
		svc := NewIngestionService(cfg, testLogger(), &fakeIngestionLedger{}, nil, nil)

		err := svc.SubmitArticleRecommendations(context.Background(), 1,
			articleRequest("42", validCandidate("2401.00001"), validCandidate("2401.00002")))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Requests must not contain more than 1 recommendations per user.", verr.Msg)
	})

	t.Run("explanation too long", func(t *testing.T) {
		cfg := testConfig()
		cfg.Ingestion.MaxExplanationLen = 10
		store := &fakeIngestionLedger{eligible: []string{"2401.00001"}}
		svc := NewIngestionService(cfg, testLogger(), store, nil, nil)

		err := svc.SubmitArticleRecommendations(context.Background(), 1,
			articleRequest("42", models.Candidate{
				ArticleID:   "2401.00001",
				Score:       1.0,
				Explanation: "this explanation is way past the limit",
			}))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Explanations must be shorter than 10.", verr.Msg)
	})
}

func topicRequest(userKey string, topics ...string) *models.TopicRecommendationRequest {
	recs := make([]models.TopicCandidate, len(topics))
	for i, topic := range topics {
		recs[i] = models.TopicCandidate{Topic: topic, Score: float64(len(topics) - i)}
	}
	return &models.TopicRecommendationRequest{
		Recommendations: map[string][]models.TopicCandidate{userKey: recs},
	}
}

func TestSubmitTopicsAcceptedAndLowercased(t *testing.T) {
	store := &fakeIngestionLedger{}
	svc := ingestionSvc(store)

	err := svc.SubmitTopicRecommendations(context.Background(), 1,
		topicRequest("42", "Machine Learning", "graph-algorithms"))

	require.NoError(t, err)
	require.Contains(t, store.topicInserted, int64(42))
	require.Len(t, store.topicInserted[42], 2)
	assert.Equal(t, "machine learning", store.topicInserted[42][0].Topic)
	assert.Equal(t, "graph-algorithms", store.topicInserted[42][1].Topic)
}

func TestSubmitTopicsValidation(t *testing.T) {
	t.Run("forbidden characters", func(t *testing.T) {
		svc := ingestionSvc(&fakeIngestionLedger{})

		err := svc.SubmitTopicRecommendations(context.Background(), 1,
			topicRequest("42", "c++ templates"))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Topics can only contain a..z, 0..9, space and dash.", verr.Msg)
	})

	t.Run("too long", func(t *testing.T) {
		cfg := testConfig()
		cfg.Ingestion.MaxTopicLength = 5
		svc := NewIngestionService(cfg, testLogger(), &fakeIngestionLedger{}, nil, nil)

		err := svc.SubmitTopicRecommendations(context.Background(), 1,
			topicRequest("42", "quantum computing"))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Topics must be shorter than 5.", verr.Msg)
	})

	t.Run("no topics", func(t *testing.T) {
		svc := ingestionSvc(&fakeIngestionLedger{})

		err := svc.SubmitTopicRecommendations(context.Background(), 1, topicRequest("42"))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "No topics submitted.", verr.Msg)
	})
}
