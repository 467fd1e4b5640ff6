package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/pkg/models"
)

// ValidationError rejects an ingestion push. The message is returned verbatim
// to the submitting system in the legacy {"success": false, "error"} envelope.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// topicPattern rejects anything outside letters, digits, dash and space.
var topicPattern = regexp.MustCompile(`[^a-zA-Z0-9\- ]`)

type ingestionLedger interface {
	UsersExist(ctx context.Context, ids []int64) ([]int64, error)
	ArticlesExist(ctx context.Context, ids []string) ([]string, error)
	EligibleArticleIDs(ctx context.Context, today time.Time) ([]string, error)
	InsertCandidates(ctx context.Context, systemID int64, lists map[int64][]models.Candidate, now time.Time) error
	InsertTopicCandidates(ctx context.Context, systemID int64, lists map[int64][]models.TopicCandidate, now time.Time) error
}

// IngestionService validates and stores the ranked lists external recommender
// systems push. A rejected push leaves no rows behind; an accepted resubmission
// replaces the earlier one for the same (user, item, system) keys.
type IngestionService struct {
	config  *config.Config
	logger  *logrus.Logger
	store   ingestionLedger
	redis   *redis.Client
	metrics *Metrics
}

func NewIngestionService(cfg *config.Config, logger *logrus.Logger, store ingestionLedger,
	redisClient *redis.Client, metrics *Metrics) *IngestionService {
	return &IngestionService{
		config:  cfg,
		logger:  logger,
		store:   store,
		redis:   redisClient,
		metrics: metrics,
	}
}

// SubmitArticleRecommendations runs the legacy validation pipeline and upserts
// the candidate rankings. Checks run in a fixed order so a bad push always
// produces the same error message.
func (s *IngestionService) SubmitArticleRecommendations(ctx context.Context, systemID int64,
	req *models.ArticleRecommendationRequest) error {

	now := time.Now().UTC()

	keys := make([]string, 0, len(req.Recommendations))
	for k := range req.Recommendations {
		keys = append(keys, k)
	}
	userIDs, err := s.parseUserKeys(keys)
	if err != nil {
		s.reject("articles")
		return err
	}

	if verr := s.checkUsers(ctx, userIDs); verr != nil {
		s.reject("articles")
		return verr
	}

	lists := make(map[int64][]models.Candidate, len(req.Recommendations))
	var articleIDs []string
	for key, recs := range req.Recommendations {
		if len(recs) > s.config.Ingestion.MaxRecommendationsPerUser {
			s.reject("articles")
			return validationErrorf("Requests must not contain more than %d recommendations per user.",
				s.config.Ingestion.MaxRecommendationsPerUser)
		}
		userID, _ := strconv.ParseInt(key, 10, 64)
		for _, rec := range recs {
			rec.Explanation = norm.NFC.String(rec.Explanation)
			articleIDs = append(articleIDs, rec.ArticleID)
			lists[userID] = append(lists[userID], rec)
		}
	}

	if len(articleIDs) == 0 {
		s.reject("articles")
		return &ValidationError{Msg: "No articles submitted."}
	}
	if verr := s.checkArticles(ctx, articleIDs, now); verr != nil {
		s.reject("articles")
		return verr
	}
	for _, recs := range lists {
		for _, rec := range recs {
			if rec.Explanation == "" {
				s.reject("articles")
				return &ValidationError{Msg: "Recommendations must include explanation."}
			}
			if len(rec.Explanation) > s.config.Ingestion.MaxExplanationLen {
				s.reject("articles")
				return validationErrorf("Explanations must be shorter than %d.",
					s.config.Ingestion.MaxExplanationLen)
			}
		}
	}

	if err := s.store.InsertCandidates(ctx, systemID, lists, now); err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"system_id": systemID,
		"users":     len(lists),
		"articles":  len(articleIDs),
	}).Info("Article recommendations accepted")
	return nil
}

// SubmitTopicRecommendations is the topic analogue: topics are restricted to
// letters, digits, dash and space, and stored lowercased.
func (s *IngestionService) SubmitTopicRecommendations(ctx context.Context, systemID int64,
	req *models.TopicRecommendationRequest) error {

	now := time.Now().UTC()

	keys := make([]string, 0, len(req.Recommendations))
	for k := range req.Recommendations {
		keys = append(keys, k)
	}
	userIDs, err := s.parseUserKeys(keys)
	if err != nil {
		s.reject("topics")
		return err
	}

	if verr := s.checkUsers(ctx, userIDs); verr != nil {
		s.reject("topics")
		return verr
	}

	lists := make(map[int64][]models.TopicCandidate, len(req.Recommendations))
	topics := 0
	for key, recs := range req.Recommendations {
		if len(recs) > s.config.Ingestion.MaxRecommendationsPerUser {
			s.reject("topics")
			return validationErrorf("Requests must not contain more than %d recommendations per user.",
				s.config.Ingestion.MaxRecommendationsPerUser)
		}
		userID, _ := strconv.ParseInt(key, 10, 64)
		for _, rec := range recs {
			if topicPattern.MatchString(rec.Topic) {
				s.reject("topics")
				return &ValidationError{Msg: "Topics can only contain a..z, 0..9, space and dash."}
			}
			if len(rec.Topic) > s.config.Ingestion.MaxTopicLength {
				s.reject("topics")
				return validationErrorf("Topics must be shorter than %d.",
					s.config.Ingestion.MaxTopicLength)
			}
			rec.Topic = strings.ToLower(norm.NFC.String(rec.Topic))
			topics++
			lists[userID] = append(lists[userID], rec)
		}
	}
	if topics == 0 {
		s.reject("topics")
		return &ValidationError{Msg: "No topics submitted."}
	}

	if err := s.store.InsertTopicCandidates(ctx, systemID, lists, now); err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"system_id": systemID,
		"users":     len(lists),
		"topics":    topics,
	}).Info("Topic recommendations accepted")
	return nil
}

func (s *IngestionService) parseUserKeys(keys []string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, &ValidationError{Msg: "No recommendations submitted."}
	}
	if len(keys) > s.config.Ingestion.MaxUsersPerRecommendation {
		return nil, validationErrorf("Requests must not contain more than %d users.",
			s.config.Ingestion.MaxUsersPerRecommendation)
	}

	var bad []string
	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			bad = append(bad, key)
			continue
		}
		ids = append(ids, id)
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, validationErrorf("No users with ids: %s.", strings.Join(bad, ", "))
	}
	return ids, nil
}

func (s *IngestionService) checkUsers(ctx context.Context, ids []int64) error {
	missing, err := s.store.UsersExist(ctx, ids)
	if err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	if len(missing) > 0 {
		strs := make([]string, len(missing))
		for i, id := range missing {
			strs[i] = strconv.FormatInt(id, 10)
		}
		sort.Strings(strs)
		return validationErrorf("No users with ids: %s.", strings.Join(strs, ", "))
	}
	return nil
}

func (s *IngestionService) checkArticles(ctx context.Context, ids []string, now time.Time) error {
	missing, err := s.store.ArticlesExist(ctx, dedupe(ids))
	if err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return validationErrorf("Could not find articles with ids: %s.", strings.Join(missing, ", "))
	}

	eligible, err := s.eligibleSet(ctx, now)
	if err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	var ineligible []string
	for _, id := range dedupe(ids) {
		if !eligible[id] {
			ineligible = append(ineligible, id)
		}
	}
	if len(ineligible) > 0 {
		sort.Strings(ineligible)
		return validationErrorf("These articles are not from the past seven days: %s.",
			strings.Join(ineligible, ", "))
	}
	return nil
}

// eligibleSet returns the past-seven-days article ids, cached in Redis per
// calendar day. A cold or unreachable cache falls back to the ledger.
func (s *IngestionService) eligibleSet(ctx context.Context, now time.Time) (map[string]bool, error) {
	key := "eligible_articles:" + now.UTC().Format("2006-01-02")

	if s.redis != nil {
		if members, err := s.redis.SMembers(ctx, key).Result(); err == nil && len(members) > 0 {
			set := make(map[string]bool, len(members))
			for _, id := range members {
				set[id] = true
			}
			return set, nil
		}
	}

	ids, err := s.store.EligibleArticleIDs(ctx, now)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	if s.redis != nil && len(ids) > 0 {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe := s.redis.Pipeline()
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, 24*time.Hour)
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.WithError(err).Debug("Failed to cache eligible article set")
		}
	}
	return set, nil
}

func (s *IngestionService) reject(surface string) {
	if s.metrics != nil {
		s.metrics.IngestionRejected.WithLabelValues(surface).Inc()
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
