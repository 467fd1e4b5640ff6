package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/pkg/models"
)

type dataLedger interface {
	CountUsers(ctx context.Context) (int, error)
	PageUsers(ctx context.Context, limit, offset int) ([]int64, error)
	UserInfo(ctx context.Context, ids []int64) (map[int64]models.UserInfo, error)
	EligibleArticleIDs(ctx context.Context, today time.Time) ([]string, error)
	ArticleData(ctx context.Context, ids []string) (map[string]models.Article, error)
	SystemFeedback(ctx context.Context, systemID int64, userIDs []int64) ([]models.Impression, error)
}

// DataService serves ledger reads to external recommender systems: who the
// users are, which articles are recommendable, and what happened to the
// system's own contributions.
type DataService struct {
	logger *logrus.Logger
	store  dataLedger
}

func NewDataService(logger *logrus.Logger, store dataLedger) *DataService {
	return &DataService{logger: logger, store: store}
}

// Users returns one page of user ids with pagination info.
func (s *DataService) Users(ctx context.Context, limit, offset int) (*models.UserList, error) {
	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	ids, err := s.store.PageUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	return &models.UserList{Num: total, Start: offset, UserIDs: ids}, nil
}

func (s *DataService) UserInfo(ctx context.Context, ids []int64) (map[int64]models.UserInfo, error) {
	info, err := s.store.UserInfo(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	return info, nil
}

// EligibleArticles lists the article ids systems may currently recommend.
func (s *DataService) EligibleArticles(ctx context.Context) ([]string, error) {
	ids, err := s.store.EligibleArticleIDs(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	return ids, nil
}

func (s *DataService) ArticleData(ctx context.Context, ids []string) (map[string]models.Article, error) {
	articles, err := s.store.ArticleData(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	return articles, nil
}

// SystemFeedback returns the querying system's own impression rows with their
// interaction flags, so systems can track how their contributions performed.
func (s *DataService) SystemFeedback(ctx context.Context, systemID int64, userIDs []int64) ([]models.Impression, error) {
	rows, err := s.store.SystemFeedback(ctx, systemID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	return rows, nil
}
