package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/temcen/livelab/pkg/models"
)

// EligibleArticleIDs returns the ids of articles dated within the past seven
// days of today — the only articles external systems may recommend.
func (s *Store) EligibleArticleIDs(ctx context.Context, today time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT article_id FROM articles WHERE datestamp >= $1::date - 7`,
		UTCDate(today))
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible articles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ArticlesExist returns the subset of ids with no matching article row.
func (s *Store) ArticlesExist(ctx context.Context, ids []string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT article_id FROM articles WHERE article_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check articles: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// ArticleData loads full article metadata for the given ids.
func (s *Store) ArticleData(ctx context.Context, ids []string) (map[string]models.Article, error) {
	rows, err := s.db.Query(ctx,
		`SELECT article_id, title, abstract, datestamp, authors, categories
		 FROM articles WHERE article_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load article data: %w", err)
	}
	defer rows.Close()

	articles := make(map[string]models.Article)
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Abstract, &a.Datestamp, &a.Authors, &a.Categories); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles[a.ID] = a
	}
	return articles, rows.Err()
}
