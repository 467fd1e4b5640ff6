package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/temcen/livelab/pkg/models"
)

// InsertCandidates upserts one system's per-user ranked article lists. A
// resubmission for the same (user, article, system) replaces score,
// explanation and submission time.
func (s *Store) InsertCandidates(ctx context.Context, systemID int64, lists map[int64][]models.Candidate, now time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin candidate insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for userID, candidates := range lists {
		for _, c := range candidates {
			_, err := tx.Exec(ctx,
				`INSERT INTO article_recommendations
				   (user_id, article_id, system_id, score, explanation, recommendation_date)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (user_id, article_id, system_id)
				 DO UPDATE SET score = EXCLUDED.score,
				               explanation = EXCLUDED.explanation,
				               recommendation_date = EXCLUDED.recommendation_date`,
				userID, c.ArticleID, systemID, c.Score, c.Explanation, now)
			if err != nil {
				return fmt.Errorf("failed to upsert candidate (%d, %s, %d): %w",
					userID, c.ArticleID, systemID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit candidate insert: %w", err)
	}
	return nil
}

// FetchCandidates loads the candidate rankings of one user page, keyed by
// user then system, each list sorted by the submitting system's score
// descending (ties broken by article id for stable order).
//
// The result is restricted to articles dated within the past seven days,
// excludes (user, article) pairs that already have an impression, and skips
// users already served today — re-running the scheduler on the same calendar
// day therefore finds nothing to do for them.
func (s *Store) FetchCandidates(ctx context.Context, userIDs []int64, today time.Time) (map[int64]map[int64][]models.Candidate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT ar.user_id, ar.system_id, ar.article_id, ar.score, ar.explanation
		 FROM article_recommendations ar
		 JOIN users u ON u.user_id = ar.user_id
		 JOIN articles a ON a.article_id = ar.article_id
		 WHERE ar.user_id = ANY($1)
		   AND a.datestamp >= $2::date - 7
		   AND (u.last_recommendation_date IS NULL OR u.last_recommendation_date < $2)
		   AND NOT EXISTS (
		     SELECT 1 FROM article_feedback f
		     WHERE f.user_id = ar.user_id AND f.article_id = ar.article_id)
		 ORDER BY ar.user_id, ar.system_id, ar.score DESC, ar.article_id`,
		userIDs, UTCDate(today))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}
	defer rows.Close()

	candidates := make(map[int64]map[int64][]models.Candidate)
	for rows.Next() {
		var (
			userID, systemID int64
			c                models.Candidate
		)
		if err := rows.Scan(&userID, &systemID, &c.ArticleID, &c.Score, &c.Explanation); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if candidates[userID] == nil {
			candidates[userID] = make(map[int64][]models.Candidate)
		}
		candidates[userID][systemID] = append(candidates[userID][systemID], c)
	}
	return candidates, rows.Err()
}
