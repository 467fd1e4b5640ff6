package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/temcen/livelab/pkg/models"
)

// InsertImpressions writes one page of freshly interleaved impressions and
// advances last_recommendation_date for every affected user, atomically.
// Partial failure rolls the whole page back; the scheduler's calendar gate
// makes the retry safe.
func (s *Store) InsertImpressions(ctx context.Context, impressions []models.Impression, today time.Time) error {
	if len(impressions) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin impression insert: %w", err)
	}
	defer tx.Rollback(ctx)

	users := make(map[int64]bool)
	for _, imp := range impressions {
		_, err := tx.Exec(ctx,
			`INSERT INTO article_feedback
			   (user_id, article_id, system_id, score, explanation, recommendation_date)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			imp.UserID, imp.ArticleID, imp.SystemID, imp.PositionScore,
			imp.Explanation, imp.InterleavedAt)
		if err != nil {
			return fmt.Errorf("failed to insert impression (%d, %s): %w",
				imp.UserID, imp.ArticleID, err)
		}
		users[imp.UserID] = true
	}

	userIDs := make([]int64, 0, len(users))
	for id := range users {
		userIDs = append(userIDs, id)
	}
	_, err = tx.Exec(ctx,
		`UPDATE users SET last_recommendation_date = $1 WHERE user_id = ANY($2)`,
		UTCDate(today), userIDs)
	if err != nil {
		return fmt.Errorf("failed to advance last_recommendation_date: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit impression insert: %w", err)
	}
	return nil
}

// FetchUnsentDigest loads, for every user of the page not yet emailed today,
// the impressions of the past seven days that have not been in a digest,
// grouped by the interleaving's calendar date.
func (s *Store) FetchUnsentDigest(ctx context.Context, userIDs []int64, today time.Time) (map[int64]map[time.Time][]models.DigestArticle, error) {
	rows, err := s.db.Query(ctx,
		`SELECT f.user_id, f.article_id, a.title, a.authors, f.explanation, f.score,
		        f.recommendation_date
		 FROM article_feedback f
		 JOIN users u ON u.user_id = f.user_id
		 JOIN articles a ON a.article_id = f.article_id
		 WHERE f.user_id = ANY($1)
		   AND f.recommendation_date >= $2::date - 7
		   AND f.seen_email IS NULL
		   AND (u.last_email_date IS NULL OR u.last_email_date < $2)
		 ORDER BY f.user_id, f.recommendation_date, f.score DESC, f.article_id`,
		userIDs, UTCDate(today))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent digest rows: %w", err)
	}
	defer rows.Close()

	digest := make(map[int64]map[time.Time][]models.DigestArticle)
	for rows.Next() {
		var (
			userID int64
			d      models.DigestArticle
		)
		if err := rows.Scan(&userID, &d.ArticleID, &d.Title, &d.Authors,
			&d.Explanation, &d.PositionScore, &d.InterleavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan digest row: %w", err)
		}
		day := UTCDate(d.InterleavedAt)
		if digest[userID] == nil {
			digest[userID] = make(map[time.Time][]models.DigestArticle)
		}
		digest[userID][day] = append(digest[userID][day], d)
	}
	return digest, rows.Err()
}

// StampTraces marks one user's emitted impressions: seen_email plus the
// freshly minted click and save traces, and advances the user's
// last_email_date — one transaction, committed only after the digest was
// handed to the mail collaborator. A failed send leaves the user eligible
// for the next batch.
func (s *Store) StampTraces(ctx context.Context, userID int64, stamps []models.TraceStamp, now time.Time) error {
	if len(stamps) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin trace stamp: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, st := range stamps {
		_, err := tx.Exec(ctx,
			`UPDATE article_feedback
			 SET seen_email = $1, trace_click_email = $2, trace_save_email = $3
			 WHERE user_id = $4 AND article_id = $5`,
			now, st.ClickTrace, st.SaveTrace, st.UserID, st.ArticleID)
		if err != nil {
			return fmt.Errorf("failed to stamp traces (%d, %s): %w",
				st.UserID, st.ArticleID, err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET last_email_date = $1 WHERE user_id = $2`,
		UTCDate(now), userID)
	if err != nil {
		return fmt.Errorf("failed to advance last_email_date: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit trace stamp: %w", err)
	}
	return nil
}

// SetClickedWeb records a web click. COALESCE keeps the first timestamp, so
// replays never advance it. Returns false when no impression row exists.
func (s *Store) SetClickedWeb(ctx context.Context, userID int64, articleID string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE article_feedback SET clicked_web = COALESCE(clicked_web, $1)
		 WHERE user_id = $2 AND article_id = $3`,
		now, userID, articleID)
	if err != nil {
		return false, fmt.Errorf("failed to set clicked_web: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetSeenWeb records that the web UI displayed the given articles to the user.
func (s *Store) SetSeenWeb(ctx context.Context, userID int64, articleIDs []string, now time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE article_feedback SET seen_web = COALESCE(seen_web, $1)
		 WHERE user_id = $2 AND article_id = ANY($3)`,
		now, userID, articleIDs)
	if err != nil {
		return fmt.Errorf("failed to set seen_web: %w", err)
	}
	return nil
}

// SetSaved sets or clears the saved flag. Unlike the click flags, saving is
// reversible from the web UI.
func (s *Store) SetSaved(ctx context.Context, userID int64, articleID string, saved bool, now time.Time) (bool, error) {
	var ts interface{}
	if saved {
		ts = now
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE article_feedback SET saved = $1
		 WHERE user_id = $2 AND article_id = $3`,
		ts, userID, articleID)
	if err != nil {
		return false, fmt.Errorf("failed to set saved: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetClickedEmailByTrace records an email click if and only if the trace
// matches the one minted for this (user, article). Returns false on a missing
// row or a trace mismatch; an already-set timestamp is preserved.
func (s *Store) SetClickedEmailByTrace(ctx context.Context, userID int64, articleID string, trace uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE article_feedback SET clicked_email = COALESCE(clicked_email, $1)
		 WHERE user_id = $2 AND article_id = $3 AND trace_click_email = $4`,
		now, userID, articleID, trace)
	if err != nil {
		return false, fmt.Errorf("failed to set clicked_email: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetSavedByTrace records an email save, keyed on the save trace.
func (s *Store) SetSavedByTrace(ctx context.Context, userID int64, articleID string, trace uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE article_feedback SET saved = COALESCE(saved, $1)
		 WHERE user_id = $2 AND article_id = $3 AND trace_save_email = $4`,
		now, userID, articleID, trace)
	if err != nil {
		return false, fmt.Errorf("failed to set saved by trace: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FetchFeedbackWindow returns every impression row whose interleaving date
// falls in [start, end], for all systems. The reward aggregator needs the
// whole field of each interleaving to normalize, so filtering by system
// happens there.
func (s *Store) FetchFeedbackWindow(ctx context.Context, start, end time.Time) ([]models.FeedbackRow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DATE(f.recommendation_date), f.user_id, f.system_id,
		        f.clicked_email, f.clicked_web, f.saved
		 FROM article_feedback f
		 WHERE DATE(f.recommendation_date) BETWEEN $1 AND $2
		 ORDER BY 1, 2, 3`,
		UTCDate(start), UTCDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feedback window: %w", err)
	}
	defer rows.Close()

	var out []models.FeedbackRow
	for rows.Next() {
		var r models.FeedbackRow
		if err := rows.Scan(&r.Date, &r.UserID, &r.SystemID,
			&r.ClickedEmail, &r.ClickedWeb, &r.Saved); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SystemFeedback returns one system's impression rows for the given users,
// served back to the system on the data surface.
func (s *Store) SystemFeedback(ctx context.Context, systemID int64, userIDs []int64) ([]models.Impression, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, article_id, system_id, score, explanation, recommendation_date,
		        seen_email, seen_web, clicked_email, clicked_web, saved
		 FROM article_feedback
		 WHERE system_id = $1 AND user_id = ANY($2)
		 ORDER BY user_id, recommendation_date DESC`,
		systemID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch system feedback: %w", err)
	}
	defer rows.Close()

	var out []models.Impression
	for rows.Next() {
		var imp models.Impression
		if err := rows.Scan(&imp.UserID, &imp.ArticleID, &imp.SystemID,
			&imp.PositionScore, &imp.Explanation, &imp.InterleavedAt,
			&imp.SeenEmail, &imp.SeenWeb, &imp.ClickedEmail,
			&imp.ClickedWeb, &imp.Saved); err != nil {
			return nil, fmt.Errorf("failed to scan impression: %w", err)
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}
