package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/temcen/livelab/pkg/models"
)

// TopicSuggestion is one fused topic suggestion to be stamped onto the
// credited system's candidate row.
type TopicSuggestion struct {
	UserID   int64
	Topic    string
	SystemID int64
	Order    int
	Batch    time.Time
}

// EnsureTopics inserts any unknown topic strings and returns the id of every
// given topic. Topics are stored once, globally.
func (s *Store) EnsureTopics(ctx context.Context, topics []string) (map[string]int64, error) {
	for _, topic := range topics {
		_, err := s.db.Exec(ctx,
			`INSERT INTO topics (topic) VALUES ($1) ON CONFLICT (topic) DO NOTHING`,
			topic)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure topic %q: %w", topic, err)
		}
	}

	rows, err := s.db.Query(ctx,
		`SELECT topic_id, topic FROM topics WHERE topic = ANY($1)`, topics)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64, len(topics))
	for rows.Next() {
		var (
			id    int64
			topic string
		)
		if err := rows.Scan(&id, &topic); err != nil {
			return nil, fmt.Errorf("failed to scan topic id: %w", err)
		}
		ids[topic] = id
	}
	return ids, rows.Err()
}

// InsertTopicCandidates upserts one system's per-user ranked topic lists.
func (s *Store) InsertTopicCandidates(ctx context.Context, systemID int64, lists map[int64][]models.TopicCandidate, now time.Time) error {
	distinct := make(map[string]bool)
	for _, candidates := range lists {
		for _, c := range candidates {
			distinct[c.Topic] = true
		}
	}
	topics := make([]string, 0, len(distinct))
	for t := range distinct {
		topics = append(topics, t)
	}

	ids, err := s.EnsureTopics(ctx, topics)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin topic candidate insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for userID, candidates := range lists {
		for _, c := range candidates {
			_, err := tx.Exec(ctx,
				`INSERT INTO topic_recommendations
				   (user_id, topic_id, system_id, system_score, datestamp)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (user_id, topic_id, system_id)
				 DO UPDATE SET system_score = EXCLUDED.system_score,
				               datestamp = EXCLUDED.datestamp`,
				userID, ids[c.Topic], systemID, c.Score, now)
			if err != nil {
				return fmt.Errorf("failed to upsert topic candidate (%d, %q, %d): %w",
					userID, c.Topic, systemID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit topic candidate insert: %w", err)
	}
	return nil
}

// TopicCandidates loads one user's not-yet-interleaved topic suggestions per
// system, each list sorted by the system's score descending. Topics the user
// already acted on are excluded.
func (s *Store) TopicCandidates(ctx context.Context, userID int64) (map[int64][]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT tr.system_id, t.topic
		 FROM topic_recommendations tr
		 JOIN topics t ON t.topic_id = tr.topic_id
		 LEFT JOIN user_topics ut
		   ON ut.topic_id = tr.topic_id AND ut.user_id = tr.user_id
		 WHERE tr.user_id = $1
		   AND tr.interleaving_batch IS NULL
		   AND ut.state IS NULL
		 ORDER BY tr.system_id, tr.system_score DESC, t.topic`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch topic candidates: %w", err)
	}
	defer rows.Close()

	candidates := make(map[int64][]string)
	for rows.Next() {
		var (
			systemID int64
			topic    string
		)
		if err := rows.Scan(&systemID, &topic); err != nil {
			return nil, fmt.Errorf("failed to scan topic candidate: %w", err)
		}
		candidates[systemID] = append(candidates[systemID], topic)
	}
	return candidates, rows.Err()
}

// ExpireSuggestedTopics writes the given terminal state for every topic that
// was suggested to the user but never acted on. Called with EXPIRED before a
// fresh interleaving and with REFRESHED when the user asks for new topics.
func (s *Store) ExpireSuggestedTopics(ctx context.Context, userID int64, state models.TopicState, now time.Time) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_topics (user_id, topic_id, state, interaction_time)
		 SELECT DISTINCT tr.user_id, tr.topic_id, $1, $2
		 FROM topic_recommendations tr
		 LEFT JOIN user_topics ut
		   ON ut.user_id = tr.user_id AND ut.topic_id = tr.topic_id
		 WHERE tr.user_id = $3
		   AND tr.interleaving_batch IS NOT NULL
		   AND ut.state IS NULL`,
		state, now, userID)
	if err != nil {
		return fmt.Errorf("failed to expire suggested topics: %w", err)
	}
	return nil
}

// StampTopicSuggestions marks the credited rows of one fused topic ranking
// with their interleaving order (position score) and the shared batch
// timestamp, atomically.
func (s *Store) StampTopicSuggestions(ctx context.Context, suggestions []TopicSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin topic suggestion stamp: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sg := range suggestions {
		_, err := tx.Exec(ctx,
			`UPDATE topic_recommendations
			 SET interleaving_order = $1, interleaving_batch = $2
			 WHERE user_id = $3 AND system_id = $4
			   AND topic_id = (SELECT topic_id FROM topics WHERE topic = $5)`,
			sg.Order, sg.Batch, sg.UserID, sg.SystemID, sg.Topic)
		if err != nil {
			return fmt.Errorf("failed to stamp topic suggestion (%d, %q): %w",
				sg.UserID, sg.Topic, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit topic suggestion stamp: %w", err)
	}
	return nil
}

// TopicIDByName resolves a topic string to its id.
func (s *Store) TopicIDByName(ctx context.Context, topic string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`SELECT topic_id FROM topics WHERE topic = $1`, topic).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up topic %q: %w", topic, err)
	}
	return id, nil
}

// SetUserTopicState records what the user did with a topic. Later
// interactions replace earlier ones; the per-system credit is untouched.
func (s *Store) SetUserTopicState(ctx context.Context, userID, topicID int64, state models.TopicState, now time.Time) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_topics (user_id, topic_id, state, interaction_time)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, topic_id)
		 DO UPDATE SET state = EXCLUDED.state,
		               interaction_time = EXCLUDED.interaction_time`,
		userID, topicID, state, now)
	if err != nil {
		return fmt.Errorf("failed to set topic state: %w", err)
	}
	return nil
}

// FetchTopicFeedbackWindow returns every interleaved topic suggestion whose
// batch date falls in [start, end], joined with the user's state for the
// topic (nil when the user has not reacted yet).
func (s *Store) FetchTopicFeedbackWindow(ctx context.Context, start, end time.Time) ([]models.TopicFeedbackRow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DATE(tr.interleaving_batch), tr.user_id, tr.system_id, ut.state
		 FROM topic_recommendations tr
		 LEFT JOIN user_topics ut
		   ON ut.user_id = tr.user_id AND ut.topic_id = tr.topic_id
		 WHERE tr.interleaving_batch IS NOT NULL
		   AND DATE(tr.interleaving_batch) BETWEEN $1 AND $2
		 ORDER BY 1, 2, 3`,
		UTCDate(start), UTCDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch topic feedback window: %w", err)
	}
	defer rows.Close()

	var out []models.TopicFeedbackRow
	for rows.Next() {
		var r models.TopicFeedbackRow
		if err := rows.Scan(&r.Date, &r.UserID, &r.SystemID, &r.State); err != nil {
			return nil, fmt.Errorf("failed to scan topic feedback row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
