package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/temcen/livelab/pkg/models"
)

// PageUsers returns one page of user ids in stable ascending order.
func (s *Store) PageUsers(ctx context.Context, limit, offset int) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id FROM users ORDER BY user_id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to page users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUsers returns the total number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// UsersExist returns the subset of ids with no matching user row.
func (s *Store) UsersExist(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id FROM users WHERE user_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check users: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// UserDigestInfo loads the digest-relevant slice of the given users.
func (s *Store) UserDigestInfo(ctx context.Context, ids []int64) (map[int64]models.UserDigestInfo, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, email, name, notification_interval, digest_unsubscribe_trace
		 FROM users WHERE user_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load digest info: %w", err)
	}
	defer rows.Close()

	info := make(map[int64]models.UserDigestInfo)
	for rows.Next() {
		var u models.UserDigestInfo
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.NotificationInterval, &u.UnsubscribeTrace); err != nil {
			return nil, fmt.Errorf("failed to scan digest info: %w", err)
		}
		info[u.ID] = u
	}
	return info, rows.Err()
}

// UserInfo returns the projection served to external systems: name plus the
// user's categories and accepted topics of interest.
func (s *Store) UserInfo(ctx context.Context, ids []int64) (map[int64]models.UserInfo, error) {
	rows, err := s.db.Query(ctx,
		`SELECT u.user_id, u.name,
		        COALESCE(array_agg(DISTINCT uc.category) FILTER (WHERE uc.category IS NOT NULL), '{}'),
		        COALESCE(array_agg(DISTINCT t.topic) FILTER (WHERE ut.state IN ('USER_ADDED', 'SYSTEM_RECOMMENDED_ACCEPTED')), '{}')
		 FROM users u
		 LEFT JOIN user_categories uc ON uc.user_id = u.user_id
		 LEFT JOIN user_topics ut ON ut.user_id = u.user_id
		 LEFT JOIN topics t ON t.topic_id = ut.topic_id
		 WHERE u.user_id = ANY($1)
		 GROUP BY u.user_id, u.name`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load user info: %w", err)
	}
	defer rows.Close()

	info := make(map[int64]models.UserInfo)
	for rows.Next() {
		var u models.UserInfo
		if err := rows.Scan(&u.ID, &u.Name, &u.Categories, &u.Topics); err != nil {
			return nil, fmt.Errorf("failed to scan user info: %w", err)
		}
		info[u.ID] = u
	}
	return info, rows.Err()
}

// UnsubscribeByTrace turns digest mail off for the owner of the given trace
// and rotates the trace in the same statement, so a forwarded or replayed
// link cannot flip the cadence again.
func (s *Store) UnsubscribeByTrace(ctx context.Context, trace, next uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET notification_interval = 0, digest_unsubscribe_trace = $2
		 WHERE digest_unsubscribe_trace = $1`, trace, next)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe by trace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
