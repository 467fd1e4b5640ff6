package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/temcen/livelab/pkg/models"
)

// SystemByAPIKey resolves an opaque API key to the owning system. Returns
// ErrNotFound for unknown keys; callers must additionally check Active.
func (s *Store) SystemByAPIKey(ctx context.Context, apiKey string) (*models.System, error) {
	var sys models.System
	err := s.db.QueryRow(ctx,
		`SELECT system_id, api_key, system_name, active, user_id
		 FROM systems WHERE api_key = $1`, apiKey).
		Scan(&sys.ID, &sys.APIKey, &sys.Name, &sys.Active, &sys.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up system by api key: %w", err)
	}
	return &sys, nil
}
