package models

import "github.com/google/uuid"

// System is a registered external recommender system. Systems authenticate
// against the ingestion and evaluation surfaces with their opaque API key.
type System struct {
	ID      int64     `json:"system_id" db:"system_id"`
	APIKey  uuid.UUID `json:"-" db:"api_key"`
	Name    string    `json:"system_name" db:"system_name"`
	Active  bool      `json:"active" db:"active"`
	OwnerID *int64    `json:"user_id,omitempty" db:"user_id"`
}
