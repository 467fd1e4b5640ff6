package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationInterval is a user's digest cadence.
type NotificationInterval int

const (
	DigestOff    NotificationInterval = 0
	DigestDaily  NotificationInterval = 1
	DigestWeekly NotificationInterval = 7
)

type User struct {
	ID                     int64                `json:"user_id" db:"user_id"`
	Email                  string               `json:"email" db:"email"`
	Name                   string               `json:"name" db:"name"`
	NotificationInterval   NotificationInterval `json:"notification_interval" db:"notification_interval"`
	UnsubscribeTrace       uuid.UUID            `json:"-" db:"digest_unsubscribe_trace"`
	Registered             time.Time            `json:"registered" db:"registered"`
	LastRecommendationDate *time.Time           `json:"last_recommendation_date,omitempty" db:"last_recommendation_date"`
	LastEmailDate          *time.Time           `json:"last_email_date,omitempty" db:"last_email_date"`
}

// UserDigestInfo is the slice of a user the digest dispatcher needs.
type UserDigestInfo struct {
	ID                   int64
	Email                string
	Name                 string
	NotificationInterval NotificationInterval
	UnsubscribeTrace     uuid.UUID
}

// UserInfo is the projection served to external systems.
type UserInfo struct {
	ID         int64    `json:"user_id"`
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
	Topics     []string `json:"topics"`
}
