package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// BatchProgress is the operational record of one batch job run, mirrored to
// Redis so deployments can watch the cron-invoked binaries. It is advisory:
// the ledger's calendar gates, not this record, make batches resumable.
type BatchProgress struct {
	Job         string    `json:"job"`
	Date        string    `json:"date"`
	Status      string    `json:"status"`
	TotalUsers  int       `json:"total_users"`
	PagesDone   int       `json:"pages_done"`
	UsersServed int       `json:"users_served"`
	Items       int       `json:"items"`
	Failures    int       `json:"failures"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
)

// ProgressTracker persists BatchProgress records in Redis with a one week
// TTL. A nil Redis client turns every method into a no-op, which the tests
// and the log-only development setup rely on.
type ProgressTracker struct {
	redis  *redis.Client
	logger *logrus.Logger
}

func NewProgressTracker(redisClient *redis.Client, logger *logrus.Logger) *ProgressTracker {
	return &ProgressTracker{redis: redisClient, logger: logger}
}

func progressKey(job, date string) string {
	return fmt.Sprintf("progress:%s:%s", job, date)
}

// Record upserts the progress record for p.Job on p.Date.
func (t *ProgressTracker) Record(ctx context.Context, p *BatchProgress) {
	if t == nil || t.redis == nil {
		return
	}

	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		t.logger.WithError(err).Warn("Failed to marshal batch progress")
		return
	}

	if err := t.redis.Set(ctx, progressKey(p.Job, p.Date), data, 7*24*time.Hour).Err(); err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"job":  p.Job,
			"date": p.Date,
		}).Warn("Failed to store batch progress")
	}
}

// Get loads the progress record of one job run, or nil if none exists.
func (t *ProgressTracker) Get(ctx context.Context, job, date string) (*BatchProgress, error) {
	if t == nil || t.redis == nil {
		return nil, nil
	}

	data, err := t.redis.Get(ctx, progressKey(job, date)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch progress: %w", err)
	}

	var p BatchProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch progress: %w", err)
	}
	return &p, nil
}
