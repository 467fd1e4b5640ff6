package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/database"
)

// HealthService checks the core's two runtime dependencies. Postgres is
// critical; Redis only backs caches and operational records, so a Redis
// outage degrades the service without taking it down.
type HealthService struct {
	logger *logrus.Logger
	db     *database.Database
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func NewHealthService(logger *logrus.Logger, db *database.Database) *HealthService {
	return &HealthService{logger: logger, db: db}
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]string),
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status.Status = "healthy"

	if err := s.db.PG.Ping(checkCtx); err != nil {
		status.Services["postgresql"] = "unhealthy"
		status.Status = "unhealthy"
		s.logger.WithError(err).Error("PostgreSQL health check failed")
	} else {
		status.Services["postgresql"] = "healthy"
	}

	if err := s.db.Redis.Ping(checkCtx).Err(); err != nil {
		status.Services["redis"] = "unhealthy"
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
		s.logger.WithError(err).Warn("Redis health check failed")
	} else {
		status.Services["redis"] = "healthy"
	}

	return status
}
