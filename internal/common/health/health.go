package health

import (
	"context"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	pingTimeout = 2 * time.Second
)

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

type HealthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s HealthStatus) Healthy() bool {
	return s.Status == StatusHealthy
}

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SQLChecker reports the journal database as healthy when it answers a ping
type SQLChecker struct {
	db Pinger
}

func NewSQLChecker(db Pinger) *SQLChecker {
	return &SQLChecker{db: db}
}

func (c *SQLChecker) Check(ctx context.Context) HealthStatus {
	if c.db == nil {
		return HealthStatus{Status: StatusHealthy}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return HealthStatus{Status: StatusUnhealthy, Error: err.Error()}
	}
	return HealthStatus{Status: StatusHealthy}
}
