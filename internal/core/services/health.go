package services

import (
	"context"
	"time"

	"github.com/poyrazK/cloudLicense/internal/core/ports"
)

const healthCheckTimeout = 2 * time.Second

type healthService struct {
	backends map[string]ports.Pinger
}

// NewHealthService pings every named backend on each check.
func NewHealthService(backends map[string]ports.Pinger) ports.HealthChecker {
	return &healthService{backends: backends}
}

func (s *healthService) HealthCheck(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	results := make(map[string]error, len(s.backends))
	for name, backend := range s.backends {
		results[name] = backend.Ping(ctx)
	}
	return results
}
