package services

import (
	"context"
	"time"
)

// Pinger is anything with a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthcheckService probes the stores the intake pipeline depends on.
type HealthcheckService struct {
	checks map[string]Pinger
}

func NewHealthcheckService(checks map[string]Pinger) *HealthcheckService {
	return &HealthcheckService{checks: checks}
}

// Status maps each dependency to "ok" or its error text. healthy is false
// when any probe failed.
func (s *HealthcheckService) Status(ctx context.Context) (status map[string]string, healthy bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status = make(map[string]string, len(s.checks))
	healthy = true
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	return status, healthy
}
