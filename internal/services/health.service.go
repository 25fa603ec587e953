package services

import (
	"context"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	deps    map[string]Pinger
	timeout time.Duration
}

func NewHealthService(deps map[string]Pinger) *HealthService {
	return &HealthService{deps: deps, timeout: 2 * time.Second}
}

// Check pings every dependency and reports "ok" or the error per name.
func (s *HealthService) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	healthy := true
	out := make(map[string]string, len(s.deps))
	for name, d := range s.deps {
		if d == nil {
			continue
		}
		if err := d.Ping(ctx); err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}
