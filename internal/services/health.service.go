package services

import (
	"context"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type ComponentHealth struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type HealthReport struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
}

type HealthService struct {
	names   []string
	checks  []Pinger
	timeout time.Duration
}

func NewHealthService(timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthService{timeout: timeout}
}

// Register adds a dependency to the report. Nil pingers are ignored.
func (s *HealthService) Register(name string, p Pinger) *HealthService {
	if p != nil {
		s.names = append(s.names, name)
		s.checks = append(s.checks, p)
	}
	return s
}

func (s *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := HealthReport{Status: "healthy", Components: make([]ComponentHealth, 0, len(s.checks))}
	for i, p := range s.checks {
		c := ComponentHealth{Name: s.names[i], OK: true}
		if err := p.Ping(ctx); err != nil {
			c.OK, c.Error = false, err.Error()
			report.Status = "unhealthy"
		}
		report.Components = append(report.Components, c)
	}
	return report
}
