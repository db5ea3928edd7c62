package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// Health states, from best to worst.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports the letter store, search index and live stream status",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Time taken by the probe"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse is the health report.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Worst component status"`
	Components map[string]ComponentHealth `json:"components" doc:"Per-component status"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	report := HealthResponse{
		Status: statusHealthy,
		Components: map[string]ComponentHealth{
			"store":  s.checkStore(ctx),
			"search": s.checkSearchIndex(),
			"sse":    s.checkSSEManager(),
		},
	}
	for _, c := range report.Components {
		report.Status = worse(report.Status, c.Status)
	}
	return &HealthOutput{Body: report}, nil
}

func worse(a, b string) string {
	rank := map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// probe times fn and turns its result into a component status. failure is
// reported instead of the raw error, which may carry file paths.
func probe(fn func() (string, error), failure string) ComponentHealth {
	start := time.Now()
	msg, err := fn()
	h := ComponentHealth{Status: statusHealthy, Latency: time.Since(start).String(), Message: msg}
	if err != nil {
		h.Status, h.Message = statusUnhealthy, failure
	}
	return h
}

func (s *Server) checkStore(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: statusDegraded, Message: "store not configured"}
	}
	return probe(func() (string, error) {
		n, err := s.store.CountLetters(ctx)
		return fmt.Sprintf("%d letters", n), err
	}, "store read failed")
}

// checkSearchIndex is degraded rather than unhealthy without an index:
// letters can still be read and written.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services == nil || s.services.Search == nil {
		return ComponentHealth{Status: statusDegraded, Message: "search not configured"}
	}
	return probe(func() (string, error) {
		n, err := s.services.Search.DocumentCount()
		return fmt.Sprintf("%d documents", n), err
	}, "search index unreachable")
}

func (s *Server) checkSSEManager() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{Status: statusDegraded, Message: "live updates not configured"}
	}
	stats := s.sseManager.Stats()
	msg := formatSSEStatus(stats.Clients)
	if stats.Dropped > 0 {
		msg += fmt.Sprintf(", %d events dropped", stats.Dropped)
	}
	return ComponentHealth{Status: statusHealthy, Message: msg}
}

func formatSSEStatus(count int) string {
	switch count {
	case 0:
		return "no connected clients"
	case 1:
		return "1 connected client"
	default:
		return fmt.Sprintf("%d connected clients", count)
	}
}
