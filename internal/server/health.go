package server

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/autobrr/go-fragindex/internal/cache"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	cache     *cache.Cache
}

// NewHealthHandler creates a new health handler. c may be nil.
func NewHealthHandler(version string, c *cache.Cache) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		cache:     c,
	}
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthResponse reports service status and cache counters.
type HealthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	Uptime        string       `json:"uptime"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Cache         *cache.Stats `json:"cache,omitempty"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	uptime := time.Since(h.startTime)
	resp := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
	}
	if h.cache != nil {
		stats := h.cache.Stats()
		resp.Cache = &stats
	}
	return &HealthOutput{Body: resp}, nil
}
