package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradeclash/contest-engine/internal/monitor"
)

// HealthChecker is anything that can report its own liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsSource reports the latest process resource usage sample.
type StatsSource interface {
	Stats() monitor.Stats
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	System    *monitor.Stats    `json:"system,omitempty"`
}

// HealthHandler aggregates the health of the engine's dependencies.
// Checkers are optional; a disabled dependency is reported as skipped.
type HealthHandler struct {
	checkers map[string]HealthChecker
	stats    StatsSource
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checkers: make(map[string]HealthChecker)}
}

// Register adds a named dependency check. Nil checkers are ignored.
func (h *HealthHandler) Register(name string, checker HealthChecker) {
	if checker != nil {
		h.checkers[name] = checker
	}
}

// RegisterStats attaches a resource usage source. The latest sample is
// included in the health payload.
func (h *HealthHandler) RegisterStats(source StatsSource) {
	h.stats = source
}

func (h *HealthHandler) Check(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Services:  make(map[string]string, len(h.checkers)),
	}

	status := http.StatusOK
	for name, checker := range h.checkers {
		if err := checker.HealthCheck(c.Request.Context()); err != nil {
			response.Services[name] = err.Error()
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Services[name] = "ok"
	}

	if h.stats != nil {
		stats := h.stats.Stats()
		response.System = &stats
	}

	c.JSON(status, response)
}
