package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/carelane/carelane/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthzHandler handles GET /healthz.
// Returns a minimal, safe response suitable for unauthenticated access.
// Only the process's own components are checked: the diary store and
// agent registration. Outbound channels are excluded so an external
// transport outage cannot make the orchestrator restart this process.
func (s *Server) healthzHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if err := s.store.Ping(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["diary_store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["diary_store"] = HealthCheck{Status: healthStatusHealthy}
	}

	gwHealth := s.gw.HealthCheck(reqCtx)
	if gwHealth.AgentsRegistered == 0 {
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["gateway"] = HealthCheck{Status: healthStatusDegraded, Message: "no agents registered"}
	} else {
		checks["gateway"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.queue != nil {
		checks["queue"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
