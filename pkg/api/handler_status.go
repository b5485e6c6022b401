package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/carelane/carelane/pkg/version"
)

// statusHandler handles GET /api/gateway/status.
func (s *Server) statusHandler(c *echo.Context) error {
	health := s.gw.HealthCheck(c.Request().Context())

	resp := &StatusResponse{
		Service:       version.AppName,
		Version:       version.GitCommit,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Agents:        health.AgentNames,
		Channels:      health.ChannelNames,
		Gateway:       s.gw.Metrics(),
		CachedDiaries: s.gw.CachedDiaryCount(),
	}
	if s.queue != nil {
		stats := s.queue.Stats()
		resp.Queue = &stats
	}
	if s.sched != nil {
		resp.MonitoredPatients = len(s.sched.Registered())
	}
	if s.hub != nil {
		resp.WSConnections = s.hub.ActiveConnections()
	}

	return c.JSON(http.StatusOK, resp)
}
