package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// dlqHandler handles GET /api/gateway/dlq. Letters are returned oldest
// first; limit keeps the newest.
func (s *Server) dlqHandler(c *echo.Context) error {
	limit, err := parseLimit(c, 100, 500)
	if err != nil {
		return err
	}

	letters := s.gw.DeadLetters()
	if len(letters) > limit {
		letters = letters[len(letters)-limit:]
	}

	return c.JSON(http.StatusOK, &DLQResponse{
		Count:   len(letters),
		Letters: letters,
	})
}

// auditTrailHandler handles GET /api/gateway/audit, exposing recent
// permission decisions.
func (s *Server) auditTrailHandler(c *echo.Context) error {
	limit, err := parseLimit(c, 100, 500)
	if err != nil {
		return err
	}

	entries := s.gw.AuditTrail(limit)
	return c.JSON(http.StatusOK, &AuditResponse{
		Count:   len(entries),
		Entries: entries,
	})
}
