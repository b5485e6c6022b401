package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listEventsHandler handles GET /api/gateway/events and
// GET /api/gateway/events/:patient_id. Without a patient id it returns
// the tail of the whole processing log.
func (s *Server) listEventsHandler(c *echo.Context) error {
	limit, err := parseLimit(c, 50, 500)
	if err != nil {
		return err
	}

	patientID := c.Param("patient_id")
	entries := s.gw.EventLog(patientID, limit)

	return c.JSON(http.StatusOK, &EventLogResponse{
		PatientID: patientID,
		Count:     len(entries),
		Events:    entries,
	})
}
