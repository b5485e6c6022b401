package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// resolveContactHandler handles GET /api/gateway/identity/resolve.
// Query parameters: contact (required), patient_id (optional — scopes the
// lookup to one patient's record).
func (s *Server) resolveContactHandler(c *echo.Context) error {
	contact := c.QueryParam("contact")
	if contact == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "contact query parameter is required")
	}
	if s.resolver == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "identity resolution not available")
	}

	if patientID := c.QueryParam("patient_id"); patientID != "" {
		rec := s.resolver.ResolveForPatient(contact, patientID)
		if rec == nil {
			return echo.NewHTTPError(http.StatusNotFound, "contact not known for patient")
		}
		return c.JSON(http.StatusOK, rec)
	}

	res := s.resolver.Resolve(contact)
	return c.JSON(http.StatusOK, res)
}
