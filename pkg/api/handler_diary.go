package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// getDiaryHandler handles GET /api/gateway/diary/:patient_id.
// Reads the persisted copy; in-flight background saves may lag the
// gateway's working set by a moment.
func (s *Server) getDiaryHandler(c *echo.Context) error {
	patientID := c.Param("patient_id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient id is required")
	}

	d, gen, err := s.store.Load(c.Request().Context(), patientID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &DiaryResponse{
		PatientID:  patientID,
		Generation: gen,
		Diary:      d,
	})
}

// listPatientsHandler handles GET /api/gateway/patients.
func (s *Server) listPatientsHandler(c *echo.Context) error {
	ids, err := s.store.ListAllPatientIDs(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &PatientListResponse{
		Count:    len(ids),
		Patients: ids,
	})
}
