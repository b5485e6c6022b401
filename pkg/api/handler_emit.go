package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/carelane/carelane/pkg/event"
)

// maxEventPayloadBytes bounds the marshalled payload accepted at the
// edge. Oversize message text inside a sane payload is truncated by the
// pipeline instead.
const maxEventPayloadBytes = 64 << 10

// emitEventHandler handles POST /api/gateway/emit.
// Builds an envelope, validates it, and appends it to the patient's FIFO
// queue without waiting for processing.
func (s *Server) emitEventHandler(c *echo.Context) error {
	var req EmitEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Payload != nil {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "payload is not serialisable")
		}
		if len(raw) > maxEventPayloadBytes {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("payload exceeds maximum size of %d bytes", maxEventPayloadBytes))
		}
	}

	// Adapters that do not attribute a sender are treated as patient
	// traffic.
	if req.SenderRole == "" {
		req.SenderRole = string(event.RolePatient)
	}
	if req.SenderID == "" && req.SenderRole == string(event.RolePatient) {
		req.SenderID = req.PatientID
	}

	env := event.New(event.Type(req.EventType), req.PatientID)
	env.Source = req.Source
	env.SenderID = req.SenderID
	env.SenderRole = event.SenderRole(req.SenderRole)
	env.CorrelationID = req.CorrelationID
	if req.Payload != nil {
		env.Payload = req.Payload
	}

	if err := env.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if s.queue == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event intake not available")
	}
	if err := s.queue.Enqueue(env); err != nil {
		return mapServiceError(err)
	}

	slog.Info("Event accepted",
		"event_id", env.EventID,
		"event_type", string(env.Type),
		"patient_id", env.PatientID,
		"submitted_by", extractSubmitter(c))

	return c.JSON(http.StatusAccepted, &EmitEventResponse{
		EventID:   env.EventID,
		PatientID: env.PatientID,
		Status:    "queued",
		Message:   "Event accepted for processing",
	})
}
