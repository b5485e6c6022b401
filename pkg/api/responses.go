package api

import (
	"github.com/carelane/carelane/pkg/agent"
	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/gateway"
	"github.com/carelane/carelane/pkg/queue"
)

// EmitEventResponse is returned by POST /api/gateway/emit.
type EmitEventResponse struct {
	EventID   string `json:"event_id"`
	PatientID string `json:"patient_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// DiaryResponse is returned by GET /api/gateway/diary/:patient_id.
// Generation is the optimistic-concurrency token of the stored copy.
type DiaryResponse struct {
	PatientID  string              `json:"patient_id"`
	Generation int64               `json:"generation"`
	Diary      *diary.PatientDiary `json:"diary"`
}

// PatientListResponse is returned by GET /api/gateway/patients.
type PatientListResponse struct {
	Count    int      `json:"count"`
	Patients []string `json:"patients"`
}

// EventLogResponse is returned by GET /api/gateway/events[/:patient_id].
type EventLogResponse struct {
	PatientID string             `json:"patient_id,omitempty"`
	Count     int                `json:"count"`
	Events    []gateway.LogEntry `json:"events"`
}

// StatusResponse is returned by GET /api/gateway/status.
type StatusResponse struct {
	Service       string                  `json:"service"`
	Version       string                  `json:"version"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Agents        []string                `json:"agents"`
	Channels      []string                `json:"channels"`
	Gateway       gateway.MetricsSnapshot `json:"gateway"`
	CachedDiaries int                     `json:"cached_diaries"`
	Queue         *queue.Stats            `json:"queue,omitempty"`
	// MonitoredPatients counts heartbeat scheduler registrations.
	MonitoredPatients int `json:"monitored_patients"`
	WSConnections     int `json:"ws_connections"`
}

// DLQResponse is returned by GET /api/gateway/dlq.
type DLQResponse struct {
	Count   int                  `json:"count"`
	Letters []gateway.DeadLetter `json:"letters"`
}

// AuditResponse is returned by GET /api/gateway/audit.
type AuditResponse struct {
	Count   int                `json:"count"`
	Entries []agent.AuditEntry `json:"entries"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck is one named probe inside the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
