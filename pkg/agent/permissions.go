package agent

import (
	"log/slog"
	"sync"
	"time"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

const (
	// maxAuditEntries bounds the permission audit trail.
	maxAuditEntries = 500
	// auditEvictTo is how many entries survive an eviction pass.
	auditEvictTo = 250
)

// PermissionResult is the outcome of one permission check.
type PermissionResult struct {
	Allowed            bool   `json:"allowed"`
	Reason             string `json:"reason,omitempty"`
	RequiredPermission string `json:"required_permission,omitempty"`
}

// AuditEntry records one permission decision.
type AuditEntry struct {
	Timestamp  time.Time        `json:"timestamp"`
	PatientID  string           `json:"patient_id"`
	EventID    string           `json:"event_id"`
	EventType  event.Type       `json:"event_type"`
	SenderRole event.SenderRole `json:"sender_role"`
	SenderID   string           `json:"sender_id,omitempty"`
	Phase      diary.Phase      `json:"phase"`
	Allowed    bool             `json:"allowed"`
	Reason     string           `json:"reason,omitempty"`
}

// helperEventPermissions maps event types helpers may emit to the
// permission required. Types absent from this map are internal; helpers
// cannot emit them without full access.
var helperEventPermissions = map[event.Type]string{
	event.TypeUserMessage:      diary.PermissionSendMessages,
	event.TypeDocumentUploaded: diary.PermissionUploadDocuments,
	event.TypeDoctorCommand:    diary.PermissionFullAccess,
}

// gpAllowedEvents are event types a GP may always emit.
var gpAllowedEvents = map[event.Type]bool{
	event.TypeGPResponse:       true,
	event.TypeDocumentUploaded: true,
	event.TypeWebhook:          true,
}

// PermissionChecker applies the sender-role rules and keeps a bounded audit
// trail of every decision.
type PermissionChecker struct {
	mu     sync.Mutex
	audit  []AuditEntry
	logger *slog.Logger
}

// NewPermissionChecker creates a checker with an empty audit trail.
func NewPermissionChecker() *PermissionChecker {
	return &PermissionChecker{
		logger: slog.Default().With("component", "permission-checker"),
	}
}

// Check evaluates whether a sender may emit the event. Rules in order:
// internal senders (system, agent) and the patient are always allowed; GPs
// are allowed a fixed event set plus permissioned user messages; helpers
// need the mapped permission for their event type; any other role is
// denied.
func (c *PermissionChecker) Check(role event.SenderRole, permissions []string, env *event.Envelope, phase diary.Phase) PermissionResult {
	result := c.evaluate(role, permissions, env.Type)
	c.record(role, env, phase, result)

	if !result.Allowed {
		c.logger.Info("Permission denied",
			"patient_id", env.PatientID,
			"event_type", string(env.Type),
			"sender_role", string(role),
			"sender_id", env.SenderID,
			"reason", result.Reason)
	}
	return result
}

func (c *PermissionChecker) evaluate(role event.SenderRole, permissions []string, eventType event.Type) PermissionResult {
	switch role {
	case event.RoleSystem, event.RoleAgent:
		return PermissionResult{Allowed: true, Reason: "internal_sender"}

	case event.RolePatient:
		return PermissionResult{Allowed: true, Reason: "patient_owns_diary"}

	case event.RoleGP:
		if gpAllowedEvents[eventType] {
			return PermissionResult{Allowed: true, Reason: "gp_event"}
		}
		if eventType == event.TypeUserMessage {
			if hasPermission(permissions, diary.PermissionSendMessages) {
				return PermissionResult{Allowed: true, Reason: "gp_send_messages"}
			}
			return PermissionResult{
				Allowed:            false,
				Reason:             "gp_missing_permission",
				RequiredPermission: diary.PermissionSendMessages,
			}
		}
		return PermissionResult{Allowed: false, Reason: "gp_event_not_allowed"}

	case event.RoleHelper:
		if hasPermission(permissions, diary.PermissionFullAccess) {
			return PermissionResult{Allowed: true, Reason: "helper_full_access"}
		}
		required, ok := helperEventPermissions[eventType]
		if !ok {
			return PermissionResult{Allowed: false, Reason: "helper_cannot_emit_internal_event"}
		}
		if hasPermission(permissions, required) {
			return PermissionResult{Allowed: true, Reason: "helper_permitted"}
		}
		return PermissionResult{
			Allowed:            false,
			Reason:             "helper_missing_permission",
			RequiredPermission: required,
		}

	default:
		return PermissionResult{Allowed: false, Reason: "unknown_sender_role"}
	}
}

func hasPermission(permissions []string, want string) bool {
	for _, p := range permissions {
		if p == want || p == diary.PermissionFullAccess {
			return true
		}
	}
	return false
}

func (c *PermissionChecker) record(role event.SenderRole, env *event.Envelope, phase diary.Phase, result PermissionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.audit = append(c.audit, AuditEntry{
		Timestamp:  time.Now().UTC(),
		PatientID:  env.PatientID,
		EventID:    env.EventID,
		EventType:  env.Type,
		SenderRole: role,
		SenderID:   env.SenderID,
		Phase:      phase,
		Allowed:    result.Allowed,
		Reason:     result.Reason,
	})
	if len(c.audit) > maxAuditEntries {
		c.audit = append([]AuditEntry{}, c.audit[len(c.audit)-auditEvictTo:]...)
	}
}

// AuditTrail returns the most recent decisions, newest last. limit <= 0
// returns everything retained.
func (c *PermissionChecker) AuditTrail(limit int) []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.audit
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]AuditEntry{}, entries...)
}
