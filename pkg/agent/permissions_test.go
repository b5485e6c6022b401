package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

func checkEvent(t event.Type) *event.Envelope {
	e := event.New(t, "PT-1")
	e.SenderID = "S-1"
	return e
}

func TestInternalSendersAlwaysAllowed(t *testing.T) {
	c := NewPermissionChecker()

	for _, role := range []event.SenderRole{event.RoleSystem, event.RoleAgent} {
		res := c.Check(role, nil, checkEvent(event.TypeClinicalComplete), diary.PhaseClinical)
		assert.True(t, res.Allowed, "role %s must be allowed", role)
	}
}

func TestPatientAlwaysAllowed(t *testing.T) {
	c := NewPermissionChecker()

	res := c.Check(event.RolePatient, nil, checkEvent(event.TypeUserMessage), diary.PhaseIntake)
	assert.True(t, res.Allowed)

	res = c.Check(event.RolePatient, nil, checkEvent(event.TypeDoctorCommand), diary.PhaseBooking)
	assert.True(t, res.Allowed)
}

func TestGPRules(t *testing.T) {
	c := NewPermissionChecker()

	for _, typ := range []event.Type{event.TypeGPResponse, event.TypeDocumentUploaded, event.TypeWebhook} {
		res := c.Check(event.RoleGP, nil, checkEvent(typ), diary.PhaseClinical)
		assert.True(t, res.Allowed, "gp must be allowed %s", typ)
	}

	// USER_MESSAGE needs send_messages or full_access
	res := c.Check(event.RoleGP, nil, checkEvent(event.TypeUserMessage), diary.PhaseClinical)
	assert.False(t, res.Allowed)
	assert.Equal(t, diary.PermissionSendMessages, res.RequiredPermission)

	res = c.Check(event.RoleGP, []string{diary.PermissionSendMessages}, checkEvent(event.TypeUserMessage), diary.PhaseClinical)
	assert.True(t, res.Allowed)

	res = c.Check(event.RoleGP, []string{diary.PermissionFullAccess}, checkEvent(event.TypeUserMessage), diary.PhaseClinical)
	assert.True(t, res.Allowed)

	// Anything else is denied
	res = c.Check(event.RoleGP, []string{diary.PermissionFullAccess}, checkEvent(event.TypeClinicalComplete), diary.PhaseClinical)
	assert.False(t, res.Allowed)
}

func TestHelperRules(t *testing.T) {
	c := NewPermissionChecker()

	// full_access allows everything, including internal events
	res := c.Check(event.RoleHelper, []string{diary.PermissionFullAccess}, checkEvent(event.TypeIntakeComplete), diary.PhaseIntake)
	assert.True(t, res.Allowed)

	// Mapped event types need the mapped permission
	res = c.Check(event.RoleHelper, []string{diary.PermissionSendMessages}, checkEvent(event.TypeUserMessage), diary.PhaseIntake)
	assert.True(t, res.Allowed)

	res = c.Check(event.RoleHelper, []string{diary.PermissionSendMessages}, checkEvent(event.TypeDocumentUploaded), diary.PhaseIntake)
	assert.False(t, res.Allowed)
	assert.Equal(t, diary.PermissionUploadDocuments, res.RequiredPermission)

	res = c.Check(event.RoleHelper, []string{diary.PermissionUploadDocuments}, checkEvent(event.TypeDocumentUploaded), diary.PhaseIntake)
	assert.True(t, res.Allowed)

	res = c.Check(event.RoleHelper, []string{diary.PermissionSendMessages}, checkEvent(event.TypeDoctorCommand), diary.PhaseIntake)
	assert.False(t, res.Allowed)
	assert.Equal(t, diary.PermissionFullAccess, res.RequiredPermission)

	// Unmapped event types are internal
	res = c.Check(event.RoleHelper, []string{diary.PermissionSendMessages}, checkEvent(event.TypeClinicalComplete), diary.PhaseIntake)
	assert.False(t, res.Allowed)
	assert.Equal(t, "helper_cannot_emit_internal_event", res.Reason)

	// No permissions at all
	res = c.Check(event.RoleHelper, nil, checkEvent(event.TypeUserMessage), diary.PhaseIntake)
	assert.False(t, res.Allowed)
}

func TestUnknownRoleDenied(t *testing.T) {
	c := NewPermissionChecker()
	res := c.Check(event.SenderRole("alien"), nil, checkEvent(event.TypeUserMessage), diary.PhaseIntake)
	assert.False(t, res.Allowed)
	assert.Equal(t, "unknown_sender_role", res.Reason)
}

func TestAuditTrailRecordsEveryCheck(t *testing.T) {
	c := NewPermissionChecker()

	c.Check(event.RolePatient, nil, checkEvent(event.TypeUserMessage), diary.PhaseIntake)
	c.Check(event.RoleHelper, nil, checkEvent(event.TypeUserMessage), diary.PhaseIntake)

	trail := c.AuditTrail(0)
	require.Len(t, trail, 2)
	assert.True(t, trail[0].Allowed)
	assert.False(t, trail[1].Allowed)
	assert.Equal(t, "PT-1", trail[0].PatientID)
}

func TestAuditTrailEviction(t *testing.T) {
	c := NewPermissionChecker()

	for i := 0; i < maxAuditEntries+1; i++ {
		e := event.New(event.TypeUserMessage, fmt.Sprintf("PT-%d", i))
		c.Check(event.RolePatient, nil, e, diary.PhaseIntake)
	}

	trail := c.AuditTrail(0)
	require.Len(t, trail, auditEvictTo)
	// Newest entries survive
	assert.Equal(t, fmt.Sprintf("PT-%d", maxAuditEntries), trail[len(trail)-1].PatientID)
}

func TestAuditTrailLimit(t *testing.T) {
	c := NewPermissionChecker()
	for i := 0; i < 10; i++ {
		c.Check(event.RolePatient, nil, checkEvent(event.TypeUserMessage), diary.PhaseIntake)
	}

	assert.Len(t, c.AuditTrail(3), 3)
	assert.Len(t, c.AuditTrail(0), 10)
}
