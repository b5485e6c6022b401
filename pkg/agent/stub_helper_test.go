package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

func helperRegistration(id, name string) *event.Envelope {
	env := event.New(event.TypeHelperRegistration, "PT-1")
	env.SenderID = "PT-1"
	env.SenderRole = event.RolePatient
	env.Source = "websocket"
	env.SetPayload("helper_id", id)
	env.SetPayload("name", name)
	env.SetPayload("relationship", "daughter")
	env.SetPayload("channel", "sms")
	env.SetPayload("contact", "07700 900123")
	env.SetPayload("permissions", []string{diary.PermissionSendMessages, diary.PermissionUploadDocuments})
	return env
}

func TestHelperRegistrationStartsUnverified(t *testing.T) {
	a := NewHelperManagerAgent()
	d := diary.New("PT-1", "corr-1")

	res := process(t, a, helperRegistration("hlp-1", "Ada Okafor"), d)

	h := d.HelperRegistry.GetHelperByID("hlp-1")
	require.NotNil(t, h)
	assert.False(t, h.Verified)
	assert.Nil(t, h.VerifiedAt)
	assert.Equal(t, "daughter", h.Relationship)
	assert.Equal(t, "07700 900123", h.Contact)
	assert.ElementsMatch(t,
		[]string{diary.PermissionSendMessages, diary.PermissionUploadDocuments},
		h.Permissions)

	msg := firstMessage(t, res)
	assert.Contains(t, msg, "Ada Okafor")
	assert.Contains(t, msg, "verified")
}

func TestHelperRegistrationGeneratesIDWhenMissing(t *testing.T) {
	a := NewHelperManagerAgent()
	d := diary.New("PT-1", "corr-1")

	env := helperRegistration("", "Ada Okafor")
	process(t, a, env, d)

	require.Len(t, d.HelperRegistry.Helpers, 1)
	assert.NotEmpty(t, d.HelperRegistry.Helpers[0].ID)
}

func TestHelperRegistrationDefaultsPermissions(t *testing.T) {
	a := NewHelperManagerAgent()
	d := diary.New("PT-1", "corr-1")

	env := event.New(event.TypeHelperRegistration, "PT-1")
	env.SenderRole = event.RolePatient
	env.SetPayload("helper_id", "hlp-1")
	env.SetPayload("name", "Ada Okafor")
	process(t, a, env, d)

	h := d.HelperRegistry.GetHelperByID("hlp-1")
	require.NotNil(t, h)
	assert.Equal(t, []string{diary.PermissionSendMessages}, h.Permissions)
}

func TestHelperDuplicateRegistrationRejected(t *testing.T) {
	a := NewHelperManagerAgent()
	d := diary.New("PT-1", "corr-1")
	process(t, a, helperRegistration("hlp-1", "Ada Okafor"), d)

	res := process(t, a, helperRegistration("hlp-1", "Ada Okafor"), d)

	assert.Len(t, d.HelperRegistry.Helpers, 1)
	assert.Contains(t, firstMessage(t, res), "already registered")
}

func TestHelperRegistrationWithoutNameRejected(t *testing.T) {
	a := NewHelperManagerAgent()
	d := diary.New("PT-1", "corr-1")

	res := process(t, a, helperRegistration("hlp-1", "  "), d)

	assert.Empty(t, d.HelperRegistry.Helpers)
	assert.Contains(t, firstMessage(t, res), "name is required")
}

func TestHelperVerification(t *testing.T) {
	a := NewHelperManagerAgent()
	d := diary.New("PT-1", "corr-1")
	process(t, a, helperRegistration("hlp-1", "Ada Okafor"), d)

	env := event.New(event.TypeHelperVerified, "PT-1")
	env.SenderRole = event.RoleSystem
	env.SetPayload("helper_id", "hlp-1")
	res := process(t, a, env, d)

	h := d.HelperRegistry.GetHelperByID("hlp-1")
	assert.True(t, h.Verified)
	assert.NotNil(t, h.VerifiedAt)
	assert.Contains(t, firstMessage(t, res), "act on your behalf")
}

func TestHelperVerificationUnknownIDIsQuiet(t *testing.T) {
	a := NewHelperManagerAgent()
	d := diary.New("PT-1", "corr-1")

	env := event.New(event.TypeHelperVerified, "PT-1")
	env.SenderRole = event.RoleSystem
	env.SetPayload("helper_id", "hlp-missing")
	res := process(t, a, env, d)

	assert.Empty(t, res.Responses)
}
