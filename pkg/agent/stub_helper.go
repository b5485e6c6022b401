package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

// HelperManagerAgent registers family members and carers who act on the
// patient's behalf. Helpers start unverified; verification is a separate
// event so the patient (or staff) can confirm out of band.
type HelperManagerAgent struct {
	logger *slog.Logger
}

// NewHelperManagerAgent returns the deterministic helper manager.
func NewHelperManagerAgent() *HelperManagerAgent {
	return &HelperManagerAgent{
		logger: slog.Default().With("agent", event.AgentHelperManager),
	}
}

// Process implements Agent.
func (a *HelperManagerAgent) Process(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	switch env.Type {
	case event.TypeHelperRegistration:
		return a.register(env, d)
	case event.TypeHelperVerified:
		return a.verify(env, d)
	default:
		return NewResult(d), nil
	}
}

func (a *HelperManagerAgent) register(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)

	helper := diary.Helper{
		ID:           env.PayloadString("helper_id"),
		Name:         strings.TrimSpace(env.PayloadString("name")),
		Relationship: env.PayloadString("relationship"),
		Channel:      env.PayloadString("channel"),
		Contact:      env.PayloadString("contact"),
		Permissions:  env.PayloadStrings("permissions"),
	}
	if helper.ID == "" {
		helper.ID = "hlp-" + uuid.New().String()
	}
	if helper.Name == "" {
		a.logger.Warn("Helper registration without a name ignored",
			"patient_id", env.PatientID)
		res.AddResponse(reply(env,
			"We couldn't register your helper: a name is required."))
		return res, nil
	}
	if len(helper.Permissions) == 0 {
		helper.Permissions = []string{diary.PermissionSendMessages}
	}

	if !d.HelperRegistry.AddHelper(helper) {
		a.logger.Info("Helper already registered",
			"patient_id", env.PatientID, "helper_id", helper.ID)
		res.AddResponse(reply(env, fmt.Sprintf(
			"%s is already registered as a helper on this record.", helper.Name)))
		return res, nil
	}

	a.logger.Info("Helper registered pending verification",
		"patient_id", env.PatientID, "helper_id", helper.ID, "relationship", helper.Relationship)
	res.AddResponse(reply(env, fmt.Sprintf(
		"We've added %s as your helper. They'll be able to act on your behalf once their identity is verified.",
		helper.Name)))
	return res, nil
}

func (a *HelperManagerAgent) verify(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)
	helperID := env.PayloadString("helper_id")

	if !d.HelperRegistry.VerifyHelper(helperID) {
		a.logger.Warn("Verification for unknown helper ignored",
			"patient_id", env.PatientID, "helper_id", helperID)
		return res, nil
	}

	helper := d.HelperRegistry.GetHelperByID(helperID)
	a.logger.Info("Helper verified",
		"patient_id", env.PatientID, "helper_id", helperID)
	res.AddResponse(reply(env, fmt.Sprintf(
		"%s is verified and can now act on your behalf.", helper.Name)))
	return res, nil
}
