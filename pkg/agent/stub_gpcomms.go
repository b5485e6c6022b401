package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

// GPCommsAgent manages the outbound channel to the patient's GP practice:
// it records queries in the diary and sends them to the GP contact when one
// is on file, and chases overdue queries when the scheduler asks for a
// reminder.
type GPCommsAgent struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewGPCommsAgent returns the deterministic GP communications agent.
func NewGPCommsAgent() *GPCommsAgent {
	return &GPCommsAgent{
		logger: slog.Default().With("agent", event.AgentGPComms),
		now:    time.Now,
	}
}

// Process implements Agent.
func (a *GPCommsAgent) Process(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	switch env.Type {
	case event.TypeGPQuery:
		return a.sendQuery(env, d)
	case event.TypeGPReminder:
		return a.sendReminder(env, d)
	default:
		return NewResult(d), nil
	}
}

// sendQuery records a new pending query and, when a GP contact is on file,
// sends it out. Without a contact the query is record-only and waits for
// one to be registered.
func (a *GPCommsAgent) sendQuery(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)
	text := strings.TrimSpace(env.PayloadString("text"))
	if text == "" {
		a.logger.Warn("GP query without text ignored", "patient_id", env.PatientID)
		return res, nil
	}

	query := diary.GPQuery{
		ID:        "gpq-" + uuid.New().String(),
		QueryType: env.PayloadString("query_type"),
		Text:      text,
		Sent:      a.now().UTC(),
		Status:    diary.QueryPending,
	}
	d.GPChannel.AddQuery(query)

	if d.GPChannel.Contact == "" {
		a.logger.Info("GP query recorded, no GP contact on file",
			"patient_id", env.PatientID, "query_id", query.ID)
		return res, nil
	}

	res.AddResponse(&Response{
		Recipient: d.GPChannel.Contact,
		Channel:   gpChannel(d),
		Message:   a.queryMessage(d, query),
	})
	a.logger.Info("GP query sent",
		"patient_id", env.PatientID, "query_id", query.ID, "contact", d.GPChannel.Contact)
	return res, nil
}

// sendReminder chases one overdue pending query, stamping reminder_sent so
// the scheduler does not re-fire for it.
func (a *GPCommsAgent) sendReminder(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)
	queryID := env.PayloadString("query_id")
	query := d.GPChannel.GetQueryByID(queryID)
	if query == nil {
		a.logger.Warn("Reminder for unknown GP query ignored",
			"patient_id", env.PatientID, "query_id", queryID)
		return res, nil
	}
	if query.Status != diary.QueryPending {
		a.logger.Info("Reminder skipped, query already resolved",
			"patient_id", env.PatientID, "query_id", queryID, "status", query.Status)
		return res, nil
	}

	d.GPChannel.MarkReminderSent(queryID, a.now().UTC())

	if d.GPChannel.Contact == "" {
		a.logger.Info("GP reminder recorded, no GP contact on file",
			"patient_id", env.PatientID, "query_id", queryID)
		return res, nil
	}

	res.AddResponse(&Response{
		Recipient: d.GPChannel.Contact,
		Channel:   gpChannel(d),
		Message: fmt.Sprintf(
			"Reminder: we are still waiting for your response about %s (ref %s). Original query: %s",
			patientDisplayName(d), queryID, query.Text),
	})
	a.logger.Info("GP reminder sent",
		"patient_id", env.PatientID, "query_id", queryID)
	return res, nil
}

func (a *GPCommsAgent) queryMessage(d *diary.PatientDiary, q diary.GPQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query regarding %s", patientDisplayName(d))
	if d.Intake.NHSNumber != "" {
		fmt.Fprintf(&b, " (NHS %s)", d.Intake.NHSNumber)
	}
	fmt.Fprintf(&b, ", ref %s: %s", q.ID, q.Text)
	b.WriteString(" Please reply quoting the reference.")
	return b.String()
}

// patientDisplayName is the name used in GP-facing messages, falling back
// to the patient id when intake has no name yet.
func patientDisplayName(d *diary.PatientDiary) string {
	name := strings.TrimSpace(d.Intake.FirstName + " " + d.Intake.LastName)
	if name == "" {
		return "patient " + d.Header.PatientID
	}
	return name
}

func gpChannel(d *diary.PatientDiary) string {
	if d.GPChannel.Channel != "" {
		return d.GPChannel.Channel
	}
	return "email"
}
