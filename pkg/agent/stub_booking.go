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

// BookingAgent offers deterministic appointment slots, confirms the
// patient's choice, and hands the patient to monitoring. Reschedules
// cancel the confirmed booking and restart the offer round.
type BookingAgent struct {
	logger *slog.Logger

	// now is swapped in tests to pin slot times.
	now func() time.Time
}

// NewBookingAgent returns the deterministic booking agent.
func NewBookingAgent() *BookingAgent {
	return &BookingAgent{
		logger: slog.Default().With("agent", event.AgentBooking),
		now:    time.Now,
	}
}

// Process implements Agent.
func (a *BookingAgent) Process(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	switch env.Type {
	case event.TypeClinicalComplete:
		return a.beginBooking(env, d)
	case event.TypeRescheduleRequest:
		return a.reschedule(env, d)
	case event.TypeCrossPhaseReprompt:
		return a.reprompt(env, d)
	case event.TypeUserMessage:
		return a.conversation(env, d)
	default:
		return a.conversation(env, d)
	}
}

func (a *BookingAgent) beginBooking(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	d.SetPhase(diary.PhaseBooking)

	res := NewResult(d)
	if d.Booking.Confirmed {
		res.AddResponse(reply(env, a.confirmationMessage(d)))
		return res, nil
	}
	if len(d.Booking.OfferedSlots) == 0 {
		a.offerNextSlots(d)
	}
	res.AddResponse(reply(env,
		"Good news, you're ready to book your consultation. "+formatSlotOffer(d.Booking.OfferedSlots)))
	return res, nil
}

func (a *BookingAgent) conversation(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)
	text := env.PayloadString("text")

	if d.Booking.Confirmed {
		res.AddResponse(reply(env, a.confirmationMessage(d)+
			" If you need to change it, just ask to reschedule."))
		return res, nil
	}

	if len(d.Booking.OfferedSlots) == 0 {
		a.offerNextSlots(d)
		res.AddResponse(reply(env, formatSlotOffer(d.Booking.OfferedSlots)))
		return res, nil
	}

	if declinesAllSlots(text) {
		for len(d.Booking.OfferedSlots) > 0 {
			d.Booking.RejectSlot(d.Booking.OfferedSlots[0].SlotID, text)
		}
		a.offerNextSlots(d)
		res.AddResponse(reply(env,
			"No problem, here are some alternative times. "+formatSlotOffer(d.Booking.OfferedSlots)))
		return res, nil
	}

	slot := chooseSlot(text, d.Booking.OfferedSlots)
	if slot == nil {
		res.AddResponse(reply(env,
			"Sorry, I didn't catch which time you'd like. "+formatSlotOffer(d.Booking.OfferedSlots)))
		return res, nil
	}

	bookingID := "bk-" + uuid.New().String()
	d.Booking.SelectSlot(slot.SlotID, bookingID)
	d.Booking.PreAppointmentInstructions =
		"Please bring a list of your current medications and arrive 15 minutes early."

	a.logger.Info("Booking confirmed",
		"patient_id", env.PatientID, "booking_id", bookingID, "slot_id", slot.SlotID)

	res.Emit(handoff(event.TypeBookingComplete, env, map[string]any{
		"booking_id":       bookingID,
		"slot_id":          slot.SlotID,
		"appointment_date": slot.Start.Format(time.RFC3339),
	}))
	res.AddResponse(reply(env, a.confirmationMessage(d)+
		" "+d.Booking.PreAppointmentInstructions))
	return res, nil
}

func (a *BookingAgent) reschedule(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	reason := env.PayloadString("reason")
	if reason == "" {
		reason = "patient requested reschedule"
	}

	cancelled := d.Booking.CancelBooking(reason)
	d.SetPhase(diary.PhaseBooking)
	a.offerNextSlots(d)

	a.logger.Info("Reschedule requested",
		"patient_id", env.PatientID, "had_booking", cancelled)

	lead := "Let's find you an appointment."
	if cancelled {
		lead = "No problem, we've cancelled your appointment."
	}
	res := NewResult(d)
	res.AddResponse(reply(env, lead+" "+formatSlotOffer(d.Booking.OfferedSlots)))
	return res, nil
}

func (a *BookingAgent) reprompt(env *event.Envelope, d *diary.PatientDiary) (*Result, error) {
	res := NewResult(d)
	if !d.Booking.Confirmed && len(d.Booking.OfferedSlots) > 0 {
		res.AddResponse(reply(env,
			"Back to your booking. "+formatSlotOffer(d.Booking.OfferedSlots)))
		return res, nil
	}
	res.AddResponse(reply(env, repromptMessage(diary.PhaseBooking)))
	return res, nil
}

// offerNextSlots replaces the open offer with a fresh pair of slots.
// Ids continue across rounds so rejected and offered slots never collide;
// later rounds sit further out.
func (a *BookingAgent) offerNextSlots(d *diary.PatientDiary) {
	round := len(d.Booking.RejectedSlots) / 2
	seq := len(d.Booking.RejectedSlots) + len(d.Booking.CancelledBookings)*2

	base := a.now().UTC().AddDate(0, 0, 7+2*round).Truncate(24 * time.Hour)
	first := base.Add(10 * time.Hour)
	second := base.AddDate(0, 0, 2).Add(14*time.Hour + 30*time.Minute)

	d.Booking.OfferSlots([]diary.Slot{
		{
			SlotID:    fmt.Sprintf("slot-%d", seq+1),
			Start:     first,
			End:       first.Add(30 * time.Minute),
			Location:  "Outpatient Clinic A",
			Clinician: "the consulting team",
		},
		{
			SlotID:    fmt.Sprintf("slot-%d", seq+2),
			Start:     second,
			End:       second.Add(30 * time.Minute),
			Location:  "Outpatient Clinic A",
			Clinician: "the consulting team",
		},
	})
}

func (a *BookingAgent) confirmationMessage(d *diary.PatientDiary) string {
	slot := d.Booking.SelectedSlot
	if slot == nil {
		return "Your appointment is confirmed."
	}
	return fmt.Sprintf("Your appointment is confirmed for %s at %s.",
		slot.Start.Format("Monday 2 January at 15:04"), slot.Location)
}

func formatSlotOffer(slots []diary.Slot) string {
	lines := make([]string, len(slots))
	for i, s := range slots {
		lines[i] = fmt.Sprintf("%d) %s at %s (ref %s)",
			i+1, s.Start.Format("Monday 2 January at 15:04"), s.Location, s.SlotID)
	}
	return "Available times: " + strings.Join(lines, "; ") +
		". Reply with the option number or reference."
}

// chooseSlot matches free text against the open offer: a literal slot
// reference wins, then ordinal forms.
func chooseSlot(text string, slots []diary.Slot) *diary.Slot {
	lower := strings.ToLower(text)
	for i := range slots {
		if strings.Contains(lower, strings.ToLower(slots[i].SlotID)) {
			return &slots[i]
		}
	}

	// "one" is not a form: "the second one" must not match the first slot.
	ordinals := [][]string{
		{"1", "first", "option 1"},
		{"2", "second", "two", "option 2"},
	}
	tokens := strings.Fields(strings.Map(stripPunct, lower))
	for i, forms := range ordinals {
		if i >= len(slots) {
			break
		}
		for _, form := range forms {
			if strings.Contains(form, " ") {
				if strings.Contains(lower, form) {
					return &slots[i]
				}
				continue
			}
			for _, tok := range tokens {
				if tok == form {
					return &slots[i]
				}
			}
		}
	}
	return nil
}

func declinesAllSlots(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range []string{"neither", "none of", "can't make", "cannot make", "don't work", "no good"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func stripPunct(r rune) rune {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return ' '
	}
	return r
}
