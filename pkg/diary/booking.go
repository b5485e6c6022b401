package diary

import "time"

// Slot is one offered appointment slot. HoldID is set while the slot is
// provisionally held with the scheduling system.
type Slot struct {
	SlotID    string    `json:"slot_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Location  string    `json:"location,omitempty"`
	Clinician string    `json:"clinician,omitempty"`
	HoldID    string    `json:"hold_id,omitempty"`
}

// RejectedSlot records an offered slot the patient turned down.
type RejectedSlot struct {
	Slot     Slot      `json:"slot"`
	Reason   string    `json:"reason,omitempty"`
	Rejected time.Time `json:"rejected"`
}

// CancelledBooking records a previously confirmed booking that was cancelled.
type CancelledBooking struct {
	BookingID   string    `json:"booking_id"`
	Slot        *Slot     `json:"slot,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// BookingSection tracks slot offers and the confirmed appointment.
type BookingSection struct {
	EligibleFrom  *time.Time `json:"eligible_from,omitempty"`
	EligibleUntil *time.Time `json:"eligible_until,omitempty"`

	OfferedSlots  []Slot         `json:"offered_slots,omitempty"`
	RejectedSlots []RejectedSlot `json:"rejected_slots,omitempty"`
	SelectedSlot  *Slot          `json:"selected_slot,omitempty"`

	BookingID                  string `json:"booking_id,omitempty"`
	PreAppointmentInstructions string `json:"pre_appointment_instructions,omitempty"`
	Confirmed                  bool   `json:"confirmed"`

	CancelledBookings []CancelledBooking `json:"cancelled_bookings,omitempty"`
}

// OfferSlots replaces the current slot offer set.
func (b *BookingSection) OfferSlots(slots []Slot) {
	b.OfferedSlots = append([]Slot{}, slots...)
}

// SelectSlot confirms a slot by id from the offered set.
// Returns false when the slot id is not among the offered slots.
func (b *BookingSection) SelectSlot(slotID, bookingID string) bool {
	for _, s := range b.OfferedSlots {
		if s.SlotID == slotID {
			sel := s
			b.SelectedSlot = &sel
			b.BookingID = bookingID
			b.Confirmed = true
			return true
		}
	}
	return false
}

// RejectSlot moves an offered slot into the rejected history.
// Returns false when the slot id is not among the offered slots.
func (b *BookingSection) RejectSlot(slotID, reason string) bool {
	for i, s := range b.OfferedSlots {
		if s.SlotID == slotID {
			b.RejectedSlots = append(b.RejectedSlots, RejectedSlot{
				Slot:     s,
				Reason:   reason,
				Rejected: time.Now().UTC(),
			})
			b.OfferedSlots = append(b.OfferedSlots[:i], b.OfferedSlots[i+1:]...)
			return true
		}
	}
	return false
}

// CancelBooking moves the confirmed booking into the cancelled history and
// clears the selection. Returns false when no booking is confirmed.
func (b *BookingSection) CancelBooking(reason string) bool {
	if !b.Confirmed || b.BookingID == "" {
		return false
	}
	b.CancelledBookings = append(b.CancelledBookings, CancelledBooking{
		BookingID:   b.BookingID,
		Slot:        b.SelectedSlot,
		CancelledAt: time.Now().UTC(),
		Reason:      reason,
	})
	b.SelectedSlot = nil
	b.BookingID = ""
	b.Confirmed = false
	return true
}

func (b BookingSection) clone() BookingSection {
	out := b
	out.EligibleFrom = cloneTime(b.EligibleFrom)
	out.EligibleUntil = cloneTime(b.EligibleUntil)
	if b.OfferedSlots != nil {
		out.OfferedSlots = append([]Slot{}, b.OfferedSlots...)
	}
	if b.RejectedSlots != nil {
		out.RejectedSlots = append([]RejectedSlot{}, b.RejectedSlots...)
	}
	if b.SelectedSlot != nil {
		sel := *b.SelectedSlot
		out.SelectedSlot = &sel
	}
	if b.CancelledBookings != nil {
		out.CancelledBookings = make([]CancelledBooking, len(b.CancelledBookings))
		for i, c := range b.CancelledBookings {
			cc := c
			if c.Slot != nil {
				s := *c.Slot
				cc.Slot = &s
			}
			out.CancelledBookings[i] = cc
		}
	}
	return out
}
