// Package identity maps raw contact strings (phone numbers, email
// addresses) to the patients they belong to. Channel adapters use it to
// stamp patient_id on inbound signals that only carry a sender address.
//
// The index is rebuilt from the diary store at startup and refreshed per
// patient after each successful diary save.
package identity

import (
	"strings"
	"sync"

	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/event"
)

// Record is one indexed contact claim.
type Record struct {
	PatientID string           `json:"patient_id"`
	Role      event.SenderRole `json:"role"`
	// HelperID is set for helper records only.
	HelperID string `json:"helper_id,omitempty"`
	Name     string `json:"name,omitempty"`
	// Contact is the normalised form the record is indexed under.
	Contact  string `json:"contact"`
	Channel  string `json:"channel,omitempty"`
	Verified bool   `json:"verified"`
}

// Resolution is the three-way outcome of a contact lookup: exactly one
// match, several candidates, or nothing.
type Resolution struct {
	Match      *Record  `json:"match,omitempty"`
	Candidates []Record `json:"candidates,omitempty"`
}

// Found reports an unambiguous match.
func (r Resolution) Found() bool { return r.Match != nil }

// Ambiguous reports that the contact maps to more than one record.
func (r Resolution) Ambiguous() bool { return len(r.Candidates) > 1 }

// Resolver is the in-memory contact index. Safe for concurrent use.
type Resolver struct {
	mu sync.RWMutex
	// byContact maps a normalised contact to every record claiming it.
	byContact map[string][]Record
	// byPatient remembers which contacts each patient contributed so a
	// re-index can drop them first.
	byPatient map[string][]string
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		byContact: map[string][]Record{},
		byPatient: map[string][]string{},
	}
}

// Resolve looks up a raw contact. The result carries a single match, a
// candidate list when the contact is claimed by several records, or
// neither when the contact is unknown.
func (r *Resolver) Resolve(rawContact string) Resolution {
	contact := NormalizeContact(rawContact)
	if contact == "" {
		return Resolution{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.byContact[contact]
	switch len(recs) {
	case 0:
		return Resolution{}
	case 1:
		match := recs[0]
		return Resolution{Match: &match}
	default:
		return Resolution{Candidates: append([]Record{}, recs...)}
	}
}

// ResolveForPatient looks up a raw contact scoped to one patient.
// When the contact is claimed in several roles on the same diary the
// patient's own record wins, then helpers, then the GP.
func (r *Resolver) ResolveForPatient(rawContact, patientID string) *Record {
	contact := NormalizeContact(rawContact)
	if contact == "" || patientID == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Record
	for i := range r.byContact[contact] {
		rec := r.byContact[contact][i]
		if rec.PatientID != patientID {
			continue
		}
		if best == nil || rolePriority(rec.Role) < rolePriority(best.Role) {
			c := rec
			best = &c
		}
	}
	return best
}

// UpdateForPatient replaces the patient's indexed contacts with the ones
// currently on the diary. A nil diary removes the patient entirely.
func (r *Resolver) UpdateForPatient(patientID string, d *diary.PatientDiary) {
	if patientID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropPatientLocked(patientID)
	if d == nil {
		return
	}
	r.indexDiaryLocked(patientID, d)
}

// Rebuild replaces the whole index from a set of diaries.
func (r *Resolver) Rebuild(diaries []*diary.PatientDiary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byContact = map[string][]Record{}
	r.byPatient = map[string][]string{}
	for _, d := range diaries {
		if d == nil || d.Header.PatientID == "" {
			continue
		}
		r.indexDiaryLocked(d.Header.PatientID, d)
	}
}

// Size returns the number of distinct indexed contacts.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byContact)
}

func (r *Resolver) dropPatientLocked(patientID string) {
	for _, contact := range r.byPatient[patientID] {
		kept := r.byContact[contact][:0]
		for _, rec := range r.byContact[contact] {
			if rec.PatientID != patientID {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(r.byContact, contact)
		} else {
			r.byContact[contact] = kept
		}
	}
	delete(r.byPatient, patientID)
}

func (r *Resolver) indexDiaryLocked(patientID string, d *diary.PatientDiary) {
	for _, rec := range recordsFromDiary(patientID, d) {
		r.byContact[rec.Contact] = append(r.byContact[rec.Contact], rec)
		r.byPatient[patientID] = appendUnique(r.byPatient[patientID], rec.Contact)
	}
}

// recordsFromDiary extracts every contact claim a diary makes: the
// patient's own phone and email, each helper's contact, and the GP
// practice contact.
func recordsFromDiary(patientID string, d *diary.PatientDiary) []Record {
	var out []Record
	patientName := strings.TrimSpace(d.Intake.FirstName + " " + d.Intake.LastName)

	add := func(rec Record, raw string) {
		rec.Contact = NormalizeContact(raw)
		if rec.Contact == "" {
			return
		}
		for _, have := range out {
			if have.Contact == rec.Contact && have.Role == rec.Role && have.HelperID == rec.HelperID {
				return
			}
		}
		rec.PatientID = patientID
		out = append(out, rec)
	}

	add(Record{Role: event.RolePatient, Name: patientName, Verified: true}, d.Intake.Phone)
	add(Record{Role: event.RolePatient, Name: patientName, Verified: true}, d.Intake.Email)
	for i := range d.HelperRegistry.Helpers {
		h := &d.HelperRegistry.Helpers[i]
		add(Record{
			Role:     event.RoleHelper,
			HelperID: h.ID,
			Name:     h.Name,
			Channel:  h.Channel,
			Verified: h.Verified,
		}, h.Contact)
	}
	add(Record{
		Role:     event.RoleGP,
		Name:     d.GPChannel.GPName,
		Channel:  d.GPChannel.Channel,
		Verified: true,
	}, d.GPChannel.Contact)

	return out
}

func rolePriority(role event.SenderRole) int {
	switch role {
	case event.RolePatient:
		return 0
	case event.RoleHelper:
		return 1
	case event.RoleGP:
		return 2
	default:
		return 3
	}
}

func appendUnique(in []string, s string) []string {
	for _, have := range in {
		if have == s {
			return in
		}
	}
	return append(in, s)
}

// NormalizeContact canonicalises a raw contact for indexing and lookup:
// lowercase and trimmed; phone-like strings additionally lose their
// separator characters, and an 11-digit UK number starting 0 is rewritten
// to its +44 form.
func NormalizeContact(raw string) string {
	contact := strings.ToLower(strings.TrimSpace(raw))
	if contact == "" || !phoneLike(contact) {
		return contact
	}

	contact = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.', '(', ')':
			return -1
		}
		return r
	}, contact)

	if len(contact) == 11 && contact[0] == '0' && allDigits(contact) {
		contact = "+44" + contact[1:]
	}
	return contact
}

// phoneLike reports whether the string contains only digits, separators
// and an optional leading plus. Anything with letters or an @ takes the
// plain lowercase path.
func phoneLike(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '\t' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits > 0
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
