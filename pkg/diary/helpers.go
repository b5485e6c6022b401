package diary

import "time"

// Helper permission names. A helper holds zero or more; full_access implies
// everything.
const (
	PermissionSendMessages    = "send_messages"
	PermissionUploadDocuments = "upload_documents"
	PermissionFullAccess      = "full_access"
)

// Helper is a family member or carer acting on the patient's behalf.
type Helper struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Relationship string     `json:"relationship,omitempty"`
	Channel      string     `json:"channel,omitempty"`
	Contact      string     `json:"contact,omitempty"`
	Permissions  []string   `json:"permissions"`
	Verified     bool       `json:"verified"`
	RegisteredAt time.Time  `json:"registered_at"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

// HasPermission reports whether the helper holds the named permission or
// full_access.
func (h *Helper) HasPermission(p string) bool {
	for _, have := range h.Permissions {
		if have == p || have == PermissionFullAccess {
			return true
		}
	}
	return false
}

// HelperRegistry tracks verified and pending helpers for one patient.
type HelperRegistry struct {
	Helpers []Helper `json:"helpers"`
}

// AddHelper registers a new helper in the pending (unverified) state.
// Returns false when a helper with the same id already exists.
func (r *HelperRegistry) AddHelper(h Helper) bool {
	if r.GetHelperByID(h.ID) != nil {
		return false
	}
	if h.RegisteredAt.IsZero() {
		h.RegisteredAt = time.Now().UTC()
	}
	h.Verified = false
	h.VerifiedAt = nil
	r.Helpers = append(r.Helpers, h)
	return true
}

// VerifyHelper marks the helper verified. Returns false when unknown.
func (r *HelperRegistry) VerifyHelper(id string) bool {
	for i := range r.Helpers {
		if r.Helpers[i].ID == id {
			now := time.Now().UTC()
			r.Helpers[i].Verified = true
			r.Helpers[i].VerifiedAt = &now
			return true
		}
	}
	return false
}

// GetHelperByID returns the helper with the given id, or nil.
func (r *HelperRegistry) GetHelperByID(id string) *Helper {
	for i := range r.Helpers {
		if r.Helpers[i].ID == id {
			return &r.Helpers[i]
		}
	}
	return nil
}

// GetHelperByContact returns the first helper matching the contact string,
// or nil.
func (r *HelperRegistry) GetHelperByContact(contact string) *Helper {
	for i := range r.Helpers {
		if r.Helpers[i].Contact == contact {
			return &r.Helpers[i]
		}
	}
	return nil
}

// GetHelpersWithPermission returns verified helpers holding the named
// permission. Unverified helpers are never returned regardless of their
// permission list.
func (r *HelperRegistry) GetHelpersWithPermission(p string) []Helper {
	out := []Helper{}
	for i := range r.Helpers {
		h := &r.Helpers[i]
		if h.Verified && h.HasPermission(p) {
			out = append(out, *h)
		}
	}
	return out
}

// RemoveHelper deletes the helper with the given id. Returns false when
// unknown.
func (r *HelperRegistry) RemoveHelper(id string) bool {
	for i := range r.Helpers {
		if r.Helpers[i].ID == id {
			r.Helpers = append(r.Helpers[:i], r.Helpers[i+1:]...)
			return true
		}
	}
	return false
}

func (r HelperRegistry) clone() HelperRegistry {
	out := HelperRegistry{}
	if r.Helpers != nil {
		out.Helpers = make([]Helper, len(r.Helpers))
		for i, h := range r.Helpers {
			c := h
			c.Permissions = cloneStrings(h.Permissions)
			c.VerifiedAt = cloneTime(h.VerifiedAt)
			out.Helpers[i] = c
		}
	}
	return out
}
