package diary

// RequiredIntakeFields is the minimum demographic set a patient must provide
// before intake can complete.
var RequiredIntakeFields = []string{
	"first_name",
	"last_name",
	"date_of_birth",
	"nhs_number",
	"phone",
	"address",
}

// IntakeSection holds demographics and registration progress.
type IntakeSection struct {
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	DateOfBirth      string `json:"date_of_birth,omitempty"`
	NHSNumber        string `json:"nhs_number,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Email            string `json:"email,omitempty"`
	Address          string `json:"address,omitempty"`
	GPPractice       string `json:"gp_practice,omitempty"`
	EmergencyContact string `json:"emergency_contact,omitempty"`

	// ResponderType records who answered intake: "patient" or "helper".
	ResponderType string `json:"responder_type,omitempty"`
	ResponderID   string `json:"responder_id,omitempty"`

	CollectedFields []string `json:"collected_fields"`
}

// MarkFieldCollected records that a field has been provided. Idempotent.
func (s *IntakeSection) MarkFieldCollected(field string) {
	for _, f := range s.CollectedFields {
		if f == field {
			return
		}
	}
	s.CollectedFields = append(s.CollectedFields, field)
}

// GetMissingRequired returns required fields not yet collected, in the
// canonical field order.
func (s *IntakeSection) GetMissingRequired() []string {
	collected := make(map[string]bool, len(s.CollectedFields))
	for _, f := range s.CollectedFields {
		collected[f] = true
	}
	missing := []string{}
	for _, f := range RequiredIntakeFields {
		if !collected[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// IsComplete reports whether every required field has been collected.
func (s *IntakeSection) IsComplete() bool {
	return len(s.GetMissingRequired()) == 0
}

func (s IntakeSection) clone() IntakeSection {
	out := s
	out.CollectedFields = cloneStrings(s.CollectedFields)
	return out
}
