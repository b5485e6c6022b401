package diary

import "time"

// ClinicalQuestion is one question asked during the clinical phase.
type ClinicalQuestion struct {
	ID       string     `json:"id"`
	Question string     `json:"question"`
	Answer   string     `json:"answer,omitempty"`
	Category string     `json:"category,omitempty"`
	Asked    time.Time  `json:"asked"`
	Answered *time.Time `json:"answered,omitempty"`
}

// ClinicalDocument is a reference to an uploaded document. ContentHash, when
// present, deduplicates re-uploads of identical content.
type ClinicalDocument struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	DocType     string    `json:"doc_type,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	Source      string    `json:"source,omitempty"`
	Uploaded    time.Time `json:"uploaded"`
}

// ClinicalSection holds the clinical picture assembled before consultation.
type ClinicalSection struct {
	ChiefComplaint           string `json:"chief_complaint,omitempty"`
	HistoryPresentingIllness string `json:"history_presenting_illness,omitempty"`
	PastMedicalHistory       string `json:"past_medical_history,omitempty"`

	Medications []string `json:"medications,omitempty"`
	Allergies   []string `json:"allergies,omitempty"`
	RedFlags    []string `json:"red_flags,omitempty"`

	Questions []ClinicalQuestion `json:"questions,omitempty"`
	Documents []ClinicalDocument `json:"documents,omitempty"`

	RiskLevel     RiskLevel `json:"risk_level,omitempty"`
	RiskReasoning string    `json:"risk_reasoning,omitempty"`

	SubPhase          SubPhase   `json:"sub_phase"`
	SubPhaseHistory   []SubPhase `json:"sub_phase_history"`
	BackwardLoopCount int        `json:"backward_loop_count"`

	// AssessmentContext carries agent-specific working state across events.
	AssessmentContext map[string]any `json:"assessment_context,omitempty"`
}

var subPhaseOrder = map[SubPhase]int{
	SubPhaseNotStarted:          0,
	SubPhaseAnalyzingReferral:   1,
	SubPhaseAskingQuestions:     2,
	SubPhaseCollectingDocuments: 3,
	SubPhaseScoringRisk:         4,
	SubPhaseComplete:            5,
}

// EnterSubPhase moves the clinical workflow to a new sub-phase. The history
// is an ordered set: each sub-phase appears once, in first-entry order.
// Moving to an earlier sub-phase increments backward_loop_count.
func (s *ClinicalSection) EnterSubPhase(next SubPhase) {
	if next == s.SubPhase {
		return
	}
	if subPhaseOrder[next] < subPhaseOrder[s.SubPhase] {
		s.BackwardLoopCount++
	}
	s.SubPhase = next
	for _, seen := range s.SubPhaseHistory {
		if seen == next {
			return
		}
	}
	s.SubPhaseHistory = append(s.SubPhaseHistory, next)
}

// HasDocumentWithHash reports whether a document with the given content hash
// is already recorded. Empty hashes never match.
func (s *ClinicalSection) HasDocumentWithHash(hash string) bool {
	if hash == "" {
		return false
	}
	for i := range s.Documents {
		if s.Documents[i].ContentHash == hash {
			return true
		}
	}
	return false
}

// AddDocument appends a document record. Uploaded defaults to now.
func (s *ClinicalSection) AddDocument(doc ClinicalDocument) {
	if doc.Uploaded.IsZero() {
		doc.Uploaded = time.Now().UTC()
	}
	s.Documents = append(s.Documents, doc)
}

// AnswerQuestion records an answer against a previously asked question.
// Returns false when the question id is unknown.
func (s *ClinicalSection) AnswerQuestion(id, answer string) bool {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			now := time.Now().UTC()
			s.Questions[i].Answer = answer
			s.Questions[i].Answered = &now
			return true
		}
	}
	return false
}

func (s ClinicalSection) clone() ClinicalSection {
	out := s
	out.Medications = cloneStrings(s.Medications)
	out.Allergies = cloneStrings(s.Allergies)
	out.RedFlags = cloneStrings(s.RedFlags)
	if s.Questions != nil {
		out.Questions = make([]ClinicalQuestion, len(s.Questions))
		for i, q := range s.Questions {
			c := q
			c.Answered = cloneTime(q.Answered)
			out.Questions[i] = c
		}
	}
	if s.Documents != nil {
		out.Documents = append([]ClinicalDocument{}, s.Documents...)
	}
	if s.SubPhaseHistory != nil {
		out.SubPhaseHistory = append([]SubPhase{}, s.SubPhaseHistory...)
	}
	out.AssessmentContext = cloneAnyMap(s.AssessmentContext)
	return out
}
