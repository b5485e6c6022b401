package diary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterSubPhaseHistoryIsOrderedSet(t *testing.T) {
	s := ClinicalSection{SubPhase: SubPhaseNotStarted, SubPhaseHistory: []SubPhase{}}

	s.EnterSubPhase(SubPhaseAnalyzingReferral)
	s.EnterSubPhase(SubPhaseAskingQuestions)
	s.EnterSubPhase(SubPhaseAnalyzingReferral) // backward
	s.EnterSubPhase(SubPhaseAskingQuestions)   // forward again, no new history entry

	assert.Equal(t, SubPhaseAskingQuestions, s.SubPhase)
	assert.Equal(t, []SubPhase{SubPhaseAnalyzingReferral, SubPhaseAskingQuestions}, s.SubPhaseHistory)
	assert.Equal(t, 1, s.BackwardLoopCount)
}

func TestEnterSubPhaseSameIsNoop(t *testing.T) {
	s := ClinicalSection{SubPhase: SubPhaseAskingQuestions, SubPhaseHistory: []SubPhase{SubPhaseAskingQuestions}}
	s.EnterSubPhase(SubPhaseAskingQuestions)

	assert.Equal(t, 0, s.BackwardLoopCount)
	assert.Len(t, s.SubPhaseHistory, 1)
}

func TestHasDocumentWithHash(t *testing.T) {
	s := ClinicalSection{}
	s.AddDocument(ClinicalDocument{ID: "DOC-1", ContentHash: "abc123"})
	s.AddDocument(ClinicalDocument{ID: "DOC-2"}) // no hash

	assert.True(t, s.HasDocumentWithHash("abc123"))
	assert.False(t, s.HasDocumentWithHash("other"))
	assert.False(t, s.HasDocumentWithHash(""), "empty hash never matches")
}

func TestAddDocumentStampsUpload(t *testing.T) {
	s := ClinicalSection{}
	s.AddDocument(ClinicalDocument{ID: "DOC-1"})

	require.Len(t, s.Documents, 1)
	assert.False(t, s.Documents[0].Uploaded.IsZero())
}

func TestAnswerQuestion(t *testing.T) {
	s := ClinicalSection{}
	s.Questions = append(s.Questions, ClinicalQuestion{ID: "Q-1", Question: "Any chest pain?"})

	assert.True(t, s.AnswerQuestion("Q-1", "no"))
	assert.False(t, s.AnswerQuestion("unknown", "no"))

	assert.Equal(t, "no", s.Questions[0].Answer)
	require.NotNil(t, s.Questions[0].Answered)
}
