package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/pkg/agent"
	"github.com/carelane/carelane/pkg/blob"
	"github.com/carelane/carelane/pkg/config"
	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/diarystore"
	"github.com/carelane/carelane/pkg/dispatch"
	"github.com/carelane/carelane/pkg/event"
	"github.com/carelane/carelane/pkg/queue"
	"github.com/carelane/carelane/pkg/safety"
)

// scriptedAgent records every invocation and delegates to an optional
// handler. The default behavior returns the diary unchanged.
type scriptedAgent struct {
	mu      sync.Mutex
	seen    []*event.Envelope
	handler func(ctx context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error)
}

func (a *scriptedAgent) Process(ctx context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
	a.mu.Lock()
	a.seen = append(a.seen, env)
	a.mu.Unlock()
	if a.handler != nil {
		return a.handler(ctx, env, d)
	}
	return agent.NewResult(d), nil
}

func (a *scriptedAgent) calls() []*event.Envelope {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*event.Envelope{}, a.seen...)
}

func (a *scriptedAgent) callCount() int {
	return len(a.calls())
}

// replyingAgent answers every event with a fixed message on the test
// harness channel.
func replyingAgent(message string) *scriptedAgent {
	return &scriptedAgent{
		handler: func(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			res := agent.NewResult(d)
			res.AddResponse(&agent.Response{
				Recipient: env.PatientID,
				Channel:   dispatch.ChannelTestHarness,
				Message:   message,
			})
			return res, nil
		},
	}
}

func newTestGateway(t *testing.T) (*Gateway, *dispatch.CaptureDispatcher, *diarystore.Store) {
	t.Helper()
	store := diarystore.New(blob.NewMemoryStore())
	registry := dispatch.NewRegistry()
	capture := dispatch.NewCaptureDispatcher()
	registry.Register(dispatch.ChannelTestHarness, capture)
	return New(config.DefaultGatewayConfig(), store, registry), capture, store
}

func seedDiary(t *testing.T, store *diarystore.Store, d *diary.PatientDiary) {
	t.Helper()
	_, err := store.Save(context.Background(), d.Header.PatientID, d, nil)
	require.NoError(t, err)
}

func userMessage(patientID, text string) *event.Envelope {
	return event.NewUserMessage(patientID, text, dispatch.ChannelTestHarness)
}

func TestFirstContactCreatesDiary(t *testing.T) {
	g, capture, store := newTestGateway(t)
	intake := replyingAgent("Welcome! Let's get you registered.")
	g.RegisterAgent(event.AgentIntake, intake)
	ctx := context.Background()

	res := g.ProcessEvent(ctx, userMessage("PT-1", "hi"))
	require.NotNil(t, res)
	assert.Equal(t, 1, intake.callCount())
	require.Len(t, res.Responses, 1)
	require.Len(t, capture.Sent(), 1)

	g.DrainBackground()
	d, gen, err := store.Load(ctx, "PT-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	assert.Equal(t, diary.PhaseIntake, d.Header.CurrentPhase)
	assert.Equal(t, d.Header.Created, d.Header.PhaseEnteredAt)

	snap := g.Metrics()
	assert.Equal(t, uint64(1), snap.EventsProcessed)
	assert.Equal(t, uint64(0), snap.EventsFailed)
}

func TestDuplicateEventIsDropped(t *testing.T) {
	g, capture, _ := newTestGateway(t)
	intake := replyingAgent("hello")
	g.RegisterAgent(event.AgentIntake, intake)
	ctx := context.Background()

	env := userMessage("PT-2", "hello there")
	require.NotNil(t, g.ProcessEvent(ctx, env))
	assert.Nil(t, g.ProcessEvent(ctx, env))

	assert.Equal(t, 1, intake.callCount())
	assert.Len(t, capture.Sent(), 1)
	assert.Equal(t, 1, g.log.countByOutcome("PT-2", OutcomeDuplicate))
	g.DrainBackground()
}

func TestRateLimitTripsOnSixteenthMessage(t *testing.T) {
	g, _, _ := newTestGateway(t)
	intake := replyingAgent("ok")
	monitoring := &scriptedAgent{}
	g.RegisterAgent(event.AgentIntake, intake)
	g.RegisterAgent(event.AgentMonitoring, monitoring)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		res := g.ProcessEvent(ctx, userMessage("PT-RATE", fmt.Sprintf("msg %d", i)))
		require.NotNil(t, res)
	}
	assert.Equal(t, 15, intake.callCount())

	res := g.ProcessEvent(ctx, userMessage("PT-RATE", "one more"))
	require.NotNil(t, res)
	require.Len(t, res.Responses, 1)
	assert.True(t, res.Responses[0].MetadataBool("rate_limited"))
	assert.Equal(t, safety.RateLimitMessage, res.Responses[0].Message)
	assert.Nil(t, res.UpdatedDiary)
	assert.Equal(t, 15, intake.callCount())
	assert.GreaterOrEqual(t, g.log.countByOutcome("PT-RATE", OutcomeRateLimited), 1)

	// Internal events for the same patient are exempt.
	hb := event.NewHeartbeat("PT-RATE", map[string]any{"days_since_appointment": 1})
	require.NotNil(t, g.ProcessEvent(ctx, hb))
	assert.Equal(t, 1, monitoring.callCount())

	snap := g.Metrics()
	assert.Equal(t, uint64(1), snap.EventsRateLimited)
	g.DrainBackground()
}

func TestCircuitBreakerCapsChains(t *testing.T) {
	g, _, _ := newTestGateway(t)
	looping := &scriptedAgent{
		handler: func(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			res := agent.NewResult(d)
			res.Emit(event.NewHandoff(event.TypeNeedsIntakeData, env.PatientID, nil, env.CorrelationID))
			return res, nil
		},
	}
	g.RegisterAgent(event.AgentIntake, looping)
	ctx := context.Background()

	seed := event.NewHandoff(event.TypeNeedsIntakeData, "PT-CB", nil, "")
	require.NotNil(t, g.ProcessEvent(ctx, seed))

	assert.Equal(t, 10, looping.callCount())
	assert.Equal(t, 10, g.log.countByOutcome("PT-CB", OutcomeRouted))
	assert.Equal(t, 1, g.log.countByOutcome("PT-CB", OutcomeCircuitBreaker))
	g.DrainBackground()
}

func TestHandoffChainDepths(t *testing.T) {
	g, _, store := newTestGateway(t)
	clinical := &scriptedAgent{
		handler: func(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			res := agent.NewResult(d)
			res.Emit(event.NewHandoff(event.TypeClinicalComplete, env.PatientID, nil, env.CorrelationID))
			return res, nil
		},
	}
	booking := &scriptedAgent{}
	g.RegisterAgent(event.AgentClinical, clinical)
	g.RegisterAgent(event.AgentBooking, booking)

	d := diary.New("PT-CHAIN", "")
	d.SetPhase(diary.PhaseClinical)
	seedDiary(t, store, d)

	// INTAKE_COMPLETE routes explicitly to clinical regardless of phase.
	env := event.NewHandoff(event.TypeIntakeComplete, "PT-CHAIN", nil, "")
	require.NotNil(t, g.ProcessEvent(context.Background(), env))

	require.Equal(t, 1, clinical.callCount())
	assert.Equal(t, 0, clinical.calls()[0].ChainDepth)
	require.Equal(t, 1, booking.callCount())
	assert.Equal(t, event.TypeClinicalComplete, booking.calls()[0].Type)
	assert.Equal(t, 1, booking.calls()[0].ChainDepth)
	g.DrainBackground()
}

func TestPermissionDeniedForUnverifiedHelper(t *testing.T) {
	g, capture, store := newTestGateway(t)
	intake := &scriptedAgent{}
	g.RegisterAgent(event.AgentIntake, intake)

	d := diary.New("PT-PERM", "")
	d.HelperRegistry.AddHelper(diary.Helper{
		ID:          "HELPER-001",
		Name:        "Sam",
		Permissions: []string{diary.PermissionSendMessages},
	})
	seedDiary(t, store, d)

	env := userMessage("PT-PERM", "hello from a helper")
	env.SenderRole = event.RoleHelper
	env.SenderID = "HELPER-001"

	res := g.ProcessEvent(context.Background(), env)
	require.NotNil(t, res)
	require.Len(t, res.Responses, 1)
	assert.Contains(t, strings.ToLower(res.Responses[0].Message), "permission")
	assert.Empty(t, res.EmittedEvents)
	assert.Equal(t, 0, intake.callCount())
	assert.Equal(t, 1, g.log.countByOutcome("PT-PERM", OutcomePermissionDenied))
	assert.Len(t, capture.Sent(), 1)
	g.DrainBackground()
}

func TestVerifiedHelperMayMessage(t *testing.T) {
	g, _, store := newTestGateway(t)
	intake := replyingAgent("thanks")
	g.RegisterAgent(event.AgentIntake, intake)

	d := diary.New("PT-PERM2", "")
	d.HelperRegistry.AddHelper(diary.Helper{
		ID:          "HELPER-002",
		Name:        "Alex",
		Permissions: []string{diary.PermissionSendMessages},
	})
	require.True(t, d.HelperRegistry.VerifyHelper("HELPER-002"))
	seedDiary(t, store, d)

	env := userMessage("PT-PERM2", "message on behalf of mum")
	env.SenderRole = event.RoleHelper
	env.SenderID = "HELPER-002"

	res := g.ProcessEvent(context.Background(), env)
	require.NotNil(t, res)
	assert.Equal(t, 1, intake.callCount())
	assert.Equal(t, 0, g.log.countByOutcome("PT-PERM2", OutcomePermissionDenied))
	g.DrainBackground()
}

func TestCrossPhaseContentEmitsData(t *testing.T) {
	g, _, store := newTestGateway(t)
	booking := &scriptedAgent{}
	clinical := &scriptedAgent{}
	g.RegisterAgent(event.AgentBooking, booking)
	g.RegisterAgent(event.AgentClinical, clinical)

	d := diary.New("PT-XP", "")
	d.SetPhase(diary.PhaseBooking)
	seedDiary(t, store, d)

	res := g.ProcessEvent(context.Background(), userMessage("PT-XP", "I have a new allergy to penicillin"))
	require.NotNil(t, res)
	assert.Equal(t, 1, booking.callCount())
	require.Len(t, res.EmittedEvents, 1)

	require.Equal(t, 1, clinical.callCount())
	xp := clinical.calls()[0]
	assert.Equal(t, event.TypeCrossPhaseData, xp.Type)
	assert.Equal(t, event.AgentClinical, xp.PayloadString(event.KeyTargetAgent))
	assert.Equal(t, "booking", xp.PayloadString("from_phase"))
	assert.Equal(t, "I have a new allergy to penicillin", xp.PayloadString("text"))
	assert.Equal(t, 1, xp.ChainDepth)
	g.DrainBackground()
}

func TestCrossPhaseSuppressedWhenAgentResponds(t *testing.T) {
	g, _, store := newTestGateway(t)
	booking := replyingAgent("Your slot is confirmed for Tuesday.")
	clinical := &scriptedAgent{}
	g.RegisterAgent(event.AgentBooking, booking)
	g.RegisterAgent(event.AgentClinical, clinical)

	d := diary.New("PT-XP2", "")
	d.SetPhase(diary.PhaseBooking)
	seedDiary(t, store, d)

	res := g.ProcessEvent(context.Background(), userMessage("PT-XP2", "the pain is worse since yesterday"))
	require.NotNil(t, res)
	assert.Empty(t, res.EmittedEvents)
	assert.Equal(t, 0, clinical.callCount())
	g.DrainBackground()
}

func TestActiveFollowupHijacksUserMessage(t *testing.T) {
	g, _, store := newTestGateway(t)
	booking := &scriptedAgent{}
	clinical := &scriptedAgent{}
	g.RegisterAgent(event.AgentBooking, booking)
	g.RegisterAgent(event.AgentClinical, clinical)

	d := diary.New("PT-FU", "")
	d.SetPhase(diary.PhaseBooking)
	d.BeginCrossPhaseFollowUp(event.AgentClinical, diary.PhaseClinical, "Which medication are you taking?")
	seedDiary(t, store, d)

	res := g.ProcessEvent(context.Background(), userMessage("PT-FU", "ibuprofen twice a day"))
	require.NotNil(t, res)
	assert.Equal(t, 1, clinical.callCount())
	assert.Equal(t, 0, booking.callCount())
	assert.True(t, clinical.calls()[0].PayloadBool(event.KeyCrossPhaseFollowup))
	g.DrainBackground()
}

func TestStaleFollowupIsCleared(t *testing.T) {
	g, _, store := newTestGateway(t)
	booking := &scriptedAgent{}
	clinical := &scriptedAgent{}
	g.RegisterAgent(event.AgentBooking, booking)
	g.RegisterAgent(event.AgentClinical, clinical)

	d := diary.New("PT-FU2", "")
	d.SetPhase(diary.PhaseBooking)
	d.BeginCrossPhaseFollowUp(event.AgentClinical, diary.PhaseClinical, "Which medication?")
	d.CrossPhaseState.Started = time.Now().UTC().Add(-11 * time.Minute)
	seedDiary(t, store, d)

	res := g.ProcessEvent(context.Background(), userMessage("PT-FU2", "see you tomorrow"))
	require.NotNil(t, res)
	// Stale follow-up cleared; the message routes to the phase agent.
	assert.Equal(t, 1, booking.callCount())
	assert.Equal(t, 0, clinical.callCount())
	assert.False(t, res.UpdatedDiary.CrossPhaseActive())
	g.DrainBackground()
}

func TestAgentErrorGoesToDeadLetterQueue(t *testing.T) {
	g, _, store := newTestGateway(t)
	failing := &scriptedAgent{
		handler: func(_ context.Context, _ *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			// Partial mutation that must be discarded.
			d.Header.RiskLevel = diary.RiskCritical
			return nil, errors.New("assessment model unavailable")
		},
	}
	g.RegisterAgent(event.AgentIntake, failing)
	ctx := context.Background()

	res := g.ProcessEvent(ctx, userMessage("PT-ERR", "hi"))
	require.NotNil(t, res)
	require.Len(t, res.Responses, 1)
	assert.Equal(t, safety.ProcessingErrorMessage, res.Responses[0].Message)

	letters := g.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, "PT-ERR", letters[0].PatientID)
	assert.Equal(t, event.AgentIntake, letters[0].Agent)
	assert.Equal(t, event.TypeUserMessage, letters[0].EventType)
	assert.Contains(t, letters[0].ErrorMessage, "assessment model unavailable")

	// The caller sees the diary as loaded, not the partial mutation.
	require.NotNil(t, res.UpdatedDiary)
	assert.Equal(t, diary.RiskNone, res.UpdatedDiary.Header.RiskLevel)

	snap := g.Metrics()
	assert.Equal(t, uint64(1), snap.EventsFailed)
	assert.Equal(t, 1, snap.DLQSize)
	assert.Equal(t, 1, g.log.countByOutcome("PT-ERR", OutcomeAgentFailed))

	// No save is scheduled for a failed event.
	g.DrainBackground()
	exists, err := store.Exists(ctx, "PT-ERR")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAgentPanicIsRecovered(t *testing.T) {
	g, _, _ := newTestGateway(t)
	panicky := &scriptedAgent{
		handler: func(_ context.Context, _ *event.Envelope, _ *diary.PatientDiary) (*agent.Result, error) {
			panic("nil deref in questionnaire builder")
		},
	}
	g.RegisterAgent(event.AgentIntake, panicky)

	res := g.ProcessEvent(context.Background(), userMessage("PT-PANIC", "hi"))
	require.NotNil(t, res)
	require.Len(t, res.Responses, 1)
	assert.Equal(t, safety.ProcessingErrorMessage, res.Responses[0].Message)

	letters := g.DeadLetters()
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].ErrorMessage, "nil deref in questionnaire builder")
	assert.NotEmpty(t, letters[0].Stack)
	g.DrainBackground()
}

func TestUnregisteredTargetIsLogged(t *testing.T) {
	g, capture, _ := newTestGateway(t)

	res := g.ProcessEvent(context.Background(), userMessage("PT-NOAGENT", "hi"))
	require.NotNil(t, res)
	require.NotNil(t, res.UpdatedDiary)
	assert.Empty(t, res.Responses)
	assert.Empty(t, capture.Sent())
	assert.Equal(t, 1, g.log.countByOutcome("PT-NOAGENT", OutcomeAgentNotFound))
}

func TestClosedPhaseIsLoggedNotRouted(t *testing.T) {
	g, _, store := newTestGateway(t)
	intake := &scriptedAgent{}
	g.RegisterAgent(event.AgentIntake, intake)

	d := diary.New("PT-CLOSED", "")
	d.SetPhase(diary.PhaseClosed)
	seedDiary(t, store, d)

	res := g.ProcessEvent(context.Background(), userMessage("PT-CLOSED", "hello?"))
	require.NotNil(t, res)
	assert.Equal(t, 0, intake.callCount())
	assert.Equal(t, 1, g.log.countByOutcome("PT-CLOSED", OutcomeAgentNotFound))
}

func TestLongMessagesAreTruncated(t *testing.T) {
	g, _, _ := newTestGateway(t)
	var seenRunes int
	intake := &scriptedAgent{
		handler: func(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			seenRunes = len([]rune(env.PayloadString("text")))
			return agent.NewResult(d), nil
		},
	}
	g.RegisterAgent(event.AgentIntake, intake)

	long := strings.Repeat("a", safety.MaxMessageLength+500)
	res := g.ProcessEvent(context.Background(), userMessage("PT-LONG", long))
	require.NotNil(t, res)
	assert.Equal(t, safety.MaxMessageLength, seenRunes)
	g.DrainBackground()
}

func TestConversationLogging(t *testing.T) {
	g, capture, _ := newTestGateway(t)
	longReply := strings.Repeat("x", 300)
	intake := replyingAgent(longReply)
	g.RegisterAgent(event.AgentIntake, intake)

	res := g.ProcessEvent(context.Background(), userMessage("PT-CONV", "hi"))
	require.NotNil(t, res)

	log := res.UpdatedDiary.ConversationLog
	require.Len(t, log, 2)
	assert.Equal(t, diary.DirectionInbound, log[0].Direction)
	assert.Equal(t, "hi", log[0].Message)
	assert.Equal(t, diary.ChatPreConsultation, log[0].ChatChannel)
	assert.Equal(t, dispatch.ChannelTestHarness, log[0].Channel)

	assert.Equal(t, diary.DirectionOutbound, log[1].Direction)
	// The conversation log keeps a bounded preview; the dispatched
	// response carries the full message.
	assert.Len(t, log[1].Message, outboundLogPreview)
	require.Len(t, capture.Sent(), 1)
	assert.Len(t, capture.Sent()[0].Message, 300)
	assert.Equal(t, "pre_consultation", capture.Sent()[0].MetadataString("chat_channel"))
	g.DrainBackground()
}

func TestMonitoringPhaseUsesMonitoringChat(t *testing.T) {
	g, capture, store := newTestGateway(t)
	monitoring := replyingAgent("How are you feeling today?")
	g.RegisterAgent(event.AgentMonitoring, monitoring)

	d := diary.New("PT-MON", "")
	d.SetPhase(diary.PhaseMonitoring)
	seedDiary(t, store, d)

	res := g.ProcessEvent(context.Background(), userMessage("PT-MON", "feeling fine"))
	require.NotNil(t, res)

	log := res.UpdatedDiary.ConversationLog
	require.Len(t, log, 2)
	assert.Equal(t, diary.ChatMonitoring, log[0].ChatChannel)
	assert.Equal(t, diary.ChatMonitoring, log[1].ChatChannel)
	require.Len(t, capture.Sent(), 1)
	assert.Equal(t, "monitoring", capture.Sent()[0].MetadataString("chat_channel"))
	g.DrainBackground()
}

func TestEmittedEventInheritsMonitoringChannel(t *testing.T) {
	g, _, store := newTestGateway(t)
	monitoring := &scriptedAgent{
		handler: func(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			res := agent.NewResult(d)
			res.Emit(event.NewHandoff(event.TypeGPQuery, env.PatientID,
				map[string]any{"query": "is the swelling expected?"}, env.CorrelationID))
			return res, nil
		},
	}
	gpComms := &scriptedAgent{}
	g.RegisterAgent(event.AgentMonitoring, monitoring)
	g.RegisterAgent(event.AgentGPComms, gpComms)

	d := diary.New("PT-INHERIT", "")
	d.SetPhase(diary.PhaseMonitoring)
	seedDiary(t, store, d)

	require.NotNil(t, g.ProcessEvent(context.Background(), userMessage("PT-INHERIT", "my ankle is swollen")))

	require.Equal(t, 1, gpComms.callCount())
	child := gpComms.calls()[0]
	assert.Equal(t, 1, child.ChainDepth)
	assert.Equal(t, string(diary.ChatMonitoring), child.PayloadString(event.KeySourceChatChannel))
	g.DrainBackground()
}

func TestPreConsultationChannelIsNotInherited(t *testing.T) {
	g, _, _ := newTestGateway(t)
	intake := &scriptedAgent{
		handler: func(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			res := agent.NewResult(d)
			res.Emit(event.NewHandoff(event.TypeIntakeComplete, env.PatientID, nil, env.CorrelationID))
			return res, nil
		},
	}
	clinical := &scriptedAgent{}
	g.RegisterAgent(event.AgentIntake, intake)
	g.RegisterAgent(event.AgentClinical, clinical)

	require.NotNil(t, g.ProcessEvent(context.Background(), userMessage("PT-NOINHERIT", "done with my details")))

	require.Equal(t, 1, clinical.callCount())
	assert.Empty(t, clinical.calls()[0].PayloadString(event.KeySourceChatChannel))
	g.DrainBackground()
}

func TestPhaseTransitionStampsEnteredAt(t *testing.T) {
	g, _, _ := newTestGateway(t)
	advancing := &scriptedAgent{
		handler: func(_ context.Context, _ *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			d.SetPhase(diary.PhaseClinical)
			return agent.NewResult(d), nil
		},
	}
	g.RegisterAgent(event.AgentIntake, advancing)

	res := g.ProcessEvent(context.Background(), userMessage("PT-PHASE", "all done"))
	require.NotNil(t, res)
	assert.Equal(t, diary.PhaseClinical, res.UpdatedDiary.Header.CurrentPhase)
	assert.True(t, res.UpdatedDiary.Header.PhaseEnteredAt.After(res.UpdatedDiary.Header.Created))
	g.DrainBackground()
}

func TestUnchangedPhaseKeepsEnteredAt(t *testing.T) {
	g, _, _ := newTestGateway(t)
	g.RegisterAgent(event.AgentIntake, &scriptedAgent{})

	res := g.ProcessEvent(context.Background(), userMessage("PT-PHASE2", "hi"))
	require.NotNil(t, res)
	assert.Equal(t, res.UpdatedDiary.Header.Created, res.UpdatedDiary.Header.PhaseEnteredAt)
	g.DrainBackground()
}

func TestSaveConflictRefreshesGenerationOnly(t *testing.T) {
	g, _, store := newTestGateway(t)
	intake := &scriptedAgent{
		handler: func(_ context.Context, _ *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
			d.Header.RiskLevel = diary.RiskHigh
			return agent.NewResult(d), nil
		},
	}
	g.RegisterAgent(event.AgentIntake, intake)
	ctx := context.Background()

	require.NotNil(t, g.ProcessEvent(ctx, userMessage("PT-CC", "hello")))
	g.DrainBackground()
	_, gen, err := store.Load(ctx, "PT-CC")
	require.NoError(t, err)
	require.Equal(t, int64(1), gen)

	// An external writer bumps the stored generation behind the
	// gateway's back.
	external, _, err := store.Load(ctx, "PT-CC")
	require.NoError(t, err)
	external.Header.RiskLevel = diary.RiskLow
	_, err = store.Save(ctx, "PT-CC", external, nil)
	require.NoError(t, err)

	// The next save starts from the stale cached generation, hits the
	// conflict, refreshes and wins with the cached data.
	require.NotNil(t, g.ProcessEvent(ctx, userMessage("PT-CC", "update please")))
	g.DrainBackground()

	d, gen, err := store.Load(ctx, "PT-CC")
	require.NoError(t, err)
	assert.Equal(t, int64(3), gen)
	assert.Equal(t, diary.RiskHigh, d.Header.RiskLevel)

	cachedGen := g.cache.generation("PT-CC")
	require.NotNil(t, cachedGen)
	assert.Equal(t, int64(3), *cachedGen)

	snap := g.Metrics()
	assert.Equal(t, uint64(0), snap.DiarySaveFailures)
}

func TestHealthCheck(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx := context.Background()

	h := g.HealthCheck(ctx)
	assert.False(t, h.OverallHealthy)
	assert.True(t, h.DiaryStoreAvailable)
	assert.Equal(t, 0, h.AgentsRegistered)
	assert.Equal(t, []string{dispatch.ChannelTestHarness}, h.ChannelNames)

	g.RegisterAgent(event.AgentIntake, &scriptedAgent{})
	g.RegisterAgent(event.AgentClinical, &scriptedAgent{})

	h = g.HealthCheck(ctx)
	assert.True(t, h.OverallHealthy)
	assert.Equal(t, 2, h.AgentsRegistered)
	assert.Equal(t, []string{event.AgentClinical, event.AgentIntake}, h.AgentNames)
	assert.Equal(t, 1, h.ChannelsRegistered)
}

func TestProcessEventRejectsInvalidInput(t *testing.T) {
	g, _, _ := newTestGateway(t)
	assert.Nil(t, g.ProcessEvent(context.Background(), nil))

	env := userMessage("", "hi")
	assert.Nil(t, g.ProcessEvent(context.Background(), env))
}

func TestQueueDeliversInOrder(t *testing.T) {
	g, _, _ := newTestGateway(t)
	intake := &scriptedAgent{}
	g.RegisterAgent(event.AgentIntake, intake)

	mgr := queue.NewManager(config.DefaultQueueConfig(), g)
	require.NoError(t, mgr.Start(context.Background()))
	defer mgr.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, mgr.Enqueue(userMessage("PT-Q", fmt.Sprintf("m%d", i))))
	}

	require.Eventually(t, func() bool {
		return intake.callCount() == 5
	}, 2*time.Second, 10*time.Millisecond)

	var texts []string
	for _, e := range intake.calls() {
		texts = append(texts, e.PayloadString("text"))
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, texts)
	g.DrainBackground()
}

func TestDiarySavedHookReceivesSnapshot(t *testing.T) {
	g, _, _ := newTestGateway(t)
	intake := &scriptedAgent{handler: func(_ context.Context, env *event.Envelope, d *diary.PatientDiary) (*agent.Result, error) {
		d.Intake.Phone = "07911 123456"
		return agent.NewResult(d), nil
	}}
	g.RegisterAgent(event.AgentIntake, intake)

	var mu sync.Mutex
	var saved []string
	g.SetDiarySavedHook(func(patientID string, d *diary.PatientDiary) {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, patientID+":"+d.Intake.Phone)
	})

	g.ProcessEvent(context.Background(), userMessage("PT-1", "hi"))
	g.DrainBackground()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, saved)
	assert.Contains(t, saved, "PT-1:07911 123456")
}
