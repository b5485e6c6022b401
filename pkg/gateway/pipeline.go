package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/carelane/carelane/pkg/agent"
	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/diarystore"
	"github.com/carelane/carelane/pkg/dispatch"
	"github.com/carelane/carelane/pkg/event"
	"github.com/carelane/carelane/pkg/safety"
)

// outboundLogPreview caps outbound messages recorded in the conversation
// log. The full message still goes to the dispatcher.
const outboundLogPreview = 200

// ProcessEvent runs one event through the pipeline. It never returns an
// error: every failure mode yields either a result (possibly carrying a
// user-facing response) or nil for a silent drop. Runs for the same
// patient are serialised; events emitted by agents are processed
// recursively under the same lock, preserving causal order within a chain.
func (g *Gateway) ProcessEvent(ctx context.Context, env *event.Envelope) *agent.Result {
	if env == nil || env.PatientID == "" {
		return nil
	}
	lk := g.patientLock(env.PatientID)
	lk.Lock()
	defer lk.Unlock()
	return g.process(ctx, env)
}

func (g *Gateway) process(ctx context.Context, env *event.Envelope) *agent.Result {
	logger := g.logger.With(
		"patient_id", env.PatientID,
		"event_id", env.EventID,
		"event_type", string(env.Type))

	// 1. Chain depth travels on the envelope; emitted events inherit
	// parent depth + 1 in step 20.
	depth := env.ChainDepth
	if depth < 0 {
		depth = 0
		env.ChainDepth = 0
	}

	// 2. Idempotency
	if g.dedup.seenBefore(env.PatientID, env.EventID) {
		logger.Info("Duplicate event ignored")
		g.logOutcome(env, depth, OutcomeDuplicate, "", "")
		return nil
	}

	// 3. Rate limiting applies to externally-originated user messages
	// only; hand-off chains bypass.
	if depth == 0 && env.Type == event.TypeUserMessage {
		if !g.limiter.Allow(env.PatientID) {
			logger.Info("Rate limit exceeded")
			g.metrics.eventRateLimited()
			g.logOutcome(env, depth, OutcomeRateLimited, "", "")

			resp := &agent.Response{
				Recipient: env.PatientID,
				Channel:   responseChannel(env),
				Message:   safety.RateLimitMessage,
			}
			resp.SetMetadata("rate_limited", true)
			g.dispatchers.Dispatch(ctx, resp)
			return &agent.Result{Responses: []*agent.Response{resp}}
		}
	}

	// 4. Circuit breaker
	if depth >= g.cfg.MaxChainDepth {
		logger.Warn("Circuit breaker tripped, dropping event", "chain_depth", depth)
		g.logOutcome(env, depth, OutcomeCircuitBreaker, "", fmt.Sprintf("chain depth %d", depth))
		return nil
	}

	// 5. Load-or-create diary. The working copy is always a private clone;
	// the cache is only overwritten in step 17.
	d, ok := g.loadOrCreate(ctx, env, logger)
	if !ok {
		g.metrics.eventFailed()
		return nil
	}

	now := time.Now().UTC()

	// 6. A cross-phase follow-up the patient never answered expires.
	if st := d.CrossPhaseState; st != nil && st.Active && now.Sub(st.Started) > g.cfg.CrossPhaseStateTimeout {
		logger.Info("Cross-phase follow-up expired, clearing",
			"target_agent", st.TargetAgent, "started", st.Started)
		d.ClearCrossPhaseState()
	}

	// 7. Permissions
	perm := g.perms.Check(env.SenderRole, senderPermissions(env, d), env, d.Header.CurrentPhase)
	if !perm.Allowed {
		g.logOutcome(env, depth, OutcomePermissionDenied, "", perm.Reason)
		resp := &agent.Response{
			Recipient: env.PatientID,
			Channel:   responseChannel(env),
			Message:   safety.PermissionDeniedMessage,
		}
		g.dispatchers.Dispatch(ctx, resp)
		return &agent.Result{Responses: []*agent.Response{resp}}
	}

	// 8. Cross-phase content pre-detection, before the agent can mutate
	// the phase.
	if depth == 0 && env.Type == event.TypeUserMessage && !d.CrossPhaseActive() {
		if targets := detectCrossPhaseTargets(env.PayloadString("text"), d.Header.CurrentPhase); len(targets) > 0 {
			env.SetPayload(event.KeyHasCrossPhaseContent, true)
			env.SetPayload(event.KeyCrossPhaseTargets, targets)
			logger.Info("Cross-phase content detected", "targets", targets)
		}
	}

	// 9. Target resolution. An active follow-up hijacks the patient's
	// next message; everything else routes by type or phase.
	var target string
	if d.CrossPhaseActive() && env.Type == event.TypeUserMessage {
		target = d.CrossPhaseState.TargetAgent
		env.SetPayload(event.KeyCrossPhaseFollowup, true)
		logger.Info("Routing reply to pending cross-phase agent", "agent", target)
	} else {
		var routed bool
		target, routed = event.Target(env, d.Header.CurrentPhase)
		if !routed {
			logger.Info("No target agent for event", "phase", string(d.Header.CurrentPhase))
			g.logOutcome(env, depth, OutcomeAgentNotFound, "",
				fmt.Sprintf("no target in phase %s", d.Header.CurrentPhase))
			return agent.NewResult(d)
		}
	}
	ag, registered := g.Agent(target)
	if !registered {
		logger.Warn("Target agent not registered", "agent", target)
		g.logOutcome(env, depth, OutcomeAgentNotFound, target, "agent not registered")
		return agent.NewResult(d)
	}

	// 10. Input truncation
	if env.Type == event.TypeUserMessage {
		if text, truncated := safety.TruncateMessage(env.PayloadString("text")); truncated {
			env.SetPayload("text", text)
			logger.Warn("User message truncated", "max_length", safety.MaxMessageLength)
		}
	}

	// 11. Inbound conversation entry
	if env.Type == event.TypeUserMessage {
		if text := env.PayloadString("text"); text != "" {
			d.AppendConversation(diary.ConversationEntry{
				Direction:   diary.DirectionInbound,
				Channel:     responseChannel(env),
				Message:     text,
				Timestamp:   now,
				ChatChannel: inboundChatChannel(env, d),
			})
		}
	}

	// 12. Phase before the agent runs; also the from_phase for any
	// cross-phase data emitted in step 14.
	phaseBefore := d.Header.CurrentPhase

	// 13. Invoke agent
	start := time.Now()
	result, stack, err := g.invokeAgent(ctx, ag, env, d)
	elapsed := time.Since(start)
	g.metrics.observeAgent(target, elapsed)

	if err != nil {
		logger.Error("Agent failed", "agent", target, "error", err, "elapsed", elapsed)
		g.metrics.eventFailed()
		g.logOutcome(env, depth, OutcomeAgentFailed, target, err.Error())
		g.dlq.add(DeadLetter{
			EventID:      env.EventID,
			EventType:    env.Type,
			PatientID:    env.PatientID,
			Agent:        target,
			ErrorKind:    fmt.Sprintf("%T", err),
			ErrorMessage: err.Error(),
			Stack:        stack,
			Payload:      env.Payload,
			Timestamp:    time.Now().UTC(),
		})
		dlqSizeGauge.Set(float64(g.dlq.size()))

		// Partial diary mutations are discarded: the cache still holds
		// the pre-event state and step 17 never runs.
		resp := &agent.Response{
			Recipient: env.PatientID,
			Channel:   responseChannel(env),
			Message:   safety.ProcessingErrorMessage,
		}
		g.dispatchers.Dispatch(ctx, resp)
		failed := &agent.Result{Responses: []*agent.Response{resp}}
		if cached, _, ok := g.cache.load(env.PatientID); ok {
			failed.UpdatedDiary = cached
		}
		return failed
	}
	if result == nil {
		result = agent.NewResult(d)
	}
	if result.UpdatedDiary == nil {
		result.UpdatedDiary = d
	}
	updated := result.UpdatedDiary
	g.metrics.eventProcessed()
	g.logOutcome(env, depth, OutcomeRouted, target, "")

	// 14. Cross-phase data emission. Suppressed when the primary agent
	// already answered, so the patient is not pulled two ways at once.
	if env.PayloadBool(event.KeyHasCrossPhaseContent) && len(result.Responses) == 0 {
		for _, cpTarget := range env.PayloadStrings(event.KeyCrossPhaseTargets) {
			result.Emit(newCrossPhaseData(env, cpTarget, phaseBefore))
		}
	}

	// 15. Stamp outbound chat channel and mirror responses into the
	// conversation log.
	outboundCh := outboundChatChannel(env, target, updated)
	for _, resp := range result.Responses {
		if resp.MetadataString("chat_channel") == "" {
			resp.SetMetadata("chat_channel", string(outboundCh))
		}
		updated.AppendConversation(diary.ConversationEntry{
			Direction:   diary.DirectionOutbound,
			Channel:     resp.Channel,
			Message:     truncateForLog(resp.Message, outboundLogPreview),
			Timestamp:   time.Now().UTC(),
			ChatChannel: outboundCh,
		})
	}

	// 16. Phase transition stamping
	if updated.Header.CurrentPhase != phaseBefore {
		updated.Header.PhaseEnteredAt = time.Now().UTC()
		logger.Info("Phase transition",
			"from", string(phaseBefore), "to", string(updated.Header.CurrentPhase))
	}

	// 17. Cache update; generation stays whatever the last completed save
	// recorded.
	g.cache.putDiary(env.PatientID, updated)

	// 18. Dispatch synchronously. Failures are recorded per response and
	// never fail the pipeline.
	if len(result.Responses) > 0 {
		g.dispatchers.DispatchAll(ctx, result.Responses)
	}

	// 19. Background persistence.
	g.scheduleSave(env.PatientID)
	if len(result.Responses) > 0 || env.Type == event.TypeUserMessage {
		g.scheduleChatMirror(env.PatientID)
	}

	// 20. Loop back emitted events on this worker, under the same patient
	// lock.
	for _, child := range result.EmittedEvents {
		if child == nil {
			continue
		}
		child.ChainDepth = depth + 1
		if outboundCh == diary.ChatMonitoring && child.PayloadString(event.KeySourceChatChannel) == "" {
			child.SetPayload(event.KeySourceChatChannel, string(diary.ChatMonitoring))
		}
		g.process(ctx, child)
	}

	return result
}

// loadOrCreate resolves the working diary: cache, then store, then a
// fresh diary for first contact. The returned diary is always a private
// copy. False only on a store failure other than not-found.
func (g *Gateway) loadOrCreate(ctx context.Context, env *event.Envelope, logger *slog.Logger) (*diary.PatientDiary, bool) {
	if d, _, ok := g.cache.load(env.PatientID); ok {
		return d, true
	}

	d, gen, err := g.store.Load(ctx, env.PatientID)
	if err == nil {
		g.cache.put(env.PatientID, d, &gen)
		return d, true
	}
	if errors.Is(err, diarystore.ErrNotFound) {
		fresh := diary.New(env.PatientID, env.CorrelationID)
		g.cache.put(env.PatientID, fresh, nil)
		logger.Info("Created fresh diary")
		return fresh, true
	}

	logger.Error("Diary load failed", "error", err)
	return nil, false
}

// invokeAgent calls the agent, converting panics into errors so one broken
// agent cannot take the worker down. stack is non-empty only for panics.
func (g *Gateway) invokeAgent(ctx context.Context, a agent.Agent, env *event.Envelope, d *diary.PatientDiary) (result *agent.Result, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			stack = string(debug.Stack())
			err = fmt.Errorf("agent panic: %v", r)
		}
	}()
	result, err = a.Process(ctx, env, d)
	return result, "", err
}

// senderPermissions resolves the permission list the checker evaluates for
// gp and helper senders. Unverified helpers hold no permissions yet.
func senderPermissions(env *event.Envelope, d *diary.PatientDiary) []string {
	switch env.SenderRole {
	case event.RoleHelper:
		if h := d.HelperRegistry.GetHelperByID(env.SenderID); h != nil && h.Verified {
			return h.Permissions
		}
		return nil
	case event.RoleGP:
		return d.GPChannel.Permissions
	default:
		return nil
	}
}

// responseChannel picks the transport for pipeline-generated responses:
// the channel the event arrived on, falling back to websocket.
func responseChannel(env *event.Envelope) string {
	if ch := env.PayloadString("channel"); ch != "" {
		return ch
	}
	if env.Source != "" {
		return env.Source
	}
	return dispatch.ChannelWebsocket
}

// inboundChatChannel resolves which conversation stream an inbound message
// belongs to: explicit override, else monitoring iff the patient is in the
// monitoring phase.
func inboundChatChannel(env *event.Envelope, d *diary.PatientDiary) diary.ChatChannel {
	if s := env.PayloadString(event.KeySourceChatChannel); s != "" {
		return diary.ChatChannel(s)
	}
	if d.Header.CurrentPhase == diary.PhaseMonitoring {
		return diary.ChatMonitoring
	}
	return diary.ChatPreConsultation
}

// outboundChatChannel is the outbound analogue: explicit override, else
// monitoring when the handling agent is the monitoring agent or the diary
// has ended up in the monitoring phase.
func outboundChatChannel(env *event.Envelope, targetAgent string, d *diary.PatientDiary) diary.ChatChannel {
	if s := env.PayloadString(event.KeySourceChatChannel); s != "" {
		return diary.ChatChannel(s)
	}
	if targetAgent == event.AgentMonitoring || d.Header.CurrentPhase == diary.PhaseMonitoring {
		return diary.ChatMonitoring
	}
	return diary.ChatPreConsultation
}

// newCrossPhaseData builds the hand-off envelope informing another phase's
// specialist about content the patient wrote out of phase.
func newCrossPhaseData(parent *event.Envelope, targetAgent string, fromPhase diary.Phase) *event.Envelope {
	child := event.New(event.TypeCrossPhaseData, parent.PatientID)
	child.SenderRole = event.RoleSystem
	child.Source = "cross_phase_detection"
	child.CorrelationID = parent.CorrelationID
	child.Payload = map[string]any{
		event.KeyTargetAgent: targetAgent,
		"text":               parent.PayloadString("text"),
		"from_phase":         string(fromPhase),
		"channel":            parent.PayloadString("channel"),
	}
	return child
}

// truncateForLog caps a message preview at n runes.
func truncateForLog(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (g *Gateway) logOutcome(env *event.Envelope, depth int, outcome, agentName, detail string) {
	entry := g.log.append(LogEntry{
		Timestamp:  time.Now().UTC(),
		PatientID:  env.PatientID,
		EventID:    env.EventID,
		EventType:  env.Type,
		Outcome:    outcome,
		Agent:      agentName,
		ChainDepth: depth,
		Detail:     detail,
	})
	if hook := g.loggedHook(); hook != nil {
		hook(entry)
	}
}
