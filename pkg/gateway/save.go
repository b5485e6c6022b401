package gateway

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/carelane/carelane/pkg/diarystore"
)

// scheduleSave persists the cached diary in the background. Responses have
// already been dispatched by the time this runs; a lost save risks
// cache/store divergence across restarts, which is accepted for latency.
func (g *Gateway) scheduleSave(patientID string) {
	g.background.Add(1)
	go func() {
		defer g.background.Done()
		g.saveWithRetry(context.Background(), patientID)
	}()
}

// saveWithRetry writes the cached diary with optimistic concurrency.
// Every attempt re-reads the cache so the newest data wins, and a
// generation conflict refreshes only the generation: the cached diary is
// authoritative and is never reverted to what the store holds.
func (g *Gateway) saveWithRetry(ctx context.Context, patientID string) {
	logger := g.logger.With("patient_id", patientID)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.cfg.SaveBackoffInitial
	policy.Multiplier = 3
	policy.RandomizationFactor = 0

	attempt := func() error {
		d, gen, ok := g.cache.load(patientID)
		if !ok {
			return backoff.Permanent(errors.New("diary no longer cached"))
		}

		newGen, err := g.store.Save(ctx, patientID, d, gen)
		if err == nil {
			g.cache.setGeneration(patientID, newGen)
			return nil
		}

		if errors.Is(err, diarystore.ErrConcurrentModification) {
			logger.Info("Diary save conflict, refreshing generation")
			if _, storedGen, lerr := g.store.Load(ctx, patientID); lerr == nil {
				g.cache.setGeneration(patientID, storedGen)
			}
		}
		return err
	}

	err := backoff.Retry(attempt, backoff.WithMaxRetries(policy, uint64(g.cfg.SaveMaxRetries)))
	if err != nil {
		g.metrics.saveFailure()
		logger.Error("Diary save failed after retries", "error", err)
		return
	}

	if hook := g.savedHook(); hook != nil {
		if d, _, ok := g.cache.load(patientID); ok {
			hook(patientID, d)
		}
	}
}

// scheduleChatMirror rewrites the per-channel chat history files from the
// cached diary. Best-effort: failures are logged, never surfaced.
func (g *Gateway) scheduleChatMirror(patientID string) {
	g.background.Add(1)
	go func() {
		defer g.background.Done()

		d, _, ok := g.cache.load(patientID)
		if !ok {
			return
		}
		if err := g.store.SaveChatMirrors(context.Background(), d); err != nil {
			g.logger.Warn("Chat mirror write failed", "patient_id", patientID, "error", err)
		}
	}()
}
