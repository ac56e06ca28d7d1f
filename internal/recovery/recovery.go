// Package recovery reconciles observation windows that expired while the
// process was not running. It runs once at startup (or on demand) and is
// safe to race with the sampler because completion is idempotent.
package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/whaletrends/whale-data/internal/model"
	"github.com/whaletrends/whale-data/internal/observer"
	"github.com/whaletrends/whale-data/internal/sampler"
)

// Report summarizes one recovery pass.
type Report struct {
	Checked   int
	Recovered int
	Skipped   int
	Errors    int
}

// Recoverer closes windows whose deadline elapsed during downtime.
type Recoverer struct {
	engine *observer.Engine
	prices sampler.PriceSource
	logger *slog.Logger
}

// New creates a Recoverer.
func New(engine *observer.Engine, prices sampler.PriceSource, logger *slog.Logger) *Recoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recoverer{engine: engine, prices: prices, logger: logger}
}

// Run walks the active index once and completes every window whose
// expiry is already in the past. Stray index entries are purged. Per-id
// failures are counted, logged and skipped; they never abort the pass.
func (r *Recoverer) Run(ctx context.Context) (Report, error) {
	ids, err := r.engine.ActiveIDs(ctx)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Checked: len(ids)}
	if len(ids) == 0 {
		return rep, nil
	}

	r.logger.Info("recovery pass started", "active_windows", len(ids))

	for _, id := range ids {
		recovered, err := r.recoverWindow(ctx, id)
		if err != nil {
			r.logger.Warn("failed to recover window", "event_id", id, "error", err)
			rep.Errors++
			continue
		}
		if recovered {
			rep.Recovered++
		} else {
			rep.Skipped++
		}
	}

	r.logger.Info("recovery pass complete",
		"checked", rep.Checked,
		"recovered", rep.Recovered,
		"skipped", rep.Skipped,
		"errors", rep.Errors,
	)

	return rep, nil
}

// recoverWindow completes a single window if its deadline has passed.
// Returns true when the window was completed by this pass.
func (r *Recoverer) recoverWindow(ctx context.Context, id string) (bool, error) {
	obs, err := r.engine.GetObservation(ctx, id)
	if err != nil {
		return false, err
	}
	if obs == nil {
		// Record expired out of the store; purge the stray index entry.
		return false, r.engine.RemoveActive(ctx, id)
	}
	if obs.Status != model.StatusObserving || !obs.Expired(time.Now()) {
		return false, nil
	}

	ev, err := r.engine.GetEvent(ctx, id)
	if err != nil {
		return false, err
	}
	if ev == nil {
		r.logger.Warn("event record missing for expired window, purging", "event_id", id)
		return false, r.engine.RemoveActive(ctx, id)
	}
	if obs.BaselinePrice == 0 {
		r.logger.Warn("zero baseline price, skipping window", "event_id", id)
		return false, nil
	}

	price, err := r.prices.CurrentPrice(ctx, ev.Currency)
	if err != nil {
		return false, err
	}

	change := model.ChangePct(price, obs.BaselinePrice)

	snaps, err := r.engine.GetSnapshots(ctx, id)
	if err != nil {
		return false, err
	}
	maxChange, minChange := observer.CompletionFromSnapshots(snaps, change)

	res := model.Result{
		EventID:        id,
		FinalPrice:     price,
		FinalChangePct: change,
		Direction:      model.Direction(change),
		MaxChangePct:   maxChange,
		MinChangePct:   minChange,
		CompletedAt:    time.Now(),
	}
	if err := r.engine.Complete(ctx, res); err != nil {
		return false, err
	}

	if _, err := r.engine.RecomputeStats(ctx); err != nil {
		r.logger.Warn("failed to recompute stats", "error", err)
	}

	return true, nil
}
