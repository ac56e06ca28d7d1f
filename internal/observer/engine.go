package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/whaletrends/whale-data/internal/model"
)

// Errors
var (
	// ErrDuplicateEvent is returned by Create when an event with the same
	// transaction hash already exists. Callers doing at-least-once
	// ingestion treat it as a no-op.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrNotObserving is returned by Snapshot when the window is missing
	// or already completed.
	ErrNotObserving = errors.New("observation is not observing")
)

// Store is the narrow key-value contract the engine needs. The Redis
// store implements it; any compliant backend can serve it.
type Store interface {
	SaveEvent(ctx context.Context, ev model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	EventExists(ctx context.Context, id string) (bool, error)

	CreateObservation(ctx context.Context, obs model.Observation) error
	GetObservation(ctx context.Context, id string) (*model.Observation, error)

	AppendSnapshot(ctx context.Context, id string, snap model.PriceSnapshot) error
	GetSnapshots(ctx context.Context, id string) ([]model.PriceSnapshot, error)

	CompleteObservation(ctx context.Context, res model.Result) error
	GetResult(ctx context.Context, id string) (*model.Result, error)

	ActiveIDs(ctx context.Context) ([]string, error)
	RemoveActive(ctx context.Context, id string) error

	AllResults(ctx context.Context) ([]model.Result, error)
	CountEvents(ctx context.Context) (int, error)
	SaveStats(ctx context.Context, st model.Stats) error
	GetStats(ctx context.Context) (*model.Stats, error)
}

// Engine implements the observation lifecycle over a Store.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Create writes the event and opens its observation window. The event id
// is the transaction hash; a second create for the same id returns
// ErrDuplicateEvent and leaves the first record untouched.
func (e *Engine) Create(ctx context.Context, ev model.Event, windowHours int) error {
	if ev.ID == "" {
		return fmt.Errorf("event id is empty")
	}
	if ev.BaselinePrice <= 0 {
		return fmt.Errorf("baseline price must be > 0, got %v", ev.BaselinePrice)
	}

	exists, err := e.store.EventExists(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("check event exists: %w", err)
	}
	if exists {
		return ErrDuplicateEvent
	}

	if err := e.store.SaveEvent(ctx, ev); err != nil {
		return fmt.Errorf("save event: %w", err)
	}

	now := time.Now()
	obs := model.Observation{
		EventID:       ev.ID,
		BaselinePrice: ev.BaselinePrice,
		BaselineTime:  now,
		WindowHours:   windowHours,
		Status:        model.StatusObserving,
		ExpiresAt:     now.Add(time.Duration(windowHours) * time.Hour),
	}
	if err := e.store.CreateObservation(ctx, obs); err != nil {
		return fmt.Errorf("create observation: %w", err)
	}

	return nil
}

// Snapshot records a price sample for an observing window and returns the
// percent change against the baseline. Returns ErrNotObserving when the
// window is missing or completed; nothing is appended in that case.
func (e *Engine) Snapshot(ctx context.Context, id string, price float64) (float64, error) {
	obs, err := e.store.GetObservation(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get observation: %w", err)
	}
	if obs == nil || obs.Status != model.StatusObserving {
		return 0, ErrNotObserving
	}

	change := model.ChangePct(price, obs.BaselinePrice)
	snap := model.PriceSnapshot{
		Time:      time.Now(),
		Price:     price,
		ChangePct: change,
	}
	if err := e.store.AppendSnapshot(ctx, id, snap); err != nil {
		return 0, fmt.Errorf("append snapshot: %w", err)
	}

	return change, nil
}

// Complete finalizes a window: writes the result, flips the status, and
// removes the id from the active index. Completing an already-completed
// or missing window is a no-op, never an error, so the sampler and the
// recovery pass can both issue it.
func (e *Engine) Complete(ctx context.Context, res model.Result) error {
	obs, err := e.store.GetObservation(ctx, res.EventID)
	if err != nil {
		return fmt.Errorf("get observation: %w", err)
	}
	if obs == nil || obs.Status != model.StatusObserving {
		// Already completed (or expired out of the store); make sure the
		// active index agrees and stop.
		if err := e.store.RemoveActive(ctx, res.EventID); err != nil {
			return fmt.Errorf("remove active: %w", err)
		}
		return nil
	}

	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now()
	}
	if err := e.store.CompleteObservation(ctx, res); err != nil {
		return fmt.Errorf("complete observation: %w", err)
	}

	e.logger.Info("observation completed",
		"event_id", res.EventID,
		"final_change_pct", res.FinalChangePct,
		"direction", res.Direction,
	)

	return nil
}

// ActiveIDs returns the ids of all observing windows ordered by creation
// time.
func (e *Engine) ActiveIDs(ctx context.Context) ([]string, error) {
	return e.store.ActiveIDs(ctx)
}

// RemoveActive purges a stray id from the active index.
func (e *Engine) RemoveActive(ctx context.Context, id string) error {
	return e.store.RemoveActive(ctx, id)
}

// GetEvent loads one event, or nil when absent.
func (e *Engine) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return e.store.GetEvent(ctx, id)
}

// GetObservation loads one observation, or nil when absent.
func (e *Engine) GetObservation(ctx context.Context, id string) (*model.Observation, error) {
	return e.store.GetObservation(ctx, id)
}

// GetResult loads one result, or nil when absent.
func (e *Engine) GetResult(ctx context.Context, id string) (*model.Result, error) {
	return e.store.GetResult(ctx, id)
}

// GetSnapshots loads all snapshots for an event.
func (e *Engine) GetSnapshots(ctx context.Context, id string) ([]model.PriceSnapshot, error) {
	return e.store.GetSnapshots(ctx, id)
}

// AllResults returns every completed result still within retention.
func (e *Engine) AllResults(ctx context.Context) ([]model.Result, error) {
	return e.store.AllResults(ctx)
}

// ActiveWindows loads the observation records for every active id,
// skipping ids whose record has expired out of the store.
func (e *Engine) ActiveWindows(ctx context.Context) ([]model.Observation, error) {
	ids, err := e.store.ActiveIDs(ctx)
	if err != nil {
		return nil, err
	}

	windows := make([]model.Observation, 0, len(ids))
	for _, id := range ids {
		obs, err := e.store.GetObservation(ctx, id)
		if err != nil {
			return nil, err
		}
		if obs == nil {
			continue
		}
		windows = append(windows, *obs)
	}
	return windows, nil
}

// Statistics returns the last computed summary, or nil when none has
// been computed yet. The summary is derived data; use RecomputeStats to
// refresh it.
func (e *Engine) Statistics(ctx context.Context) (*model.Stats, error) {
	return e.store.GetStats(ctx)
}

// RecomputeStats rebuilds the summary by scanning events and results and
// overwrites it in place.
func (e *Engine) RecomputeStats(ctx context.Context) (model.Stats, error) {
	total, err := e.store.CountEvents(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("count events: %w", err)
	}

	active, err := e.store.ActiveIDs(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("active ids: %w", err)
	}

	results, err := e.store.AllResults(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("scan results: %w", err)
	}

	st := model.Stats{
		TotalEvents:    total,
		ObservingCount: len(active),
		CompletedCount: len(results),
		UpdatedAt:      time.Now(),
	}
	for _, res := range results {
		switch res.Direction {
		case model.DirectionUp:
			st.UpCount++
		case model.DirectionDown:
			st.DownCount++
		}
	}

	if err := e.store.SaveStats(ctx, st); err != nil {
		return model.Stats{}, fmt.Errorf("save stats: %w", err)
	}
	return st, nil
}

// CompletionFromSnapshots computes the max and min percent change across
// recorded snapshots, seeded with the current change so a window with no
// snapshots still gets max = min = current.
func CompletionFromSnapshots(snaps []model.PriceSnapshot, currentChange float64) (maxChange, minChange float64) {
	maxChange, minChange = currentChange, currentChange
	for _, snap := range snaps {
		if snap.ChangePct > maxChange {
			maxChange = snap.ChangePct
		}
		if snap.ChangePct < minChange {
			minChange = snap.ChangePct
		}
	}
	return maxChange, minChange
}
