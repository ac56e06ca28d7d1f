package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/whaletrends/whale-data/internal/model"
	"github.com/whaletrends/whale-data/internal/observer"
)

// PriceSource resolves the current price for a currency code.
type PriceSource interface {
	CurrentPrice(ctx context.Context, currency string) (float64, error)
}

// Config holds sampler configuration.
type Config struct {
	Interval time.Duration // Tick interval (default: 5m)
	Timeout  time.Duration // Per-price-call timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Sampler periodically samples prices for all active windows.
type Sampler struct {
	cfg    Config
	engine *observer.Engine
	prices PriceSource
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Sampler.
func New(cfg Config, engine *observer.Engine, prices PriceSource, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Sampler{
		cfg:    cfg,
		engine: engine,
		prices: prices,
		logger: logger,
	}
}

// Start begins the sampling loop.
func (s *Sampler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("price sampler started", "interval", s.cfg.Interval)
	return nil
}

// Stop halts the loop. The in-flight tick finishes first.
func (s *Sampler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("price sampler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main sampling loop.
func (s *Sampler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Sample immediately on start.
	s.Tick()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one pass over the active index. Exported so the recovery
// path and tests can drive it directly.
func (s *Sampler) Tick() {
	start := time.Now()

	ids, err := s.engine.ActiveIDs(s.ctx)
	if err != nil {
		s.logger.Error("failed to read active index", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.Debug("checking active windows", "count", len(ids))

	sampled, completed, errors := 0, 0, 0
	for _, id := range ids {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		done, err := s.checkWindow(id)
		if err != nil {
			s.logger.Warn("failed to check window", "event_id", id, "error", err)
			errors++
			continue
		}
		sampled++
		if done {
			completed++
		}
	}

	s.logger.Info("sample tick complete",
		"windows", len(ids),
		"sampled", sampled,
		"completed", completed,
		"errors", errors,
		"duration", time.Since(start),
	)
}

// checkWindow samples one window and completes it if expired. Returns
// true when the window was completed this tick.
func (s *Sampler) checkWindow(id string) (bool, error) {
	obs, err := s.engine.GetObservation(s.ctx, id)
	if err != nil {
		return false, err
	}
	if obs == nil || obs.Status != model.StatusObserving {
		// Stale index entry; self-heal and move on.
		return false, s.engine.RemoveActive(s.ctx, id)
	}

	ev, err := s.engine.GetEvent(s.ctx, id)
	if err != nil {
		return false, err
	}
	if ev == nil {
		s.logger.Warn("event record missing for active window, purging", "event_id", id)
		return false, s.engine.RemoveActive(s.ctx, id)
	}
	if obs.BaselinePrice == 0 {
		s.logger.Warn("zero baseline price, skipping window", "event_id", id)
		return false, nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	price, err := s.prices.CurrentPrice(ctx, ev.Currency)
	cancel()
	if err != nil {
		return false, err
	}

	change, err := s.engine.Snapshot(s.ctx, id, price)
	if err != nil {
		return false, err
	}

	if !obs.Expired(time.Now()) {
		return false, nil
	}

	snaps, err := s.engine.GetSnapshots(s.ctx, id)
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
	if err := s.engine.Complete(s.ctx, res); err != nil {
		return false, err
	}

	if _, err := s.engine.RecomputeStats(s.ctx); err != nil {
		s.logger.Warn("failed to recompute stats", "error", err)
	}

	return true, nil
}
