// Package archive exports completed results to Postgres for the
// downstream statistical layer. Redis remains the source of truth; the
// archive is an additive copy with relational retention, refreshed on an
// interval and deduplicated on event id.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whaletrends/whale-data/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS results (
	event_id         TEXT PRIMARY KEY,
	final_price      DOUBLE PRECISION NOT NULL,
	final_change_pct DOUBLE PRECISION NOT NULL,
	direction        TEXT NOT NULL,
	max_change_pct   DOUBLE PRECISION NOT NULL,
	min_change_pct   DOUBLE PRECISION NOT NULL,
	completed_at     TIMESTAMPTZ NOT NULL
)`

const insertSQL = `
INSERT INTO results
	(event_id, final_price, final_change_pct, direction, max_change_pct, min_change_pct, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id) DO NOTHING`

// ResultSource provides the completed results to export. Implemented by
// the observation engine.
type ResultSource interface {
	AllResults(ctx context.Context) ([]model.Result, error)
}

// Config holds archiver configuration.
type Config struct {
	BatchSize     int           // Rows per batch (default: 100)
	FlushInterval time.Duration // Export interval (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 30 * time.Second,
	}
}

// Archiver periodically copies completed results into Postgres.
type Archiver struct {
	cfg    Config
	db     *pgxpool.Pool
	source ResultSource
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Connect opens a pool, ensures the schema, and returns an Archiver.
func Connect(ctx context.Context, dsn string, cfg Config, source ResultSource, logger *slog.Logger) (*Archiver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return New(cfg, pool, source, logger), nil
}

// New creates an Archiver on an existing pool.
func New(cfg Config, db *pgxpool.Pool, source ResultSource, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &Archiver{
		cfg:    cfg,
		db:     db,
		source: source,
		logger: logger,
	}
}

// Start begins the export loop.
func (a *Archiver) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.run()

	a.logger.Info("result archiver started",
		"batch_size", a.cfg.BatchSize,
		"flush_interval", a.cfg.FlushInterval,
	)
	return nil
}

// Stop halts the loop after a final export.
func (a *Archiver) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("archiver stop timed out")
	}

	// Final export with a fresh context; a.ctx is already cancelled.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.export(flushCtx)

	a.db.Close()
	a.logger.Info("result archiver stopped")
	return nil
}

// run is the export loop.
func (a *Archiver) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.export(a.ctx)
		}
	}
}

// export copies all current results, batching inserts. Rows already
// archived are skipped by the conflict clause.
func (a *Archiver) export(ctx context.Context) {
	results, err := a.source.AllResults(ctx)
	if err != nil {
		a.logger.Error("failed to read results for export", "error", err)
		return
	}
	if len(results) == 0 {
		return
	}

	inserted := int64(0)
	for start := 0; start < len(results); start += a.cfg.BatchSize {
		end := start + a.cfg.BatchSize
		if end > len(results) {
			end = len(results)
		}

		n, err := a.insertBatch(ctx, results[start:end])
		if err != nil {
			a.logger.Error("failed to export result batch", "error", err)
			return
		}
		inserted += n
	}

	if inserted > 0 {
		a.logger.Info("results archived", "scanned", len(results), "inserted", inserted)
	}
}

// insertBatch writes one batch and returns the number of new rows.
func (a *Archiver) insertBatch(ctx context.Context, results []model.Result) (int64, error) {
	batch := &pgx.Batch{}
	for _, res := range results {
		batch.Queue(insertSQL,
			res.EventID,
			res.FinalPrice,
			res.FinalChangePct,
			res.Direction,
			res.MaxChangePct,
			res.MinChangePct,
			res.CompletedAt,
		)
	}

	br := a.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := int64(0)
	for range results {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
