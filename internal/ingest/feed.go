package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/whaletrends/whale-data/internal/model"
	"github.com/whaletrends/whale-data/internal/observer"
)

// PriceSource resolves the current price for a currency code.
type PriceSource interface {
	CurrentPrice(ctx context.Context, currency string) (float64, error)
}

// Creator opens observation windows for ingested events. Implemented by
// the observation engine.
type Creator interface {
	Create(ctx context.Context, ev model.Event, windowHours int) error
}

// Feed is the persistent subscription to the alert stream.
type Feed struct {
	cfg    Config
	engine Creator
	prices PriceSource
	logger *slog.Logger
}

// NewFeed creates a Feed.
func NewFeed(cfg Config, engine Creator, prices PriceSource, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.WindowHours == 0 {
		cfg.WindowHours = def.WindowHours
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}
	return &Feed{
		cfg:    cfg,
		engine: engine,
		prices: prices,
		logger: logger,
	}
}

// Run connects, subscribes and consumes alerts until ctx is cancelled.
// Any transport error tears the session down and reconnects after a
// backoff that doubles up to the configured maximum; a session that
// reached acknowledged subscription resets the backoff.
func (f *Feed) Run(ctx context.Context) error {
	wait := f.cfg.ReconnectBaseDelay

	for {
		subscribed, err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed session ended, reconnecting",
			"error", err,
			"wait", wait,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if subscribed {
			wait = f.cfg.ReconnectBaseDelay
		} else {
			wait *= 2
			if wait > f.cfg.ReconnectMaxDelay {
				wait = f.cfg.ReconnectMaxDelay
			}
		}
	}
}

// session runs one connection lifetime: connect, subscribe, consume.
// Returns whether the subscription was acknowledged during the session.
func (f *Feed) session(ctx context.Context) (bool, error) {
	c := newConn(f.cfg, f.logger)
	if err := c.connect(ctx); err != nil {
		return false, err
	}
	defer c.close()

	if err := f.subscribe(c); err != nil {
		return false, err
	}

	subscribed := false
	ackTimer := time.NewTimer(f.cfg.SubscribeTimeout)
	defer ackTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return subscribed, ctx.Err()

		case <-ackTimer.C:
			if !subscribed {
				return false, errors.New("subscription not acknowledged in time")
			}

		case err := <-c.errors:
			return subscribed, err

		case data := <-c.messages:
			if f.handleMessage(ctx, data) {
				if !subscribed {
					subscribed = true
					f.logger.Info("subscription acknowledged",
						"min_value_usd", f.cfg.MinValueUSD,
						"symbols", f.cfg.Symbols,
						"blockchains", f.cfg.Blockchains,
					)
				}
			}
		}
	}
}

// subscribe sends the subscription request. Symbols and blockchains are
// omitted when unset so the feed includes all assets and chains.
func (f *Feed) subscribe(c *conn) error {
	req := SubscribeRequest{
		Type:        "subscribe_alerts",
		MinValueUSD: f.cfg.MinValueUSD,
		Symbols:     f.cfg.Symbols,
		Blockchains: f.cfg.Blockchains,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.send(data)
}

// handleMessage classifies and dispatches one inbound message. Returns
// true when the message was the subscription acknowledgment. Malformed
// messages are logged and skipped without ending the session.
func (f *Feed) handleMessage(ctx context.Context, data []byte) (acked bool) {
	var env feedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Warn("malformed feed message, skipping",
			"error", err,
			"size", len(data),
		)
		return false
	}

	if env.Error != "" {
		f.logFeedError(env.Error)
		return false
	}

	switch {
	case env.Type == "subscribed_alerts":
		return true
	default:
		f.handleAlert(ctx, data)
		return false
	}
}

// logFeedError surfaces feed-reported errors with actionable hints. The
// connection stays up; the feed closes it itself when the error is
// terminal.
func (f *Feed) logFeedError(msg string) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "limit exceeded"):
		f.logger.Error("feed rate limit exceeded; narrow filters or raise min_value_usd",
			"error", msg,
			"min_value_usd", f.cfg.MinValueUSD,
			"symbols", f.cfg.Symbols,
			"blockchains", f.cfg.Blockchains,
		)
	case strings.Contains(lower, "api") || strings.Contains(lower, "key") || strings.Contains(lower, "auth"):
		f.logger.Error("feed authentication error; check the configured API key", "error", msg)
	case strings.Contains(lower, "blockchain"):
		f.logger.Error("feed rejected blockchain filter; verify chain names or drop the filter", "error", msg)
	default:
		f.logger.Error("feed error", "error", msg)
	}
}

// handleAlert converts one alert into an event with an observation
// window. Alerts without a transaction hash or amounts are skipped.
// Multi-asset alerts are reduced to the first amounts entry: all entries
// share the one transaction hash that keys the event.
func (f *Feed) handleAlert(ctx context.Context, data []byte) {
	var alert AlertMessage
	if err := json.Unmarshal(data, &alert); err != nil {
		f.logger.Warn("unparseable alert, skipping", "error", err)
		return
	}

	id := alert.Transaction.Hash
	if id == "" {
		f.logger.Warn("alert without transaction hash, skipping", "type", alert.Type)
		return
	}
	if len(alert.Amounts) == 0 {
		f.logger.Warn("alert without amounts, skipping", "event_id", id)
		return
	}

	first := alert.Amounts[0]
	currency := strings.ToLower(first.Symbol)

	// No baseline price means the window can never be evaluated; drop the
	// alert rather than store a partial event.
	price, err := f.prices.CurrentPrice(ctx, currency)
	if err != nil {
		f.logger.Warn("failed to resolve baseline price, dropping alert",
			"event_id", id,
			"currency", currency,
			"error", err,
		)
		return
	}

	ts := time.Now()
	if alert.Timestamp > 0 {
		ts = time.Unix(alert.Timestamp, 0)
	}

	ev := model.Event{
		ID:            id,
		Timestamp:     ts,
		Currency:      currency,
		Amount:        first.Amount,
		AmountUSD:     first.ValueUSD,
		FromAddress:   alert.From,
		ToAddress:     alert.To,
		Blockchain:    alert.Blockchain,
		TxType:        alert.TransactionType,
		BaselinePrice: price,
	}

	if err := f.engine.Create(ctx, ev, f.cfg.WindowHours); err != nil {
		if errors.Is(err, observer.ErrDuplicateEvent) {
			f.logger.Debug("duplicate alert ignored", "event_id", id)
			return
		}
		f.logger.Error("failed to create event", "event_id", id, "error", err)
		return
	}

	f.logger.Info("new event",
		"event_id", id,
		"currency", currency,
		"amount_usd", first.ValueUSD,
		"blockchain", alert.Blockchain,
		"baseline_price", price,
	)
}
