package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whaletrends/whale-data/internal/model"
)

const (
	activeKey = "observations:active"
	statsKey  = "stats:summary"
)

func eventKey(id string) string       { return "event:" + id }
func observationKey(id string) string { return "observation:" + id }
func snapshotsKey(id string) string   { return "snapshots:" + id }
func resultKey(id string) string      { return "result:" + id }

// Store is a Redis-backed store for observation state.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a Store on an existing Redis client.
func New(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

// Connect parses a Redis URL, connects, and verifies the connection.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return New(client, logger), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the connection to the Redis server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveEvent writes an immutable event record with a 7 day TTL.
func (s *Store) SaveEvent(ctx context.Context, ev model.Event) error {
	fields := map[string]any{
		"timestamp":        ev.Timestamp.Format(time.RFC3339),
		"currency":         ev.Currency,
		"amount":           formatFloat(ev.Amount),
		"amount_usd":       formatFloat(ev.AmountUSD),
		"from_address":     ev.FromAddress,
		"to_address":       ev.ToAddress,
		"blockchain":       ev.Blockchain,
		"transaction_type": ev.TxType,
		"baseline_price":   formatFloat(ev.BaselinePrice),
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, eventKey(ev.ID), fields)
	pipe.Expire(ctx, eventKey(ev.ID), model.EventTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetEvent loads an event. Returns (nil, nil) when the key is absent or
// already expired.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	data, err := s.client.HGetAll(ctx, eventKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	ev := model.Event{
		ID:            id,
		Currency:      data["currency"],
		Amount:        parseFloat(data["amount"]),
		AmountUSD:     parseFloat(data["amount_usd"]),
		FromAddress:   data["from_address"],
		ToAddress:     data["to_address"],
		Blockchain:    data["blockchain"],
		TxType:        data["transaction_type"],
		BaselinePrice: parseFloat(data["baseline_price"]),
	}
	ev.Timestamp, _ = time.Parse(time.RFC3339, data["timestamp"])
	return &ev, nil
}

// EventExists reports whether an event record exists for id.
func (s *Store) EventExists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, eventKey(id)).Result()
	return n > 0, err
}

// CreateObservation writes the observation record and registers the id in
// the active index, scored by baseline time.
func (s *Store) CreateObservation(ctx context.Context, obs model.Observation) error {
	fields := map[string]any{
		"baseline_price": formatFloat(obs.BaselinePrice),
		"baseline_time":  obs.BaselineTime.Format(time.RFC3339),
		"window_hours":   strconv.Itoa(obs.WindowHours),
		"status":         obs.Status,
		"expires_at":     obs.ExpiresAt.Format(time.RFC3339),
	}
	ttl := time.Duration(obs.WindowHours)*time.Hour + model.ObservationTTLBuffer

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, observationKey(obs.EventID), fields)
	pipe.Expire(ctx, observationKey(obs.EventID), ttl)
	pipe.ZAdd(ctx, activeKey, redis.Z{
		Score:  float64(obs.BaselineTime.Unix()),
		Member: obs.EventID,
	})
	_, err := pipe.Exec(ctx)
	return err
}

// GetObservation loads an observation. Returns (nil, nil) when absent.
func (s *Store) GetObservation(ctx context.Context, id string) (*model.Observation, error) {
	data, err := s.client.HGetAll(ctx, observationKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	obs := model.Observation{
		EventID:       id,
		BaselinePrice: parseFloat(data["baseline_price"]),
		Status:        data["status"],
	}
	obs.WindowHours, _ = strconv.Atoi(data["window_hours"])
	obs.BaselineTime, _ = time.Parse(time.RFC3339, data["baseline_time"])
	obs.ExpiresAt, _ = time.Parse(time.RFC3339, data["expires_at"])
	return &obs, nil
}

// AppendSnapshot appends a price snapshot to the event's list.
func (s *Store) AppendSnapshot(ctx context.Context, id string, snap model.PriceSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, snapshotsKey(id), data)
	pipe.Expire(ctx, snapshotsKey(id), model.SnapshotTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetSnapshots loads all snapshots for an event in append order.
func (s *Store) GetSnapshots(ctx context.Context, id string) ([]model.PriceSnapshot, error) {
	raw, err := s.client.LRange(ctx, snapshotsKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	snaps := make([]model.PriceSnapshot, 0, len(raw))
	for _, item := range raw {
		var snap model.PriceSnapshot
		if err := json.Unmarshal([]byte(item), &snap); err != nil {
			s.logger.Warn("skipping unparseable snapshot", "event_id", id, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// CompleteObservation writes the result, flips the observation status to
// completed, and removes the id from the active index in one pipeline.
func (s *Store) CompleteObservation(ctx context.Context, res model.Result) error {
	fields := map[string]any{
		"final_price":      formatFloat(res.FinalPrice),
		"final_change_pct": formatFloat(res.FinalChangePct),
		"direction":        res.Direction,
		"max_change_pct":   formatFloat(res.MaxChangePct),
		"min_change_pct":   formatFloat(res.MinChangePct),
		"completed_at":     res.CompletedAt.Format(time.RFC3339),
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, resultKey(res.EventID), fields)
	pipe.Expire(ctx, resultKey(res.EventID), model.ResultTTL)
	pipe.HSet(ctx, observationKey(res.EventID), "status", model.StatusCompleted)
	pipe.ZRem(ctx, activeKey, res.EventID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetResult loads a result. Returns (nil, nil) when absent.
func (s *Store) GetResult(ctx context.Context, id string) (*model.Result, error) {
	data, err := s.client.HGetAll(ctx, resultKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	res := resultFromHash(id, data)
	return &res, nil
}

// ActiveIDs returns the ids of all observing windows, ordered by baseline
// time ascending.
func (s *Store) ActiveIDs(ctx context.Context) ([]string, error) {
	return s.client.ZRange(ctx, activeKey, 0, -1).Result()
}

// RemoveActive removes an id from the active index. Removing an absent
// member is a no-op.
func (s *Store) RemoveActive(ctx context.Context, id string) error {
	return s.client.ZRem(ctx, activeKey, id).Err()
}

// AllResults scans all completed results.
func (s *Store) AllResults(ctx context.Context) ([]model.Result, error) {
	var results []model.Result

	iter := s.client.Scan(ctx, 0, "result:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		id := strings.TrimPrefix(key, "result:")
		results = append(results, resultFromHash(id, data))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// CountEvents counts stored event records.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, "event:*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

// SaveStats overwrites the derived summary in place.
func (s *Store) SaveStats(ctx context.Context, st model.Stats) error {
	fields := map[string]any{
		"total_events":    strconv.Itoa(st.TotalEvents),
		"observing_count": strconv.Itoa(st.ObservingCount),
		"completed_count": strconv.Itoa(st.CompletedCount),
		"up_count":        strconv.Itoa(st.UpCount),
		"down_count":      strconv.Itoa(st.DownCount),
		"updated_at":      st.UpdatedAt.Format(time.RFC3339),
	}
	return s.client.HSet(ctx, statsKey, fields).Err()
}

// GetStats loads the last computed summary. Returns (nil, nil) when the
// summary has never been computed.
func (s *Store) GetStats(ctx context.Context) (*model.Stats, error) {
	data, err := s.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	st := model.Stats{}
	st.TotalEvents, _ = strconv.Atoi(data["total_events"])
	st.ObservingCount, _ = strconv.Atoi(data["observing_count"])
	st.CompletedCount, _ = strconv.Atoi(data["completed_count"])
	st.UpCount, _ = strconv.Atoi(data["up_count"])
	st.DownCount, _ = strconv.Atoi(data["down_count"])
	st.UpdatedAt, _ = time.Parse(time.RFC3339, data["updated_at"])
	return &st, nil
}

func resultFromHash(id string, data map[string]string) model.Result {
	res := model.Result{
		EventID:        id,
		FinalPrice:     parseFloat(data["final_price"]),
		FinalChangePct: parseFloat(data["final_change_pct"]),
		Direction:      data["direction"],
		MaxChangePct:   parseFloat(data["max_change_pct"]),
		MinChangePct:   parseFloat(data["min_change_pct"]),
	}
	res.CompletedAt, _ = time.Parse(time.RFC3339, data["completed_at"])
	return res
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
