// Package storetest provides an in-memory store implementation for tests.
// It satisfies the engine's Store contract without external
// infrastructure; TTLs are not enforced.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/whaletrends/whale-data/internal/model"
)

// Memory is an in-memory key-value store mirroring the Redis schema.
type Memory struct {
	mu           sync.Mutex
	events       map[string]model.Event
	observations map[string]model.Observation
	snapshots    map[string][]model.PriceSnapshot
	results      map[string]model.Result
	active       map[string]float64 // id -> score (baseline time)
	stats        *model.Stats
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		events:       make(map[string]model.Event),
		observations: make(map[string]model.Observation),
		snapshots:    make(map[string][]model.PriceSnapshot),
		results:      make(map[string]model.Result),
		active:       make(map[string]float64),
	}
}

func (m *Memory) SaveEvent(ctx context.Context, ev model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev
	return nil
}

func (m *Memory) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (m *Memory) EventExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[id]
	return ok, nil
}

func (m *Memory) CreateObservation(ctx context.Context, obs model.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations[obs.EventID] = obs
	m.active[obs.EventID] = float64(obs.BaselineTime.Unix())
	return nil
}

func (m *Memory) GetObservation(ctx context.Context, id string) (*model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs, ok := m.observations[id]
	if !ok {
		return nil, nil
	}
	return &obs, nil
}

func (m *Memory) AppendSnapshot(ctx context.Context, id string, snap model.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[id] = append(m.snapshots[id], snap)
	return nil
}

func (m *Memory) GetSnapshots(ctx context.Context, id string) ([]model.PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PriceSnapshot, len(m.snapshots[id]))
	copy(out, m.snapshots[id])
	return out, nil
}

func (m *Memory) CompleteObservation(ctx context.Context, res model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.EventID] = res
	if obs, ok := m.observations[res.EventID]; ok {
		obs.Status = model.StatusCompleted
		m.observations[res.EventID] = obs
	}
	delete(m.active, res.EventID)
	return nil
}

func (m *Memory) GetResult(ctx context.Context, id string) (*model.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.results[id]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (m *Memory) ActiveIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if m.active[ids[i]] != m.active[ids[j]] {
			return m.active[ids[i]] < m.active[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

func (m *Memory) RemoveActive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
	return nil
}

func (m *Memory) AllResults(ctx context.Context) ([]model.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Result, 0, len(m.results))
	for _, res := range m.results {
		out = append(out, res)
	}
	return out, nil
}

func (m *Memory) CountEvents(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), nil
}

func (m *Memory) SaveStats(ctx context.Context, st model.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = &st
	return nil
}

func (m *Memory) GetStats(ctx context.Context) (*model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil {
		return nil, nil
	}
	st := *m.stats
	return &st, nil
}

// DropObservation deletes the observation record while keeping the id in
// the active index, simulating a record that expired out of the store.
func (m *Memory) DropObservation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observations, id)
}

// DropEvent deletes the event record, simulating retention expiry.
func (m *Memory) DropEvent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
}

// SetObservation overwrites an observation record in place, for tests
// that need an already-elapsed window without touching the active index.
func (m *Memory) SetObservation(obs model.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations[obs.EventID] = obs
}
