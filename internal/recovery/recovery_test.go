package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/whaletrends/whale-data/internal/model"
	"github.com/whaletrends/whale-data/internal/observer"
	"github.com/whaletrends/whale-data/internal/storetest"
)

type fakePrices struct {
	prices map[string]float64
	fail   map[string]bool
}

func (f *fakePrices) CurrentPrice(ctx context.Context, currency string) (float64, error) {
	if f.fail[currency] {
		return 0, errors.New("price unavailable")
	}
	price, ok := f.prices[currency]
	if !ok {
		return 0, errors.New("unknown currency")
	}
	return price, nil
}

func setup(t *testing.T, prices *fakePrices) (*Recoverer, *observer.Engine, *storetest.Memory) {
	t.Helper()
	mem := storetest.NewMemory()
	eng := observer.NewEngine(mem, nil)
	return New(eng, prices, nil), eng, mem
}

func createWindow(t *testing.T, eng *observer.Engine, id, currency string, baseline float64) {
	t.Helper()
	ev := model.Event{
		ID:            id,
		Timestamp:     time.Now(),
		Currency:      currency,
		BaselinePrice: baseline,
	}
	if err := eng.Create(context.Background(), ev, 24); err != nil {
		t.Fatalf("Create(%s) failed: %v", id, err)
	}
}

func expireWindow(t *testing.T, eng *observer.Engine, mem *storetest.Memory, id string) {
	t.Helper()
	obs, err := eng.GetObservation(context.Background(), id)
	if err != nil || obs == nil {
		t.Fatalf("GetObservation(%s) failed: %v", id, err)
	}
	obs.ExpiresAt = time.Now().Add(-time.Hour)
	mem.SetObservation(*obs)
}

func TestRunCompletesExpiredWindows(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"btc": 105}}
	r, eng, mem := setup(t, prices)
	ctx := context.Background()

	createWindow(t, eng, "0xaaa", "btc", 100)
	eng.Snapshot(ctx, "0xaaa", 120)
	eng.Snapshot(ctx, "0xaaa", 80)
	expireWindow(t, eng, mem, "0xaaa")

	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Recovered != 1 || rep.Errors != 0 {
		t.Errorf("report = %+v, want 1 recovered", rep)
	}

	res, _ := eng.GetResult(ctx, "0xaaa")
	if res == nil {
		t.Fatal("no result after recovery")
	}
	if res.FinalChangePct != 5 || res.Direction != model.DirectionUp {
		t.Errorf("result = %+v, want +5%% up", res)
	}
	// Bounds must cover every recorded snapshot change.
	if res.MaxChangePct < 20 || res.MinChangePct > -20 {
		t.Errorf("max/min = %v/%v, want >= 20 / <= -20", res.MaxChangePct, res.MinChangePct)
	}

	ids, _ := eng.ActiveIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("ActiveIDs = %v, want empty", ids)
	}
}

func TestRunSeedsBoundsWithoutSnapshots(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"btc": 95}}
	r, eng, mem := setup(t, prices)
	ctx := context.Background()

	createWindow(t, eng, "0xaaa", "btc", 100)
	expireWindow(t, eng, mem, "0xaaa")

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	res, _ := eng.GetResult(ctx, "0xaaa")
	if res == nil {
		t.Fatal("no result after recovery")
	}
	if res.MaxChangePct != -5 || res.MinChangePct != -5 {
		t.Errorf("max/min = %v/%v, want -5/-5 (seeded with current change)", res.MaxChangePct, res.MinChangePct)
	}
}

func TestRunLeavesUnexpiredWindows(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"btc": 105}}
	r, eng, _ := setup(t, prices)
	ctx := context.Background()

	createWindow(t, eng, "0xaaa", "btc", 100)

	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Skipped != 1 || rep.Recovered != 0 {
		t.Errorf("report = %+v, want 1 skipped", rep)
	}

	ids, _ := eng.ActiveIDs(ctx)
	if len(ids) != 1 {
		t.Errorf("ActiveIDs = %v, want window still active", ids)
	}
}

func TestRunPurgesStrayIndexEntries(t *testing.T) {
	prices := &fakePrices{}
	r, eng, mem := setup(t, prices)
	ctx := context.Background()

	createWindow(t, eng, "0xaaa", "btc", 100)
	mem.DropObservation("0xaaa")

	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Errors != 0 {
		t.Errorf("report = %+v, want no errors", rep)
	}

	ids, _ := eng.ActiveIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("ActiveIDs = %v, want stray entry purged", ids)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	prices := &fakePrices{
		prices: map[string]float64{"eth": 3300},
		fail:   map[string]bool{"btc": true},
	}
	r, eng, mem := setup(t, prices)
	ctx := context.Background()

	createWindow(t, eng, "0xaaa", "btc", 100)
	createWindow(t, eng, "0xbbb", "eth", 3000)
	expireWindow(t, eng, mem, "0xaaa")
	expireWindow(t, eng, mem, "0xbbb")

	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Errors != 1 || rep.Recovered != 1 {
		t.Errorf("report = %+v, want 1 error and 1 recovered", rep)
	}

	if res, _ := eng.GetResult(ctx, "0xbbb"); res == nil {
		t.Error("healthy window was not recovered")
	}
	if res, _ := eng.GetResult(ctx, "0xaaa"); res != nil {
		t.Error("failed window got a result")
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"btc": 110}}
	r, eng, mem := setup(t, prices)
	ctx := context.Background()

	createWindow(t, eng, "0xaaa", "btc", 100)
	expireWindow(t, eng, mem, "0xaaa")

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	first, _ := eng.GetResult(ctx, "0xaaa")

	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if rep.Checked != 0 {
		t.Errorf("second pass checked %d windows, want 0", rep.Checked)
	}

	second, _ := eng.GetResult(ctx, "0xaaa")
	if *first != *second {
		t.Errorf("result changed between passes: %+v vs %+v", first, second)
	}
}
