package observer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/whaletrends/whale-data/internal/model"
	"github.com/whaletrends/whale-data/internal/observer"
	"github.com/whaletrends/whale-data/internal/storetest"
)

func newEngine() (*observer.Engine, *storetest.Memory) {
	mem := storetest.NewMemory()
	return observer.NewEngine(mem, nil), mem
}

func testEvent(id string, baseline float64) model.Event {
	return model.Event{
		ID:            id,
		Timestamp:     time.Now(),
		Currency:      "btc",
		Amount:        100,
		AmountUSD:     6200000,
		Blockchain:    "bitcoin",
		BaselinePrice: baseline,
	}
}

func TestCreateOpensObservingWindow(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	before := time.Now()
	if err := eng.Create(ctx, testEvent("0xabc", 100), 24); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	obs, err := eng.GetObservation(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetObservation failed: %v", err)
	}
	if obs == nil {
		t.Fatal("no observation after Create")
	}
	if obs.Status != model.StatusObserving {
		t.Errorf("status = %q, want %q", obs.Status, model.StatusObserving)
	}
	if obs.BaselinePrice != 100 {
		t.Errorf("baseline = %v, want 100", obs.BaselinePrice)
	}
	wantExpiry := obs.BaselineTime.Add(24 * time.Hour)
	if !obs.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want baseline + 24h (%v)", obs.ExpiresAt, wantExpiry)
	}
	if obs.BaselineTime.Before(before) {
		t.Errorf("baseline time %v precedes Create call at %v", obs.BaselineTime, before)
	}

	ids, _ := eng.ActiveIDs(ctx)
	if len(ids) != 1 || ids[0] != "0xabc" {
		t.Errorf("ActiveIDs = %v, want [0xabc]", ids)
	}
}

func TestCreateDuplicateKeepsFirstBaseline(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	if err := eng.Create(ctx, testEvent("0xabc", 100), 24); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	err := eng.Create(ctx, testEvent("0xabc", 200), 24)
	if !errors.Is(err, observer.ErrDuplicateEvent) {
		t.Fatalf("second Create error = %v, want ErrDuplicateEvent", err)
	}

	ev, _ := eng.GetEvent(ctx, "0xabc")
	if ev.BaselinePrice != 100 {
		t.Errorf("baseline after duplicate = %v, want first baseline 100", ev.BaselinePrice)
	}

	obs, _ := eng.GetObservation(ctx, "0xabc")
	if obs.BaselinePrice != 100 {
		t.Errorf("observation baseline = %v, want 100", obs.BaselinePrice)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	if err := eng.Create(ctx, testEvent("", 100), 24); err == nil {
		t.Error("Create accepted empty id")
	}
	if err := eng.Create(ctx, testEvent("0xabc", 0), 24); err == nil {
		t.Error("Create accepted zero baseline price")
	}
}

func TestSnapshotComputesChange(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	if err := eng.Create(ctx, testEvent("0xabc", 100), 24); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	change, err := eng.Snapshot(ctx, "0xabc", 110)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if change != 10 {
		t.Errorf("change = %v, want 10", change)
	}

	snaps, _ := eng.GetSnapshots(ctx, "0xabc")
	if len(snaps) != 1 || snaps[0].Price != 110 || snaps[0].ChangePct != 10 {
		t.Errorf("snapshots = %+v, want one snapshot at price 110 / +10%%", snaps)
	}
}

func TestSnapshotAfterCompleteIsNoop(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	if err := eng.Create(ctx, testEvent("0xabc", 100), 24); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := eng.Complete(ctx, completion("0xabc", 95)); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	_, err := eng.Snapshot(ctx, "0xabc", 120)
	if !errors.Is(err, observer.ErrNotObserving) {
		t.Fatalf("Snapshot error = %v, want ErrNotObserving", err)
	}

	snaps, _ := eng.GetSnapshots(ctx, "0xabc")
	if len(snaps) != 0 {
		t.Errorf("snapshots appended after completion: %+v", snaps)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	if err := eng.Create(ctx, testEvent("0xabc", 100), 24); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first := completion("0xabc", 95)
	if err := eng.Complete(ctx, first); err != nil {
		t.Fatalf("first Complete failed: %v", err)
	}

	// Second complete with different values must not touch the result.
	second := completion("0xabc", 200)
	second.FinalChangePct = 100
	second.Direction = model.DirectionUp
	if err := eng.Complete(ctx, second); err != nil {
		t.Fatalf("second Complete errored: %v", err)
	}

	res, _ := eng.GetResult(ctx, "0xabc")
	if res.FinalPrice != 95 || res.Direction != model.DirectionDown {
		t.Errorf("result after double complete = %+v, want first completion preserved", res)
	}
}

func TestCompleteMissingWindowPurgesIndex(t *testing.T) {
	eng, mem := newEngine()
	ctx := context.Background()

	if err := eng.Create(ctx, testEvent("0xabc", 100), 24); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mem.DropObservation("0xabc")

	if err := eng.Complete(ctx, completion("0xabc", 95)); err != nil {
		t.Fatalf("Complete on missing window errored: %v", err)
	}

	ids, _ := eng.ActiveIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("ActiveIDs = %v, want empty after purge", ids)
	}
	if res, _ := eng.GetResult(ctx, "0xabc"); res != nil {
		t.Errorf("result written for missing window: %+v", res)
	}
}

func TestFullWindowScenario(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	if err := eng.Create(ctx, testEvent("0xabc", 100), 24); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := eng.Snapshot(ctx, "0xabc", 110); err != nil {
		t.Fatalf("Snapshot(110) failed: %v", err)
	}
	if _, err := eng.Snapshot(ctx, "0xabc", 90); err != nil {
		t.Fatalf("Snapshot(90) failed: %v", err)
	}

	res := model.Result{
		EventID:        "0xabc",
		FinalPrice:     95,
		FinalChangePct: -5,
		Direction:      model.Direction(-5),
		MaxChangePct:   10,
		MinChangePct:   -10,
	}
	if err := eng.Complete(ctx, res); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, _ := eng.GetResult(ctx, "0xabc")
	if got.Direction != model.DirectionDown || got.MaxChangePct != 10 || got.MinChangePct != -10 {
		t.Errorf("result = %+v, want down / max 10 / min -10", got)
	}

	ids, _ := eng.ActiveIDs(ctx)
	for _, id := range ids {
		if id == "0xabc" {
			t.Error("0xabc still in active index after completion")
		}
	}
}

func TestActiveWindowsSkipsExpiredRecords(t *testing.T) {
	eng, mem := newEngine()
	ctx := context.Background()

	eng.Create(ctx, testEvent("0xaaa", 100), 24)
	eng.Create(ctx, testEvent("0xbbb", 100), 24)
	mem.DropObservation("0xaaa")

	windows, err := eng.ActiveWindows(ctx)
	if err != nil {
		t.Fatalf("ActiveWindows failed: %v", err)
	}
	if len(windows) != 1 || windows[0].EventID != "0xbbb" {
		t.Errorf("ActiveWindows = %+v, want just 0xbbb", windows)
	}
}

func TestRecomputeStats(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	eng.Create(ctx, testEvent("0xaaa", 100), 24)
	eng.Create(ctx, testEvent("0xbbb", 100), 24)
	eng.Create(ctx, testEvent("0xccc", 100), 24)

	up := completion("0xaaa", 110)
	up.FinalChangePct = 10
	up.Direction = model.DirectionUp
	eng.Complete(ctx, up)
	eng.Complete(ctx, completion("0xbbb", 95))

	st, err := eng.RecomputeStats(ctx)
	if err != nil {
		t.Fatalf("RecomputeStats failed: %v", err)
	}
	if st.TotalEvents != 3 || st.ObservingCount != 1 || st.CompletedCount != 2 {
		t.Errorf("stats = %+v, want 3 total / 1 observing / 2 completed", st)
	}
	if st.UpCount != 1 || st.DownCount != 1 {
		t.Errorf("stats = %+v, want 1 up / 1 down", st)
	}

	stored, _ := eng.Statistics(ctx)
	if stored == nil || stored.TotalEvents != 3 {
		t.Errorf("Statistics after recompute = %+v, want persisted summary", stored)
	}
}

func TestCompletionFromSnapshots(t *testing.T) {
	snaps := []model.PriceSnapshot{
		{ChangePct: 10},
		{ChangePct: -10},
		{ChangePct: 3},
	}

	maxC, minC := observer.CompletionFromSnapshots(snaps, -5)
	if maxC != 10 || minC != -10 {
		t.Errorf("CompletionFromSnapshots = (%v, %v), want (10, -10)", maxC, minC)
	}

	// No snapshots: seeded with current change.
	maxC, minC = observer.CompletionFromSnapshots(nil, 2.5)
	if maxC != 2.5 || minC != 2.5 {
		t.Errorf("seeded CompletionFromSnapshots = (%v, %v), want (2.5, 2.5)", maxC, minC)
	}

	// Current change outside snapshot range widens the bounds.
	maxC, minC = observer.CompletionFromSnapshots(snaps, 15)
	if maxC != 15 || minC != -10 {
		t.Errorf("CompletionFromSnapshots = (%v, %v), want (15, -10)", maxC, minC)
	}
}

func completion(id string, finalPrice float64) model.Result {
	change := model.ChangePct(finalPrice, 100)
	return model.Result{
		EventID:        id,
		FinalPrice:     finalPrice,
		FinalChangePct: change,
		Direction:      model.Direction(change),
		MaxChangePct:   change,
		MinChangePct:   change,
	}
}
