package engine

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/lazypower/salience/internal/attention"
	"github.com/lazypower/salience/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(t *testing.T, db *store.DB, mutate func(*attention.Config)) *Engine {
	t.Helper()
	cfg := attention.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	alloc, err := attention.New(cfg, attention.WithSeed(1))
	if err != nil {
		t.Fatalf("attention.New: %v", err)
	}
	e := New(db, alloc)
	t.Cleanup(e.Stop)
	return e
}

func seedAtoms(t *testing.T, db *store.DB, n int, attn float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		a := &store.Atom{
			ExternalID: fmt.Sprintf("n%d", i),
			Embedding:  []float64{0.1, 0.1, 0.1, 0.1},
			Attention:  attn,
			Strength:   1,
		}
		if err := db.UpsertAtom(a); err != nil {
			t.Fatalf("UpsertAtom: %v", err)
		}
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestRunCycleEmptyStore(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, nil)

	res, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Stats != (attention.Stats{}) {
		t.Errorf("stats = %+v, want zero", res.Stats)
	}
	if n, _ := db.CountCycles(); n != 0 {
		t.Errorf("CountCycles = %d, want 0", n)
	}
}

func TestRunCycleCommitsSoftmax(t *testing.T) {
	db := testDB(t)
	seedAtoms(t, db, 3, 0)
	e := testEngine(t, db, func(c *attention.Config) {
		c.Mechanism = attention.Softmax
		c.DecayRate = 0
	})

	res, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	want := 1000.0 / 9.0
	for i := 0; i < 3; i++ {
		a, _ := db.GetAtom(fmt.Sprintf("n%d", i))
		if !near(a.Attention, want) {
			t.Errorf("n%d attention = %v, want %v", i, a.Attention, want)
		}
	}
	if !near(res.Stats.AttentionEntropy, 1) {
		t.Errorf("entropy = %v, want 1", res.Stats.AttentionEntropy)
	}
	if res.Cycle.NodeCount != 3 || res.Cycle.Mechanism != "softmax" {
		t.Errorf("cycle = %+v", res.Cycle)
	}
	if !e.Alloc.Initialized() {
		t.Error("allocator should be initialized after the first cycle")
	}

	cycles, _ := db.RecentCycles(10)
	if len(cycles) != 1 || !near(cycles[0].TotalAttention, 1000.0/3.0) {
		t.Errorf("recorded cycles = %+v", cycles)
	}
}

func TestRunCycleDecaysFirst(t *testing.T) {
	db := testDB(t)
	seedAtoms(t, db, 3, 100)
	e := testEngine(t, db, func(c *attention.Config) {
		c.Mechanism = attention.Softmax
		c.DecayRate = 0.5
	})

	if _, err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	a, _ := db.GetAtom("n0")
	if want := 50 + 1000.0/9.0; !near(a.Attention, want) {
		t.Errorf("attention = %v, want %v", a.Attention, want)
	}
}

func TestRunCycleEcanUpdatesLinks(t *testing.T) {
	db := testDB(t)
	seedAtoms(t, db, 2, 100)
	db.UpsertLink(&store.Link{ExternalID: "l", SourceIDs: []string{"n0"}, TargetIDs: []string{"n1"}})
	e := testEngine(t, db, func(c *attention.Config) {
		c.Mechanism = attention.Ecan
		c.DecayRate = 0
	})

	res, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	links, _ := db.ListLinks()
	if links[0].Attention <= 0 {
		t.Errorf("link attention = %v, want > 0", links[0].Attention)
	}
	n1, _ := db.GetAtom("n1")
	n0, _ := db.GetAtom("n0")
	if n1.Attention <= n0.Attention {
		t.Errorf("target %v should exceed source %v after diffusion", n1.Attention, n0.Attention)
	}
	if !near(res.Economy.RentPool, 2) {
		t.Errorf("rent pool = %v, want 2", res.Economy.RentPool)
	}
	if len(e.Flows()) != 1 {
		t.Errorf("flows = %d, want 1", len(e.Flows()))
	}
}

func TestRunCycleBudgetHolds(t *testing.T) {
	db := testDB(t)
	seedAtoms(t, db, 5, 300)
	e := testEngine(t, db, func(c *attention.Config) { c.Mechanism = attention.Ecan })

	for i := 0; i < 3; i++ {
		if _, err := e.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle %d: %v", i, err)
		}
	}
	atoms, _ := db.ListAtoms(0)
	total := 0.0
	for _, a := range atoms {
		if a.Attention < 0 {
			t.Errorf("%s attention = %v, want >= 0", a.ExternalID, a.Attention)
		}
		total += a.Attention
	}
	if total > 1000+1e-6 {
		t.Errorf("total = %v, want <= 1000", total)
	}
}

func TestRunCyclePrunesHistory(t *testing.T) {
	db := testDB(t)
	seedAtoms(t, db, 2, 1)
	e := testEngine(t, db, nil)
	e.HistoryLimit = 2

	for i := 0; i < 4; i++ {
		if _, err := e.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle: %v", err)
		}
	}
	if n, _ := db.CountCycles(); n != 2 {
		t.Errorf("CountCycles = %d, want 2", n)
	}
}

func TestRunCycleCancelled(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.RunCycle(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestStatsDoesNotMutate(t *testing.T) {
	db := testDB(t)
	seedAtoms(t, db, 4, 25)
	e := testEngine(t, db, nil)

	s, err := e.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !near(s.TotalAttention, 100) || !near(s.AttentionEntropy, 1) {
		t.Errorf("stats = %+v", s)
	}
	a, _ := db.GetAtom("n0")
	if a.Attention != 25 {
		t.Errorf("attention = %v, want 25", a.Attention)
	}
}

func TestUpdateConfig(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, nil)

	bad := e.Config()
	bad.Temperature = 0
	if err := e.UpdateConfig(bad); err == nil {
		t.Error("expected error for zero temperature")
	}

	good := e.Config()
	good.Mechanism = attention.Ecan
	if err := e.UpdateConfig(good); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if e.Config().Mechanism != attention.Ecan {
		t.Errorf("mechanism = %s, want ecan", e.Config().Mechanism)
	}
}

func TestResetClearsFlows(t *testing.T) {
	db := testDB(t)
	seedAtoms(t, db, 2, 1)
	db.UpsertLink(&store.Link{ExternalID: "l", SourceIDs: []string{"n0"}, TargetIDs: []string{"n1"}})
	e := testEngine(t, db, nil)

	e.RunCycle(context.Background())
	if len(e.Flows()) == 0 {
		t.Fatal("expected flows after a cycle")
	}
	e.Reset()
	if len(e.Flows()) != 0 {
		t.Errorf("flows = %d after reset, want 0", len(e.Flows()))
	}
	if e.Alloc.Initialized() {
		t.Error("allocator should be uninitialized after reset")
	}
}

func TestCycleTimer(t *testing.T) {
	db := testDB(t)
	seedAtoms(t, db, 2, 1)
	e := testEngine(t, db, func(c *attention.Config) { c.UpdateFrequency = 200 })

	e.StartCycleTimer()
	deadline := time.Now().Add(3 * time.Second)
	for {
		n, err := db.CountCycles()
		if err != nil {
			t.Fatalf("CountCycles: %v", err)
		}
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timer ran %d cycles, want >= 2", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
	e.Stop()
	e.Stop()
}

func TestInterval(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, func(c *attention.Config) { c.UpdateFrequency = 4 })
	if got := e.interval(); got != 250*time.Millisecond {
		t.Errorf("interval = %v, want 250ms", got)
	}

	e = testEngine(t, db, func(c *attention.Config) { c.UpdateFrequency = 0 })
	if got := e.interval(); got != 0 {
		t.Errorf("interval = %v, want 0", got)
	}

	e = testEngine(t, db, func(c *attention.Config) { c.UpdateFrequency = 1e-12 })
	if got := e.interval(); got != time.Duration(math.MaxInt64) {
		t.Errorf("interval = %v, want %v", got, time.Duration(math.MaxInt64))
	}

	e = testEngine(t, db, func(c *attention.Config) { c.UpdateFrequency = 0.5 })
	if got := e.interval(); got != 2*time.Second {
		t.Errorf("interval = %v, want 2s", got)
	}
}
