package store

import (
	"testing"
)

func TestRecordAndRecentCycles(t *testing.T) {
	db := testDB(t)

	for i, m := range []string{"softmax", "ecan", "hybrid"} {
		c := &Cycle{
			Mechanism:      m,
			TotalAttention: float64(i * 100),
			NodeCount:      i,
			CreatedAt:      int64(1000 + i),
		}
		if err := db.RecordCycle(c); err != nil {
			t.Fatalf("RecordCycle: %v", err)
		}
		if c.ID == "" {
			t.Error("expected generated ID")
		}
	}

	recent, err := db.RecentCycles(2)
	if err != nil {
		t.Fatalf("RecentCycles: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Mechanism != "hybrid" || recent[1].Mechanism != "ecan" {
		t.Errorf("order = %s, %s, want hybrid, ecan", recent[0].Mechanism, recent[1].Mechanism)
	}
	if recent[0].TotalAttention != 200 || recent[0].NodeCount != 2 {
		t.Errorf("recent[0] = %+v", recent[0])
	}

	n, err := db.CountCycles()
	if err != nil {
		t.Fatalf("CountCycles: %v", err)
	}
	if n != 3 {
		t.Errorf("CountCycles = %d, want 3", n)
	}
}

func TestRecordCycleSetsCreatedAt(t *testing.T) {
	db := testDB(t)

	c := &Cycle{Mechanism: "ecan"}
	if err := db.RecordCycle(c); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}
	if c.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set")
	}
}

func TestPruneCycles(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 5; i++ {
		db.RecordCycle(&Cycle{Mechanism: "hybrid", CreatedAt: int64(1000 + i), NodeCount: i})
	}

	removed, err := db.PruneCycles(2)
	if err != nil {
		t.Fatalf("PruneCycles: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	recent, _ := db.RecentCycles(10)
	if len(recent) != 2 || recent[0].NodeCount != 4 || recent[1].NodeCount != 3 {
		t.Errorf("kept = %+v, want node counts 4, 3", recent)
	}
}
