package store

import (
	"fmt"
	"testing"
)

func TestUpsertAtomCreates(t *testing.T) {
	db := testDB(t)

	a := &Atom{
		ExternalID: "concept:go",
		Embedding:  []float64{0.1, 0.2, 0.3},
		Attention:  5,
		Strength:   0.9,
		Confidence: 0.5,
		Count:      3,
	}
	if err := db.UpsertAtom(a); err != nil {
		t.Fatalf("UpsertAtom: %v", err)
	}
	if a.ID == "" {
		t.Error("expected generated ID")
	}
	if a.CreatedAt == 0 || a.UpdatedAt == 0 {
		t.Error("expected timestamps to be set")
	}

	got, err := db.GetAtom("concept:go")
	if err != nil {
		t.Fatalf("GetAtom: %v", err)
	}
	if got == nil {
		t.Fatal("expected atom, got nil")
	}
	if got.ID != a.ID {
		t.Errorf("ID = %q, want %q", got.ID, a.ID)
	}
	if got.Attention != 5 {
		t.Errorf("Attention = %v, want 5", got.Attention)
	}
	if len(got.Embedding) != 3 || got.Embedding[2] != 0.3 {
		t.Errorf("Embedding = %v, want [0.1 0.2 0.3]", got.Embedding)
	}
	if got.Strength != 0.9 || got.Confidence != 0.5 || got.Count != 3 {
		t.Errorf("truth = (%v, %v, %v), want (0.9, 0.5, 3)", got.Strength, got.Confidence, got.Count)
	}
}

func TestUpsertAtomKeepsID(t *testing.T) {
	db := testDB(t)

	first := &Atom{ExternalID: "x", ID: "fixed-id", Attention: 1}
	if err := db.UpsertAtom(first); err != nil {
		t.Fatalf("UpsertAtom: %v", err)
	}

	second := &Atom{ExternalID: "x", Attention: 7, Embedding: []float64{1}}
	if err := db.UpsertAtom(second); err != nil {
		t.Fatalf("UpsertAtom update: %v", err)
	}
	if second.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", second.ID)
	}

	n, _ := db.CountAtoms()
	if n != 1 {
		t.Errorf("CountAtoms = %d, want 1", n)
	}
	got, _ := db.GetAtom("x")
	if got.Attention != 7 {
		t.Errorf("Attention = %v, want 7", got.Attention)
	}
}

func TestUpsertAtomValidation(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertAtom(&Atom{}); err == nil {
		t.Error("expected error for missing external id")
	}
	if err := db.UpsertAtom(&Atom{ExternalID: "neg", Attention: -1}); err == nil {
		t.Error("expected error for negative attention")
	}
}

func TestGetAtomNotFound(t *testing.T) {
	db := testDB(t)

	a, err := db.GetAtom("missing")
	if err != nil {
		t.Fatalf("GetAtom: %v", err)
	}
	if a != nil {
		t.Error("expected nil for missing atom")
	}
}

func TestListAtomsOrder(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 5; i++ {
		if err := db.UpsertAtom(&Atom{ExternalID: fmt.Sprintf("n%d", i), Attention: float64(i)}); err != nil {
			t.Fatalf("UpsertAtom: %v", err)
		}
	}

	all, err := db.ListAtoms(0)
	if err != nil {
		t.Fatalf("ListAtoms: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	for i, a := range all {
		if a.ExternalID != fmt.Sprintf("n%d", i) {
			t.Errorf("all[%d] = %s, want n%d", i, a.ExternalID, i)
		}
	}

	some, _ := db.ListAtoms(2)
	if len(some) != 2 {
		t.Errorf("limited len = %d, want 2", len(some))
	}

	top, err := db.TopAtoms(2)
	if err != nil {
		t.Fatalf("TopAtoms: %v", err)
	}
	if len(top) != 2 || top[0].ExternalID != "n4" || top[1].ExternalID != "n3" {
		t.Errorf("TopAtoms = %v, want n4, n3", top)
	}
}

func TestDeleteAtom(t *testing.T) {
	db := testDB(t)

	db.UpsertAtom(&Atom{ExternalID: "gone"})
	if err := db.DeleteAtom("gone"); err != nil {
		t.Fatalf("DeleteAtom: %v", err)
	}
	if a, _ := db.GetAtom("gone"); a != nil {
		t.Error("atom still present after delete")
	}
	if err := db.DeleteAtom("gone"); err == nil {
		t.Error("expected error deleting missing atom")
	}
}

func TestBatchNode(t *testing.T) {
	a := &Atom{ID: "id", ExternalID: "ext", Embedding: []float64{1, 2}, Attention: 3, Strength: 0.5, Confidence: 0.25, Count: 2}
	n := a.BatchNode()
	if n.ExternalID != "ext" || n.AttentionValue() != 3 {
		t.Errorf("node = %s/%v, want ext/3", n.ExternalID, n.AttentionValue())
	}
	if got := n.EmbeddingValues(); len(got) != 2 || got[1] != 2 {
		t.Errorf("embedding = %v, want [1 2]", got)
	}
	if tv := n.TruthValue.Data(); tv[0] != 0.5 || tv[1] != 0.25 || tv[2] != 2 {
		t.Errorf("truth = %v, want [0.5 0.25 2]", tv)
	}
}
