package atom

import (
	"testing"

	"github.com/lazypower/salience/internal/tensor"
)

func TestNodeAttentionAccessors(t *testing.T) {
	n := NewNode("n1", "concept:cat", []float64{1, 2}, 5)

	if !n.HasAttention() {
		t.Fatal("expected attention slot")
	}
	n.AddAttention(2.5)
	if got := n.AttentionValue(); got != 7.5 {
		t.Errorf("attention = %v, want 7.5", got)
	}

	bare := &Node{ID: "n2", ExternalID: "x"}
	bare.SetAttentionValue(3)
	if bare.AttentionValue() != 0 {
		t.Errorf("node without slot reported attention %v", bare.AttentionValue())
	}
	if bare.EmbeddingValues() != nil {
		t.Error("expected nil embedding values")
	}
}

func TestNewNodeCopiesEmbedding(t *testing.T) {
	emb := []float64{1, 2, 3}
	n := NewNode("n1", "a", emb, 0)
	emb[0] = 42
	if n.EmbeddingValues()[0] != 1 {
		t.Errorf("embedding aliased caller slice")
	}
}

func TestTruthRoundTrip(t *testing.T) {
	tv := TruthValue{Strength: 0.9, Confidence: 0.4, Count: 12}
	got := TruthFromTensor(tv.Tensor())
	if got != tv {
		t.Errorf("truth = %+v, want %+v", got, tv)
	}

	partial := TruthFromTensor(tensor.Vector("tv", []float64{0.5}))
	if partial.Strength != 0.5 || partial.Confidence != 0 || partial.Count != 0 {
		t.Errorf("partial truth = %+v", partial)
	}
	if TruthFromTensor(nil) != (TruthValue{}) {
		t.Error("nil tensor should give zero truth value")
	}
}

func TestIndexSumAttention(t *testing.T) {
	a := NewNode("1", "a", nil, 10)
	b := NewNode("2", "b", nil, 4)
	b2 := NewNode("3", "b", nil, 1)
	ix := NewIndex([]*Node{a, nil, b, b2})

	if got := len(ix.Lookup("b")); got != 2 {
		t.Fatalf("lookup b = %d nodes, want 2", got)
	}
	if got := ix.SumAttention([]string{"a", "b"}); got != 15 {
		t.Errorf("sum = %v, want 15", got)
	}
	if got := ix.SumAttention([]string{"a", "a"}); got != 20 {
		t.Errorf("duplicate id sum = %v, want 20", got)
	}
	if got := ix.SumAttention([]string{"missing"}); got != 0 {
		t.Errorf("unresolved sum = %v, want 0", got)
	}
}

func TestLinkAttention(t *testing.T) {
	l := NewLink("l1", "rel", []string{"a"}, []string{"b", "c"})
	l.SetAttentionValue(3)
	if l.AttentionValue() != 3 {
		t.Errorf("link attention = %v, want 3", l.AttentionValue())
	}
	var nilLink *Link
	if nilLink.AttentionValue() != 0 {
		t.Error("nil link should read zero")
	}
}
