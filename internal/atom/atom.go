// Package atom defines the graph elements the attention core operates on:
// nodes carrying an embedding and an attention scalar, and links relating
// nodes by external id.
package atom

import (
	"github.com/lazypower/salience/internal/tensor"
)

// EmbeddingDim is the conventional embedding width.
const EmbeddingDim = 128

// TruthValue is the (strength, confidence, count) triple attached to atoms.
type TruthValue struct {
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
	Count      float64 `json:"count"`
}

// DefaultTruth is assigned to atoms created without an explicit truth value.
var DefaultTruth = TruthValue{Strength: 1, Confidence: 0, Count: 0}

// Tensor packs the truth value into a [3] tensor.
func (tv TruthValue) Tensor() *tensor.Tensor {
	return tensor.Vector("truth", []float64{tv.Strength, tv.Confidence, tv.Count})
}

// TruthFromTensor unpacks a [3] tensor. Missing elements read as zero.
func TruthFromTensor(t *tensor.Tensor) TruthValue {
	if t == nil {
		return TruthValue{}
	}
	v := t.Data()
	var tv TruthValue
	if len(v) > 0 {
		tv.Strength = v[0]
	}
	if len(v) > 1 {
		tv.Confidence = v[1]
	}
	if len(v) > 2 {
		tv.Count = v[2]
	}
	return tv
}

// Node is a knowledge node. Attention is the authoritative attention scalar;
// a node with a nil Attention tensor has no attention slot and is skipped by
// every attention update.
type Node struct {
	ID         string
	ExternalID string
	Embedding  *tensor.Tensor
	Attention  *tensor.Tensor
	TruthValue *tensor.Tensor
}

// NewNode builds a node with a copy of embedding and the given attention.
func NewNode(id, externalID string, embedding []float64, attention float64) *Node {
	var emb *tensor.Tensor
	if embedding != nil {
		emb = tensor.Vector("embedding", embedding)
	}
	return &Node{
		ID:         id,
		ExternalID: externalID,
		Embedding:  emb,
		Attention:  tensor.Scalar("attention", attention),
		TruthValue: DefaultTruth.Tensor(),
	}
}

// HasAttention reports whether the node carries an attention slot.
func (n *Node) HasAttention() bool {
	return n != nil && n.Attention != nil && n.Attention.Len() > 0
}

// AttentionValue returns the node's attention, or 0 without a slot.
func (n *Node) AttentionValue() float64 {
	if !n.HasAttention() {
		return 0
	}
	return n.Attention.Value()
}

// SetAttentionValue writes the node's attention. Nodes without a slot are
// left untouched.
func (n *Node) SetAttentionValue(v float64) {
	if !n.HasAttention() {
		return
	}
	n.Attention.SetValue(v)
}

// AddAttention credits delta to the node's attention.
func (n *Node) AddAttention(delta float64) {
	n.SetAttentionValue(n.AttentionValue() + delta)
}

// EmbeddingValues returns the live embedding buffer, or nil.
func (n *Node) EmbeddingValues() []float64 {
	if n == nil || n.Embedding == nil {
		return nil
	}
	return n.Embedding.Data()
}

// Link relates source nodes to target nodes by external id.
type Link struct {
	ID         string
	ExternalID string
	SourceIDs  []string
	TargetIDs  []string
	Attention  *tensor.Tensor
	TruthValue *tensor.Tensor
}

// NewLink builds a link with zero attention.
func NewLink(id, externalID string, sources, targets []string) *Link {
	return &Link{
		ID:         id,
		ExternalID: externalID,
		SourceIDs:  append([]string(nil), sources...),
		TargetIDs:  append([]string(nil), targets...),
		Attention:  tensor.Scalar("attention", 0),
		TruthValue: DefaultTruth.Tensor(),
	}
}

// AttentionValue returns the link's attention, or 0 without a slot.
func (l *Link) AttentionValue() float64 {
	if l == nil || l.Attention == nil {
		return 0
	}
	return l.Attention.Value()
}

// SetAttentionValue writes the link's attention when it has a slot.
func (l *Link) SetAttentionValue(v float64) {
	if l == nil || l.Attention == nil {
		return
	}
	l.Attention.SetValue(v)
}
