package attention

import (
	"math"

	"github.com/lazypower/salience/internal/atom"
)

// Stats summarizes one batch's attention. It is recomputed every cycle.
type Stats struct {
	TotalAttention      float64 `json:"total_attention"`
	AverageAttention    float64 `json:"average_attention"`
	AttentionEntropy    float64 `json:"attention_entropy"`
	ResourceUtilization float64 `json:"resource_utilization"`
	GradientNorm        float64 `json:"gradient_norm"`
	ConvergenceRate     float64 `json:"convergence_rate"`
}

// attentionValues collects the clamped attention of every node with a slot.
func attentionValues(nodes []*atom.Node) []float64 {
	vals := make([]float64, 0, len(nodes))
	for _, n := range nodes {
		if !n.HasAttention() {
			continue
		}
		vals = append(vals, math.Max(0, n.AttentionValue()))
	}
	return vals
}

// calculateStats derives the batch statistics. Utilization is never stored,
// only derived from the total and the budget.
func calculateStats(nodes []*atom.Node, budget float64) Stats {
	vals := attentionValues(nodes)
	if len(vals) == 0 {
		return Stats{}
	}

	var s Stats
	for _, v := range vals {
		s.TotalAttention += v
	}
	s.AverageAttention = s.TotalAttention / float64(len(vals))
	s.AttentionEntropy = normalizedEntropy(vals)
	if budget > 0 {
		s.ResourceUtilization = math.Min(1, s.TotalAttention/budget)
	}
	s.ConvergenceRate = 1 - s.AttentionEntropy
	return s
}

// normalizedEntropy returns the Shannon entropy of vals, treated as a
// distribution, divided by log2(len(vals)). Inputs must be non-negative.
func normalizedEntropy(vals []float64) float64 {
	if len(vals) <= 1 {
		return 0
	}
	total := 0.0
	for _, v := range vals {
		total += v
	}
	if total <= 0 {
		return 0
	}

	h := 0.0
	for _, v := range vals {
		p := v / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	h /= math.Log2(float64(len(vals)))
	// rounding can push a uniform distribution a hair past 1
	return math.Max(0, math.Min(1, h))
}

// averageStats blends Softmax and ECAN results for the hybrid report.
func averageStats(softmax, ecan Stats) Stats {
	return Stats{
		TotalAttention:      (softmax.TotalAttention + ecan.TotalAttention) / 2,
		AverageAttention:    (softmax.AverageAttention + ecan.AverageAttention) / 2,
		AttentionEntropy:    (softmax.AttentionEntropy + ecan.AttentionEntropy) / 2,
		ResourceUtilization: (softmax.ResourceUtilization + ecan.ResourceUtilization) / 2,
		GradientNorm:        softmax.GradientNorm,
		ConvergenceRate:     ecan.ConvergenceRate,
	}
}
