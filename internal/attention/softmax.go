package attention

import (
	"github.com/lazypower/salience/internal/atom"
	"github.com/lazypower/salience/internal/tensor"
)

// scores returns sum(|embedding|)/temperature per node. Nodes without an
// embedding score zero.
func (e *Engine) scores(nodes []*atom.Node) *tensor.Tensor {
	out := make([]float64, len(nodes))
	for i, n := range nodes {
		if n == nil || n.Embedding == nil {
			continue
		}
		out[i] = tensor.Sum(tensor.Abs(n.Embedding)) / e.cfg.Temperature
	}
	return tensor.Vector("scores", out)
}

// applySoftmax credits weight[i] * budget / N to every node. The credit is
// additive; existing attention is not reallocated.
func (e *Engine) applySoftmax(nodes []*atom.Node) Stats {
	if len(nodes) == 0 {
		return calculateStats(nodes, e.cfg.ResourceBudget)
	}

	weights := tensor.Softmax(e.scores(nodes)).Data()
	share := e.cfg.ResourceBudget / float64(len(nodes))
	for i, n := range nodes {
		if n.HasAttention() {
			n.AddAttention(weights[i] * share)
		}
	}
	return calculateStats(nodes, e.cfg.ResourceBudget)
}
