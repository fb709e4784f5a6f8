package attention

import (
	"math"

	"github.com/lazypower/salience/internal/atom"
	"github.com/lazypower/salience/internal/tensor"
)

// gradientLearningRate is the fixed step size of the stabilizing update.
const gradientLearningRate = 0.01

// applyHybrid runs Softmax, then Ecan over the Softmax-credited batch, then
// one clipped gradient step toward the mean. The report averages Softmax and
// Ecan except GradientNorm (from Softmax) and ConvergenceRate (from Ecan).
func (e *Engine) applyHybrid(nodes []*atom.Node, links []*atom.Link) Stats {
	softmaxStats := e.applySoftmax(nodes)
	ecanStats := e.applyEcan(nodes, links)
	e.gradNorm = e.applyGradientStep(nodes)
	return averageStats(softmaxStats, ecanStats)
}

// gradients returns mean - attention per node; nodes without a slot get 0.
func gradients(nodes []*atom.Node) []float64 {
	grad := make([]float64, len(nodes))
	vals := 0.0
	count := 0
	for _, n := range nodes {
		if n.HasAttention() {
			vals += n.AttentionValue()
			count++
		}
	}
	if count == 0 {
		return grad
	}
	mean := vals / float64(count)
	for i, n := range nodes {
		if n.HasAttention() {
			grad[i] = mean - n.AttentionValue()
		}
	}
	return grad
}

// applyGradientStep clips each gradient to [-clip, clip], applies it with the
// fixed learning rate and floors attention at zero. It returns the L2 norm of
// the clipped gradient.
func (e *Engine) applyGradientStep(nodes []*atom.Node) float64 {
	if len(nodes) == 0 {
		return 0
	}
	clip := e.cfg.GradientClipping
	g := tensor.Clamp(tensor.Vector("gradients", gradients(nodes)), -clip, clip)
	grad := g.Data()
	for i, n := range nodes {
		if !n.HasAttention() {
			continue
		}
		n.SetAttentionValue(math.Max(0, n.AttentionValue()+gradientLearningRate*grad[i]))
	}

	if e.state.Initialized && e.state.Gradients != nil {
		buf := e.state.Gradients.Data()
		for i := range buf {
			buf[i] = 0
		}
		copy(buf, grad)
	}
	return tensor.Norm(g)
}
