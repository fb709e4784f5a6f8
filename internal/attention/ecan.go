package attention

import (
	"math"
	"sort"

	"github.com/lazypower/salience/internal/atom"
	"github.com/lazypower/salience/internal/tensor"
)

// applyEcan runs the economic allocation. Step order is fixed: wages are
// paid out of the rent pool, and the budget clamp sees post-diffusion and
// post-wage totals.
func (e *Engine) applyEcan(nodes []*atom.Node, links []*atom.Link) Stats {
	ix := atom.NewIndex(nodes)

	pool := e.collectRent(nodes)
	diffused := e.diffuse(ix, links)
	wages := e.distributeWages(nodes, pool)
	e.updateLinkAttention(ix, links)
	scale := e.enforceBudget(nodes)

	e.economy = Economy{
		RentPool:    pool,
		WagesPaid:   wages,
		Diffused:    diffused,
		ScaleFactor: scale,
	}
	return calculateStats(nodes, e.cfg.ResourceBudget)
}

// collectRent charges every node rent = attention * rate and returns the
// pool of collected rent.
func (e *Engine) collectRent(nodes []*atom.Node) float64 {
	pool := 0.0
	for _, n := range nodes {
		if !n.HasAttention() {
			continue
		}
		current := n.AttentionValue()
		rent := current * e.cfg.RentCollectionRate
		n.SetAttentionValue(math.Max(0, current-rent))
		pool += rent
	}
	return pool
}

// diffuse spreads diffusionStrength of each link's source attention evenly
// over its targets. Targets listed twice are credited twice. Links are
// processed in order, each reading the attention left by the previous one.
// It returns the total amount credited.
func (e *Engine) diffuse(ix atom.Index, links []*atom.Link) float64 {
	total := 0.0
	for _, l := range links {
		if l == nil || len(l.TargetIDs) == 0 {
			continue
		}
		amount := ix.SumAttention(l.SourceIDs) * e.cfg.DiffusionStrength
		perTarget := amount / float64(len(l.TargetIDs))
		for _, id := range l.TargetIDs {
			for _, n := range ix.Lookup(id) {
				if n.HasAttention() {
					n.AddAttention(perTarget)
					total += perTarget
				}
			}
		}
	}
	return total
}

// utility is the mean absolute embedding value; no embedding means zero.
func utility(n *atom.Node) float64 {
	if n == nil || n.Embedding == nil || n.Embedding.Len() == 0 {
		return 0
	}
	return tensor.Mean(tensor.Abs(n.Embedding))
}

type rankedNode struct {
	node    *atom.Node
	utility float64
}

// distributeWages pays pool * wageRate to nodes in proportion to utility,
// highest utility first (ties keep batch order). It returns the total paid.
// Utilities are taken relative to the largest so their sum cannot overflow;
// infinite utilities share the wages evenly.
func (e *Engine) distributeWages(nodes []*atom.Node, pool float64) float64 {
	if len(nodes) == 0 || pool <= 0 {
		return 0
	}

	ranked := make([]rankedNode, 0, len(nodes))
	maxUtility := 0.0
	for _, n := range nodes {
		if n == nil {
			continue
		}
		u := utility(n)
		ranked = append(ranked, rankedNode{node: n, utility: u})
		if u > maxUtility {
			maxUtility = u
		}
	}
	if !(maxUtility > 0) {
		return 0
	}

	share := func(u float64) float64 { return u / maxUtility }
	if math.IsInf(maxUtility, 1) {
		share = func(u float64) float64 {
			if math.IsInf(u, 1) {
				return 1
			}
			return 0
		}
	}
	totalShare := 0.0
	for _, r := range ranked {
		totalShare += share(r.utility)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].utility > ranked[j].utility
	})

	distributable := pool * e.cfg.WageDistributionRate
	paid := 0.0
	for _, r := range ranked {
		s := share(r.utility)
		if s == 0 || !r.node.HasAttention() {
			continue
		}
		wage := s / totalShare * distributable
		r.node.AddAttention(wage)
		paid += wage
	}
	return paid
}

// updateLinkAttention sets each link's attention to the geometric mean of
// its summed source and summed target attention.
func (e *Engine) updateLinkAttention(ix atom.Index, links []*atom.Link) {
	for _, l := range links {
		if l == nil || l.Attention == nil {
			continue
		}
		src := math.Max(0, ix.SumAttention(l.SourceIDs))
		dst := math.Max(0, ix.SumAttention(l.TargetIDs))
		l.SetAttentionValue(math.Sqrt(src * dst))
	}
}

// enforceBudget scales every node uniformly when the batch total exceeds the
// budget. It returns the factor applied (1 when under budget).
func (e *Engine) enforceBudget(nodes []*atom.Node) float64 {
	total := 0.0
	for _, n := range nodes {
		if n.HasAttention() {
			total += n.AttentionValue()
		}
	}
	if total <= e.cfg.ResourceBudget || total <= 0 {
		return 1
	}
	scale := e.cfg.ResourceBudget / total
	for _, n := range nodes {
		if n.HasAttention() {
			n.SetAttentionValue(n.AttentionValue() * scale)
		}
	}
	return scale
}
