package atom

// Index resolves external ids to the nodes of one batch. It replaces a scan
// of the whole batch per endpoint; nodes sharing an external id are all
// returned, in batch order.
type Index map[string][]*Node

// NewIndex indexes a batch. Nil nodes are ignored.
func NewIndex(nodes []*Node) Index {
	ix := make(Index, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		ix[n.ExternalID] = append(ix[n.ExternalID], n)
	}
	return ix
}

// Lookup returns the nodes registered under id.
func (ix Index) Lookup(id string) []*Node {
	return ix[id]
}

// SumAttention totals the attention of every node matched by ids. An id
// listed twice counts twice; unresolved ids contribute zero.
func (ix Index) SumAttention(ids []string) float64 {
	total := 0.0
	for _, id := range ids {
		for _, n := range ix[id] {
			total += n.AttentionValue()
		}
	}
	return total
}
