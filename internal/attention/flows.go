package attention

import (
	"time"

	"github.com/lazypower/salience/internal/atom"
)

// Flow records one observed attention transfer.
type Flow struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
}

// FlowRecorder keeps a bounded FIFO log of flows. It is observational only;
// no mechanism reads it.
type FlowRecorder struct {
	capacity int
	seq      uint64
	flows    []Flow
}

// NewFlowRecorder creates a recorder holding at most capacity flows.
func NewFlowRecorder(capacity int) *FlowRecorder {
	if capacity <= 0 {
		capacity = DefaultFlowHistory
	}
	return &FlowRecorder{capacity: capacity}
}

// RecordLinks appends one "diffusion" flow per (source, target) pair of every
// link, then evicts the oldest flows beyond capacity.
func (r *FlowRecorder) RecordLinks(links []*atom.Link, amount float64, now time.Time) int {
	added := 0
	for _, l := range links {
		if l == nil {
			continue
		}
		for _, src := range l.SourceIDs {
			for _, dst := range l.TargetIDs {
				r.seq++
				r.flows = append(r.flows, Flow{
					Seq:       r.seq,
					Timestamp: now,
					SourceID:  src,
					TargetID:  dst,
					Amount:    amount,
					Reason:    "diffusion",
				})
				added++
			}
		}
	}
	r.trim()
	return added
}

func (r *FlowRecorder) trim() {
	over := len(r.flows) - r.capacity
	if over <= 0 {
		return
	}
	kept := make([]Flow, r.capacity)
	copy(kept, r.flows[over:])
	r.flows = kept
}

// SetCapacity changes the bound, evicting the oldest flows if needed.
func (r *FlowRecorder) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultFlowHistory
	}
	r.capacity = capacity
	r.trim()
}

// Capacity returns the current bound.
func (r *FlowRecorder) Capacity() int { return r.capacity }

// Len returns the number of stored flows.
func (r *FlowRecorder) Len() int { return len(r.flows) }

// Flows returns a copy of the log, oldest first.
func (r *FlowRecorder) Flows() []Flow {
	out := make([]Flow, len(r.flows))
	copy(out, r.flows)
	return out
}

// Clear drops every stored flow. Sequence numbers keep increasing.
func (r *FlowRecorder) Clear() {
	r.flows = nil
}
