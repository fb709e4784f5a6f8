// Package attention allocates a bounded attention budget across a batch of
// graph nodes and links.
//
// An Engine applies one of three policies per call: Softmax (score nodes by
// embedding magnitude and credit a share of the budget), Ecan (economic
// rent, diffusion, wages, link update and budget clamp) or Hybrid (Softmax,
// then Ecan, then a clipped gradient step toward the mean). Every call is
// synchronous and fail-soft: degenerate batches give neutral statistics.
//
// The engine mutates only node and link attention scalars and its own flow
// log. It does not lock; callers serialize access per batch.
package attention

import (
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/lazypower/salience/internal/atom"
	"github.com/lazypower/salience/internal/tensor"
)

// defaultMaxNodes sizes the distribution tensors when Initialize gets 0.
const defaultMaxNodes = 1000

// Head holds one attention head's projections, each [D, D/heads].
type Head struct {
	ID    int
	Scale float64
	Query *tensor.Tensor
	Key   *tensor.Tensor
	Value *tensor.Tensor
}

// GlobalState is created by Initialize and dropped by Reset.
type GlobalState struct {
	Distribution *tensor.Tensor
	Gradients    *tensor.Tensor
	Temperature  *tensor.Tensor
	Heads        []Head
	Initialized  bool
}

// Economy reports what the last Ecan pass moved.
type Economy struct {
	RentPool    float64 `json:"rent_pool"`
	WagesPaid   float64 `json:"wages_paid"`
	Diffused    float64 `json:"diffused"`
	ScaleFactor float64 `json:"scale_factor"`
}

// Engine owns configuration, head state and the flow log.
type Engine struct {
	cfg      Config
	state    GlobalState
	flows    *FlowRecorder
	rng      *rand.Rand
	now      func() time.Time
	economy  Economy
	gradNorm float64
}

// Option customizes a new Engine.
type Option func(*Engine)

// WithSeed makes head initialization deterministic.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithClock overrides the flow timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates cfg and returns an uninitialized engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		flows: NewFlowRecorder(cfg.flowCapacity()),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e, nil
}

// Config returns the active configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns the global head state.
func (e *Engine) State() *GlobalState { return &e.state }

// Initialized reports whether Initialize has run since the last Reset.
func (e *Engine) Initialized() bool { return e.state.Initialized }

// Initialize allocates the distribution and gradient tensors for maxNodes
// nodes, the temperature tensor and the head projections. On error the
// engine stays uninitialized.
func (e *Engine) Initialize(maxNodes int) error {
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}
	heads, err := e.newHeads()
	if err != nil {
		return fmt.Errorf("initialize heads: %w", err)
	}
	e.state.Distribution = tensor.Vector("attention_distribution", make([]float64, maxNodes))
	e.state.Gradients = tensor.Vector("attention_gradients", make([]float64, maxNodes))
	e.state.Temperature = tensor.Scalar("temperature", e.cfg.Temperature)
	e.state.Heads = heads
	e.state.Initialized = true
	log.Printf("attention: initialized for %d nodes, %d heads", maxNodes, len(e.state.Heads))
	return nil
}

// UpdateAttentionAllocation runs the configured mechanism over the batch,
// records link flows and returns the resulting statistics.
func (e *Engine) UpdateAttentionAllocation(nodes []*atom.Node, links []*atom.Link) Stats {
	var stats Stats
	switch e.cfg.Mechanism {
	case Softmax:
		stats = e.applySoftmax(nodes)
	case Ecan:
		stats = e.applyEcan(nodes, links)
	default:
		stats = e.applyHybrid(nodes, links)
	}
	e.flows.RecordLinks(links, e.cfg.DiffusionStrength, e.now())
	e.snapshotDistribution(nodes)
	return stats
}

// CurrentStats computes statistics without mutating anything.
func (e *Engine) CurrentStats(nodes []*atom.Node) Stats {
	return calculateStats(nodes, e.cfg.ResourceBudget)
}

// UpdateConfig swaps the configuration. Head state is kept; the temperature
// tensor is refreshed when initialized.
func (e *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.flows.SetCapacity(cfg.flowCapacity())
	if e.state.Initialized && e.state.Temperature != nil {
		e.state.Temperature.SetValue(cfg.Temperature)
	}
	return nil
}

// Flows returns the flow log, oldest first.
func (e *Engine) Flows() []Flow { return e.flows.Flows() }

// Economy returns the report of the most recent Ecan pass.
func (e *Engine) Economy() Economy { return e.economy }

// LastGradientNorm returns the L2 norm of the clipped gradient applied by
// the most recent Hybrid step.
func (e *Engine) LastGradientNorm() float64 { return e.gradNorm }

// Reset clears flow history and head state.
func (e *Engine) Reset() {
	e.flows.Clear()
	e.state = GlobalState{}
	e.economy = Economy{}
	e.gradNorm = 0
	log.Printf("attention: reset")
}

// Normalize rescales attention so the positive values sum to 1. A batch with
// no positive attention is left unchanged.
func (e *Engine) Normalize(nodes []*atom.Node) {
	total := 0.0
	for _, v := range attentionValues(nodes) {
		total += v
	}
	if total <= 0 {
		return
	}
	for _, n := range nodes {
		if n.HasAttention() {
			n.SetAttentionValue(n.AttentionValue() / total)
		}
	}
}

// snapshotDistribution mirrors the batch attention into the distribution
// tensor when initialized. Nodes beyond its capacity are not mirrored.
func (e *Engine) snapshotDistribution(nodes []*atom.Node) {
	if !e.state.Initialized || e.state.Distribution == nil {
		return
	}
	buf := e.state.Distribution.Data()
	for i := range buf {
		buf[i] = 0
	}
	for i, n := range nodes {
		if i >= len(buf) {
			break
		}
		buf[i] = n.AttentionValue()
	}
}
