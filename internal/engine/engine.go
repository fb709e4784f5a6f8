// Package engine drives attention allocation over the atom store: each
// cycle loads the graph, decays idle attention, runs the allocator and
// commits the result back.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lazypower/salience/internal/atom"
	"github.com/lazypower/salience/internal/attention"
	"github.com/lazypower/salience/internal/store"
)

// DefaultHistoryLimit is how many cycles are kept in the history table.
const DefaultHistoryLimit = 1000

// idlePoll is how often a disabled timer rechecks the update frequency.
const idlePoll = time.Second

// Engine serializes allocation cycles against a store.
type Engine struct {
	DB           *store.DB
	Alloc        *attention.Engine
	HistoryLimit int

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	tracer   trace.Tracer
}

// CycleResult describes one completed cycle.
type CycleResult struct {
	Cycle        store.Cycle       `json:"cycle"`
	Stats        attention.Stats   `json:"stats"`
	Economy      attention.Economy `json:"economy"`
	GradientNorm float64           `json:"gradient_norm"`
}

// New creates a driver for db using alloc.
func New(db *store.DB, alloc *attention.Engine) *Engine {
	return &Engine{
		DB:           db,
		Alloc:        alloc,
		HistoryLimit: DefaultHistoryLimit,
		stopCh:       make(chan struct{}),
		tracer:       otel.Tracer("salience"),
	}
}

// loadBatch reads every atom and link and converts them into a batch.
func (e *Engine) loadBatch() ([]*atom.Node, []*atom.Link, error) {
	atoms, err := e.DB.ListAtoms(0)
	if err != nil {
		return nil, nil, fmt.Errorf("load atoms: %w", err)
	}
	links, err := e.DB.ListLinks()
	if err != nil {
		return nil, nil, fmt.Errorf("load links: %w", err)
	}
	nodes := make([]*atom.Node, len(atoms))
	for i := range atoms {
		nodes[i] = atoms[i].BatchNode()
	}
	batch := make([]*atom.Link, len(links))
	for i := range links {
		batch[i] = links[i].BatchLink()
	}
	return nodes, batch, nil
}

// Decay multiplies every node's attention by 1-rate.
func Decay(nodes []*atom.Node, rate float64) {
	if rate <= 0 {
		return
	}
	keep := 1 - rate
	for _, n := range nodes {
		if n.HasAttention() {
			n.SetAttentionValue(n.AttentionValue() * keep)
		}
	}
}

// RunCycle performs one allocation cycle. An empty store yields a neutral
// result and records nothing.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.RunCycle")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}

	start := time.Now()
	cfg := e.Alloc.Config()
	span.SetAttributes(attribute.String("mechanism", cfg.Mechanism.String()))

	nodes, links, err := e.loadBatch()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("node_count", len(nodes)),
		attribute.Int("link_count", len(links)),
	)
	if len(nodes) == 0 {
		return &CycleResult{Cycle: store.Cycle{Mechanism: cfg.Mechanism.String()}, Economy: attention.Economy{ScaleFactor: 1}}, nil
	}

	if !e.Alloc.Initialized() {
		if err := e.Alloc.Initialize(len(nodes)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "initialize failed")
			return nil, err
		}
	}

	Decay(nodes, cfg.DecayRate)
	stats := e.Alloc.UpdateAttentionAllocation(nodes, links)

	if err := e.DB.SaveAttention(nodes, links); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, fmt.Errorf("commit cycle: %w", err)
	}

	c := store.Cycle{
		Mechanism:           cfg.Mechanism.String(),
		TotalAttention:      stats.TotalAttention,
		AverageAttention:    stats.AverageAttention,
		AttentionEntropy:    stats.AttentionEntropy,
		ResourceUtilization: stats.ResourceUtilization,
		GradientNorm:        stats.GradientNorm,
		ConvergenceRate:     stats.ConvergenceRate,
		NodeCount:           len(nodes),
		LinkCount:           len(links),
		DurationMs:          time.Since(start).Milliseconds(),
	}
	if err := e.DB.RecordCycle(&c); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
		return nil, err
	}
	if e.HistoryLimit > 0 {
		if _, err := e.DB.PruneCycles(e.HistoryLimit); err != nil {
			log.Printf("cycle: prune history: %v", err)
		}
	}

	span.SetAttributes(
		attribute.Float64("total_attention", stats.TotalAttention),
		attribute.Float64("entropy", stats.AttentionEntropy),
	)
	return &CycleResult{
		Cycle:        c,
		Stats:        stats,
		Economy:      e.Alloc.Economy(),
		GradientNorm: e.Alloc.LastGradientNorm(),
	}, nil
}

// Stats computes statistics over the stored atoms without running a cycle.
func (e *Engine) Stats(ctx context.Context) (attention.Stats, error) {
	_, span := e.tracer.Start(ctx, "engine.Stats")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	nodes, _, err := e.loadBatch()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return attention.Stats{}, err
	}
	return e.Alloc.CurrentStats(nodes), nil
}

// Flows returns the allocator's flow log, oldest first.
func (e *Engine) Flows() []attention.Flow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Alloc.Flows()
}

// Config returns the allocator configuration.
func (e *Engine) Config() attention.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Alloc.Config()
}

// UpdateConfig validates and applies cfg between cycles.
func (e *Engine) UpdateConfig(cfg attention.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.Alloc.UpdateConfig(cfg); err != nil {
		return err
	}
	log.Printf("cycle: config updated (mechanism=%s)", cfg.Mechanism)
	return nil
}

// UpsertAtom writes an atom between cycles.
func (e *Engine) UpsertAtom(a *store.Atom) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DB.UpsertAtom(a)
}

// UpsertLink writes a link between cycles.
func (e *Engine) UpsertLink(l *store.Link) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DB.UpsertLink(l)
}

// Reset clears the allocator's flow log and head state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Alloc.Reset()
}

// interval returns the pause between timer cycles, or 0 when disabled.
// Frequencies too small for a time.Duration wait the longest duration.
func (e *Engine) interval() time.Duration {
	freq := e.Config().UpdateFrequency
	if freq <= 0 {
		return 0
	}
	d := float64(time.Second) / freq
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// StartCycleTimer runs cycles in the background at UpdateFrequency per
// second. The frequency is re-read after every cycle, so config updates
// take effect without a restart; a frequency of 0 pauses the timer.
func (e *Engine) StartCycleTimer() {
	go func() {
		for {
			wait := e.interval()
			idle := wait == 0
			if idle {
				wait = idlePoll
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				if idle {
					continue
				}
				if _, err := e.RunCycle(context.Background()); err != nil {
					log.Printf("cycle error: %v", err)
				}
			case <-e.stopCh:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}
