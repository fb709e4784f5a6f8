package attention

import (
	"fmt"
	"strings"
)

// Mechanism selects the allocation policy. The set is closed: Softmax, Ecan
// and Hybrid share one input/output contract and are dispatched by switch.
type Mechanism int

const (
	Softmax Mechanism = iota
	Ecan
	Hybrid
)

func (m Mechanism) String() string {
	switch m {
	case Softmax:
		return "softmax"
	case Ecan:
		return "ecan"
	case Hybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("mechanism(%d)", int(m))
	}
}

// ParseMechanism accepts "softmax", "ecan" or "hybrid" in any case.
func ParseMechanism(s string) (Mechanism, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "softmax":
		return Softmax, nil
	case "ecan":
		return Ecan, nil
	case "hybrid":
		return Hybrid, nil
	default:
		return 0, fmt.Errorf("%w: unknown mechanism %q", ErrInvalidConfig, s)
	}
}

// MarshalText implements encoding.TextMarshaler (JSON and TOML).
func (m Mechanism) MarshalText() ([]byte, error) {
	if m < Softmax || m > Hybrid {
		return nil, fmt.Errorf("%w: unknown mechanism %d", ErrInvalidConfig, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mechanism) UnmarshalText(b []byte) error {
	v, err := ParseMechanism(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// DefaultFlowHistory caps the flow log when Config.MaxFlowHistory is zero.
const DefaultFlowHistory = 10000

// Config parameterizes one engine. It is read once per cycle and may be
// swapped between cycles with Engine.UpdateConfig.
type Config struct {
	Mechanism            Mechanism `json:"mechanism"`
	Temperature          float64   `json:"temperature"`
	ResourceBudget       float64   `json:"resource_budget"`
	AttentionHeads       int       `json:"attention_heads"`
	DiffusionStrength    float64   `json:"diffusion_strength"`
	RentCollectionRate   float64   `json:"rent_collection_rate"`
	WageDistributionRate float64   `json:"wage_distribution_rate"`
	GradientClipping     float64   `json:"gradient_clipping"`

	// UpdateFrequency is the number of cycles per second the driver runs.
	// Zero disables periodic cycles.
	UpdateFrequency float64 `json:"update_frequency"`
	// DecayRate is the fraction of attention the driver removes from every
	// node before each cycle.
	DecayRate      float64 `json:"decay_rate"`
	MaxFlowHistory int     `json:"max_flow_history"`
	EmbeddingDim   int     `json:"embedding_dim"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Mechanism:            Hybrid,
		Temperature:          1.0,
		ResourceBudget:       1000.0,
		AttentionHeads:       8,
		DiffusionStrength:    0.1,
		RentCollectionRate:   0.01,
		WageDistributionRate: 0.8,
		GradientClipping:     1.0,
		UpdateFrequency:      10,
		DecayRate:            0.01,
		MaxFlowHistory:       DefaultFlowHistory,
		EmbeddingDim:         128,
	}
}

// Validate checks every field range. The returned error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	var problems []string
	if c.Mechanism < Softmax || c.Mechanism > Hybrid {
		problems = append(problems, fmt.Sprintf("mechanism %d", int(c.Mechanism)))
	}
	if !(c.Temperature > 0) {
		problems = append(problems, "temperature must be > 0")
	}
	if !(c.ResourceBudget > 0) {
		problems = append(problems, "resource_budget must be > 0")
	}
	if c.AttentionHeads < 1 {
		problems = append(problems, "attention_heads must be >= 1")
	}
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"diffusion_strength", c.DiffusionStrength},
		{"rent_collection_rate", c.RentCollectionRate},
		{"wage_distribution_rate", c.WageDistributionRate},
		{"decay_rate", c.DecayRate},
	} {
		if !(r.v >= 0 && r.v <= 1) {
			problems = append(problems, r.name+" must be in [0,1]")
		}
	}
	if !(c.GradientClipping >= 0) {
		problems = append(problems, "gradient_clipping must be >= 0")
	}
	if !(c.UpdateFrequency >= 0) {
		problems = append(problems, "update_frequency must be >= 0")
	}
	if c.MaxFlowHistory < 0 {
		problems = append(problems, "max_flow_history must be >= 0")
	}
	if c.EmbeddingDim < c.AttentionHeads {
		problems = append(problems, "embedding_dim must be >= attention_heads")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) flowCapacity() int {
	if c.MaxFlowHistory == 0 {
		return DefaultFlowHistory
	}
	return c.MaxFlowHistory
}

func (c Config) headDim() int {
	if c.AttentionHeads < 1 {
		return c.EmbeddingDim
	}
	return c.EmbeddingDim / c.AttentionHeads
}
