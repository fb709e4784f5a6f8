package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/lazypower/salience/internal/attention"
)

// Config holds all salience configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Attention AttentionConfig `toml:"attention"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path         string `toml:"path"`
	HistoryLimit int    `toml:"history_limit"` // cycles kept in the history table
}

// AttentionConfig mirrors attention.Config in file form.
type AttentionConfig struct {
	Mechanism            string  `toml:"mechanism"` // "softmax", "ecan", "hybrid"
	Temperature          float64 `toml:"temperature"`
	ResourceBudget       float64 `toml:"resource_budget"`
	AttentionHeads       int     `toml:"attention_heads"`
	DiffusionStrength    float64 `toml:"diffusion_strength"`
	RentCollectionRate   float64 `toml:"rent_collection_rate"`
	WageDistributionRate float64 `toml:"wage_distribution_rate"`
	GradientClipping     float64 `toml:"gradient_clipping"`
	UpdateFrequency      float64 `toml:"update_frequency"` // cycles per second, 0 disables the timer
	DecayRate            float64 `toml:"decay_rate"`
	MaxFlowHistory       int     `toml:"max_flow_history"`
	EmbeddingDim         int     `toml:"embedding_dim"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	a := attention.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path:         "", // resolved at runtime via store.DefaultDBPath()
			HistoryLimit: 1000,
		},
		Attention: AttentionConfig{
			Mechanism:            a.Mechanism.String(),
			Temperature:          a.Temperature,
			ResourceBudget:       a.ResourceBudget,
			AttentionHeads:       a.AttentionHeads,
			DiffusionStrength:    a.DiffusionStrength,
			RentCollectionRate:   a.RentCollectionRate,
			WageDistributionRate: a.WageDistributionRate,
			GradientClipping:     a.GradientClipping,
			UpdateFrequency:      a.UpdateFrequency,
			DecayRate:            a.DecayRate,
			MaxFlowHistory:       a.MaxFlowHistory,
			EmbeddingDim:         a.EmbeddingDim,
		},
	}
}

// DefaultPath returns the default config path: ~/.salience/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".salience", "config.toml"), nil
}

// Load reads the TOML file at path over the defaults. An empty path means
// $SALIENCE_CONFIG, then DefaultPath. A missing file is not an error.
// SALIENCE_DB overrides the database path.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SALIENCE_CONFIG")
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	default:
		for _, key := range md.Undecoded() {
			log.Printf("config: ignoring unknown key %s", key)
		}
	}

	if db := os.Getenv("SALIENCE_DB"); db != "" {
		cfg.Database.Path = db
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// AllocatorConfig converts the [attention] section into a validated
// attention.Config.
func (c *Config) AllocatorConfig() (attention.Config, error) {
	m, err := attention.ParseMechanism(c.Attention.Mechanism)
	if err != nil {
		return attention.Config{}, err
	}
	out := attention.Config{
		Mechanism:            m,
		Temperature:          c.Attention.Temperature,
		ResourceBudget:       c.Attention.ResourceBudget,
		AttentionHeads:       c.Attention.AttentionHeads,
		DiffusionStrength:    c.Attention.DiffusionStrength,
		RentCollectionRate:   c.Attention.RentCollectionRate,
		WageDistributionRate: c.Attention.WageDistributionRate,
		GradientClipping:     c.Attention.GradientClipping,
		UpdateFrequency:      c.Attention.UpdateFrequency,
		DecayRate:            c.Attention.DecayRate,
		MaxFlowHistory:       c.Attention.MaxFlowHistory,
		EmbeddingDim:         c.Attention.EmbeddingDim,
	}
	if err := out.Validate(); err != nil {
		return attention.Config{}, err
	}
	return out, nil
}
