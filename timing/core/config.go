package core

import (
	"fmt"

	"github.com/sarchlab/convpred/internal/cfgfile"
	"github.com/sarchlab/convpred/timing/deps"
	"github.com/sarchlab/convpred/timing/predictor"
	"github.com/sarchlab/convpred/timing/reference"
)

// Config holds the configuration of one simulated core.
type Config struct {
	// Predictor configures the geometric predictor.
	Predictor predictor.Config `json:"predictor" toml:"predictor"`

	// Reference configures the reference predictor run alongside it.
	Reference reference.Config `json:"reference" toml:"reference"`

	// MaxDependenceDepth saturates the load dependence depth of a branch.
	// Statistics keep one bucket per depth from 0 to this value.
	// Default: 5.
	MaxDependenceDepth int `json:"max_dependence_depth" toml:"max_dependence_depth"`

	// PipelineFillLatency is added to the cycles spent on the wrong path
	// when charging a misprediction. Default: 5.
	PipelineFillLatency uint64 `json:"pipeline_fill_latency" toml:"pipeline_fill_latency"`

	// EnableReference runs the reference predictor on every conditional
	// branch. Default: true.
	EnableReference bool `json:"enable_reference" toml:"enable_reference"`

	// RecordDebugLog keeps a per-instruction debug record. Default: false.
	RecordDebugLog bool `json:"record_debug_log" toml:"record_debug_log"`
}

// DefaultConfig returns the default core configuration.
func DefaultConfig() *Config {
	return &Config{
		Predictor:           *predictor.DefaultConfig(),
		Reference:           reference.DefaultConfig(),
		MaxDependenceDepth:  deps.DefaultMaxDepth,
		PipelineFillLatency: 5,
		EnableReference:     true,
	}
}

// LoadConfig loads a Config from a JSON or TOML file. Missing fields keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if err := cfgfile.Decode(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the Config to a JSON or TOML file.
func (c *Config) SaveConfig(path string) error {
	return cfgfile.Encode(path, c)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Predictor.Validate(); err != nil {
		return fmt.Errorf("predictor: %w", err)
	}
	if c.MaxDependenceDepth <= 0 {
		return fmt.Errorf("max_dependence_depth must be > 0")
	}
	if c.EnableReference {
		if !isPowerOfTwo(c.Reference.BHTSize) {
			return fmt.Errorf("reference.bht_size must be a power of 2")
		}
		if !isPowerOfTwo(c.Reference.BTBSize) {
			return fmt.Errorf("reference.btb_size must be a power of 2")
		}
		if c.Reference.GlobalHistoryLength > 63 {
			return fmt.Errorf("reference.global_history_length must be <= 63")
		}
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Predictor = *c.Predictor.Clone()
	return &clone
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}
