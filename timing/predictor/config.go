package predictor

import (
	"fmt"

	"github.com/sarchlab/convpred/internal/cfgfile"
)

// Config holds the geometry and learning parameters of the predictor.
type Config struct {
	// HistoryLengths is the history length of each bank, in scan order.
	// An entry promoted out of bank b keeps the first HistoryLengths[b+1]
	// weights, so lengths must not grow from one bank to the next.
	// Default: [256, 128, 64, 32, 16, 8].
	HistoryLengths []int `json:"history_lengths" toml:"history_lengths"`

	// MaxHistoryLength is the capacity of the global history register.
	// Default: 1024.
	MaxHistoryLength int `json:"max_history_length" toml:"max_history_length"`

	// CounterMax is the saturation value of the confidence counters. A
	// counter at or above CounterMax/2 predicts taken. Default: 15.
	CounterMax int `json:"counter_max" toml:"counter_max"`

	// Threshold is the minimum similarity score for an entry to be used.
	// Default: 0.
	Threshold int `json:"threshold" toml:"threshold"`

	// PromotionNumerator and PromotionDenominator give the fraction of a
	// bank's history length that must decohere, within the second half of
	// the weights and in a single update, before the entry is promoted.
	// Default: 3/8.
	PromotionNumerator   int `json:"promotion_numerator" toml:"promotion_numerator"`
	PromotionDenominator int `json:"promotion_denominator" toml:"promotion_denominator"`

	// SpeculativeHistory moves the history push from Update to SpecUpdate,
	// which the simulator calls right after the prediction. Default: false.
	SpeculativeHistory bool `json:"speculative_history" toml:"speculative_history"`
}

// DefaultConfig returns the reference predictor geometry.
func DefaultConfig() *Config {
	return &Config{
		HistoryLengths:       []int{256, 128, 64, 32, 16, 8},
		MaxHistoryLength:     1024,
		CounterMax:           15,
		Threshold:            0,
		PromotionNumerator:   3,
		PromotionDenominator: 8,
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

// NumBanks returns the number of prediction banks.
func (c *Config) NumBanks() int {
	return len(c.HistoryLengths)
}

// Validate checks that the geometry is usable.
func (c *Config) Validate() error {
	if len(c.HistoryLengths) == 0 {
		return fmt.Errorf("history_lengths must not be empty")
	}
	if c.MaxHistoryLength <= 0 {
		return fmt.Errorf("max_history_length must be > 0")
	}
	for b, l := range c.HistoryLengths {
		if l <= 0 {
			return fmt.Errorf("history_lengths[%d] must be > 0", b)
		}
		if l > c.MaxHistoryLength {
			return fmt.Errorf("history_lengths[%d] = %d exceeds max_history_length %d",
				b, l, c.MaxHistoryLength)
		}
		if b > 0 && l > c.HistoryLengths[b-1] {
			return fmt.Errorf("history_lengths[%d] must be <= history_lengths[%d]", b, b-1)
		}
	}
	if c.CounterMax <= 0 {
		return fmt.Errorf("counter_max must be > 0")
	}
	if c.PromotionDenominator <= 0 {
		return fmt.Errorf("promotion_denominator must be > 0")
	}
	if c.PromotionNumerator < 0 {
		return fmt.Errorf("promotion_numerator must be >= 0")
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.HistoryLengths = append([]int(nil), c.HistoryLengths...)
	return &clone
}
