package extension

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/types"
)

// Config holds the Escrow extension configuration.
// Fields can be set programmatically via Option functions, loaded from
// YAML configuration files (under "extensions.escrow" or "escrow" keys),
// or read from ESCROW_* environment variables when no file config exists.
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `env:"ESCROW_DISABLE_MIGRATE" json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// MinStorageBytes is the storage a new entry must be able to pay for
	// (default: 2000).
	MinStorageBytes uint64 `env:"ESCROW_MIN_STORAGE_BYTES" json:"min_storage_bytes" mapstructure:"min_storage_bytes" yaml:"min_storage_bytes"`

	// ByteCost is the price of one byte as a decimal string
	// (default: 10^19).
	ByteCost string `env:"ESCROW_BYTE_COST" json:"byte_cost" mapstructure:"byte_cost" yaml:"byte_cost"`

	// StatePath, when set, opens a LevelDB state store at this path.
	// Otherwise state is kept in memory.
	StatePath string `env:"ESCROW_STATE_PATH" json:"state_path" mapstructure:"state_path" yaml:"state_path"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinStorageBytes: escrow.DefaultMinStorageBytes,
		ByteCost:        escrow.DefaultByteCost.String(),
	}
}

// LoadEnv reads a Config from ESCROW_* environment variables. Unset
// variables leave their fields zero.
func LoadEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("escrow: parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured byte cost parses.
func (c Config) Validate() error {
	if c.ByteCost == "" {
		return nil
	}
	if _, err := types.ParseBalance(c.ByteCost); err != nil {
		return escrow.ValidationError{Field: "byte_cost", Message: err.Error()}
	}
	return nil
}

// byteCost returns the parsed byte cost. The config must have been validated.
func (c Config) byteCost() types.Balance {
	if c.ByteCost == "" {
		return escrow.DefaultByteCost
	}
	return types.MustParseBalance(c.ByteCost)
}
