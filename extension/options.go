package extension

import (
	"github.com/xraph/escrow"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/state"
	"github.com/xraph/escrow/store"
)

// Option configures the Escrow Forge extension.
type Option func(*Extension)

// WithStore sets the store for the escrow engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithState sets the metered state store. It takes precedence over
// Config.StatePath.
func WithState(s state.Store) Option {
	return func(e *Extension) {
		e.state = s
	}
}

// WithEscrowOption passes an escrow.Option through to the underlying engine.
func WithEscrowOption(opt escrow.Option) Option {
	return func(e *Extension) {
		e.escrowOpts = append(e.escrowOpts, opt)
	}
}

// WithPlugin registers an escrow plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.escrowOpts = append(e.escrowOpts, escrow.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithMinStorageBytes sets the minimum footprint a new entry must cover.
func WithMinStorageBytes(n uint64) Option {
	return func(e *Extension) { e.config.MinStorageBytes = n }
}

// WithByteCost sets the decimal price of one byte.
func WithByteCost(cost string) Option {
	return func(e *Extension) { e.config.ByteCost = cost }
}

// WithStatePath opens a LevelDB state store at path.
func WithStatePath(path string) Option {
	return func(e *Extension) { e.config.StatePath = path }
}
