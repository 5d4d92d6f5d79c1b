// Package extension provides the Forge extension adapter for Escrow.
//
// It implements the forge.Extension interface to integrate Escrow
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions,
// via YAML configuration files under "extensions.escrow" or "escrow" keys,
// or via ESCROW_* environment variables.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/state"
	"github.com/xraph/escrow/state/leveldb"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "escrow"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Per-principal storage rent accounting"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Escrow as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *escrow.Escrow
	store      store.Store
	state      state.Store
	escrowOpts []escrow.Option
}

// New creates a new Escrow Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Escrow instance.
// This is nil until Register is called.
func (e *Extension) Engine() *escrow.Escrow { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the escrow engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEscrowOpts()
	if err != nil {
		return err
	}

	e.engine = escrow.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*escrow.Escrow, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("escrow: extension not initialized")
	}

	if err := startEngine(ctx, e.engine, e.config.DisableMigrate); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// startEngine migrates the store unless disabled, then initializes plugins.
func startEngine(ctx context.Context, eng *escrow.Escrow, disableMigrate bool) error {
	if disableMigrate {
		eng.Init(ctx)
		return nil
	}
	return eng.Start(ctx)
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("escrow: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEscrowOpts constructs escrow.Option values from the resolved config.
func (e *Extension) buildEscrowOpts() ([]escrow.Option, error) {
	opts := make([]escrow.Option, 0, len(e.escrowOpts)+3)

	opts = append(opts,
		escrow.WithMinStorageBytes(e.config.MinStorageBytes),
		escrow.WithByteCost(e.config.byteCost()),
	)

	if e.state == nil && e.config.StatePath != "" {
		st, err := leveldb.Open(e.config.StatePath)
		if err != nil {
			return nil, err
		}
		e.state = st
	}
	if e.state != nil {
		opts = append(opts, escrow.WithState(e.state))
	}

	// Append any pass-through escrow options.
	opts = append(opts, e.escrowOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files, the environment or
// programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("escrow: configuration is required but not found in config files; " +
				"ensure 'extensions.escrow' or 'escrow' key exists in your config")
		}

		envConfig, err := LoadEnv()
		if err != nil {
			return err
		}
		e.config = mergeConfigurations(envConfig, programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if err := e.config.Validate(); err != nil {
		return err
	}

	e.Logger().Debug("escrow: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("min_storage_bytes", e.config.MinStorageBytes),
		forge.F("byte_cost", e.config.ByteCost),
		forge.F("state_path", e.config.StatePath),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.escrow" first (namespaced pattern).
	if cm.IsSet("extensions.escrow") {
		if err := cm.Bind("extensions.escrow", &cfg); err == nil {
			e.Logger().Debug("escrow: loaded config from file",
				forge.F("key", "extensions.escrow"),
			)
			return cfg, true
		}
		e.Logger().Warn("escrow: failed to bind extensions.escrow config",
			forge.F("error", "bind failed"),
		)
	}

	// Try top-level "escrow" key.
	if cm.IsSet("escrow") {
		if err := cm.Bind("escrow", &cfg); err == nil {
			e.Logger().Debug("escrow: loaded config from file",
				forge.F("key", "escrow"),
			)
			return cfg, true
		}
		e.Logger().Warn("escrow: failed to bind escrow config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MinStorageBytes == 0 {
		cfg.MinStorageBytes = defaults.MinStorageBytes
	}
	if cfg.ByteCost == "" {
		cfg.ByteCost = defaults.ByteCost
	}
	return cfg
}

// mergeConfigurations merges loaded config with programmatic options.
// Loaded config takes precedence; programmatic values fill gaps.
func mergeConfigurations(loaded, programmatic Config) Config {
	// Programmatic bool flags override when true.
	if programmatic.DisableMigrate {
		loaded.DisableMigrate = true
	}

	if loaded.ByteCost == "" {
		loaded.ByteCost = programmatic.ByteCost
	}
	if loaded.StatePath == "" {
		loaded.StatePath = programmatic.StatePath
	}
	if loaded.MinStorageBytes == 0 {
		loaded.MinStorageBytes = programmatic.MinStorageBytes
	}
	loaded.RequireConfig = programmatic.RequireConfig

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(loaded)
}
