// Package config handles lynx.toml engine configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"lynx/pkg/vm"
)

// FileName is the configuration file looked up by Find.
const FileName = "lynx.toml"

// Config is the content of a lynx.toml file.
type Config struct {
	Engine    Engine    `toml:"engine"`
	Scheduler Scheduler `toml:"scheduler"`
	Log       Log       `toml:"log"`

	// Path is the file the configuration was loaded from, empty for defaults.
	Path string `toml:"-"`
}

// Engine sizes the runtime.
type Engine struct {
	StackSize           int  `toml:"stack_size"`
	CoroutineStackSize  int  `toml:"coroutine_stack_size"`
	MaxCallDepth        int  `toml:"max_call_depth"`
	MaxHeapCells        int  `toml:"max_heap_cells"`
	MaxArrayLength      int  `toml:"max_array_length"`
	CollectAfterExecute bool `toml:"collect_after_execute"`
}

// Scheduler bounds the executor drain loop.
type Scheduler struct {
	MaxDrainRounds int `toml:"max_drain_rounds"`
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	opts := vm.DefaultOptions()
	return &Config{
		Engine: Engine{
			StackSize:          opts.StackSize,
			CoroutineStackSize: opts.CoroutineStackSize,
			MaxCallDepth:       opts.MaxCallDepth,
			MaxArrayLength:     opts.MaxArrayLength,
		},
	}
}

// Load parses path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find walks up from startDir looking for lynx.toml. It returns the path
// and whether one was found.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Resolve loads the explicit path when given, otherwise the nearest
// lynx.toml above startDir, otherwise the defaults.
func Resolve(explicit, startDir string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects sizes the runtime cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Engine.StackSize <= 0:
		return fmt.Errorf("[engine].stack_size must be positive, got %d", c.Engine.StackSize)
	case c.Engine.CoroutineStackSize <= 0:
		return fmt.Errorf("[engine].coroutine_stack_size must be positive, got %d", c.Engine.CoroutineStackSize)
	case c.Engine.MaxCallDepth <= 0:
		return fmt.Errorf("[engine].max_call_depth must be positive, got %d", c.Engine.MaxCallDepth)
	case c.Engine.MaxHeapCells < 0:
		return fmt.Errorf("[engine].max_heap_cells must not be negative, got %d", c.Engine.MaxHeapCells)
	case c.Engine.MaxArrayLength < 0:
		return fmt.Errorf("[engine].max_array_length must not be negative, got %d", c.Engine.MaxArrayLength)
	case c.Scheduler.MaxDrainRounds < 0:
		return fmt.Errorf("[scheduler].max_drain_rounds must not be negative, got %d", c.Scheduler.MaxDrainRounds)
	}
	return nil
}

// Options converts the configuration into runtime options. The regex
// compiler is left for the caller to install.
func (c *Config) Options() vm.Options {
	return vm.Options{
		StackSize:           c.Engine.StackSize,
		CoroutineStackSize:  c.Engine.CoroutineStackSize,
		MaxCallDepth:        c.Engine.MaxCallDepth,
		MaxHeapCells:        c.Engine.MaxHeapCells,
		MaxArrayLength:      c.Engine.MaxArrayLength,
		CollectAfterExecute: c.Engine.CollectAfterExecute,
		MaxDrainRounds:      c.Scheduler.MaxDrainRounds,
	}
}
