package arr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFile is the name searched for by FindConfig.
const ConfigFile = "arr.toml"

// Config controls the adaptive behavior of a Context.
type Config struct {
	// Specialize enables call-site specialization and constant folding.
	// With it off every operation runs its generic implementation.
	Specialize bool `toml:"specialize"`

	// EagerEval controls which arguments are evaluated at the call site
	// instead of being wrapped in a lazy promise.
	EagerEval EagerEvalConfig `toml:"eager_eval"`

	// Timeout bounds each top-level evaluation; zero means no limit.
	Timeout Duration `toml:"timeout"`

	// NativeCacheSize is the number of resolved native symbols kept per
	// context.
	NativeCacheSize int `toml:"native_cache_size"`
}

// EagerEvalConfig selects the argument shapes that are evaluated eagerly.
type EagerEvalConfig struct {
	// Constants are literal arguments.
	Constants bool `toml:"constants"`
	// Variables are arguments naming a local, already evaluated variable.
	Variables bool `toml:"variables"`
}

// Duration is a time.Duration that decodes from strings like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig is used when no arr.toml is present.
func DefaultConfig() Config {
	return Config{
		Specialize: true,
		EagerEval: EagerEvalConfig{
			Constants: true,
		},
		NativeCacheSize: 128,
	}
}

// LoadConfig loads an arr.toml file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return config, nil
}

// FindConfig searches for arr.toml starting from dir and walking up to
// parent directories, stopping at a .git boundary. Returns the path and the
// parsed config, or ("", DefaultConfig(), nil) if not found.
func FindConfig(dir string) (string, Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", Config{}, err
	}
	for {
		path := filepath.Join(dir, ConfigFile)
		if _, err := os.Stat(path); err == nil {
			config, err := LoadConfig(path)
			if err != nil {
				return "", Config{}, err
			}
			return path, config, nil
		}

		// Stop at .git boundary
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return "", DefaultConfig(), nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", DefaultConfig(), nil
		}
		dir = parent
	}
}

// ApplyEnv overrides config values from ARR_SPECIALIZE and ARR_TIMEOUT.
func (c Config) ApplyEnv() (Config, error) {
	if v, ok := os.LookupEnv("ARR_SPECIALIZE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("ARR_SPECIALIZE: %w", err)
		}
		c.Specialize = b
	}
	if v, ok := os.LookupEnv("ARR_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("ARR_TIMEOUT: %w", err)
		}
		c.Timeout = Duration{d}
	}
	return c, nil
}

type configKey struct{}

// WithConfig makes config visible to evaluation running under ctx.
func WithConfig(ctx context.Context, config Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

func configFrom(ctx context.Context) Config {
	if c, ok := ctx.Value(configKey{}).(Config); ok {
		return c
	}
	return DefaultConfig()
}

func specializationEnabled(ctx context.Context) bool {
	return configFrom(ctx).Specialize
}
