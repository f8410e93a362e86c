package hull

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/hullpm/hull/registry"
	"github.com/hullpm/hull/solve"
)

// ConfigName is the optional per-project configuration file.
const ConfigName = "hull.toml"

// resolverEnv overrides the configured resolver policy, mainly for staged
// rollouts and bug triage without touching the project.
const resolverEnv = "HULL_RESOLVER"

// Config is the hull.toml document. Every field has a working default; a
// missing file means an all-defaults run against the public registry.
type Config struct {
	Registry         string        `toml:"registry"`
	Token            string        `toml:"token"`
	CacheDir         string        `toml:"cache_dir"`
	Resolver         string        `toml:"resolver"`
	Strict           bool          `toml:"strict"`
	Canary           bool          `toml:"canary"`
	TimeoutSeconds   int           `toml:"timeout_seconds"`
	MaxDecisions     int           `toml:"max_decisions"`
	DomainCap        int           `toml:"domain_cap"`
	DomainCapCeiling int           `toml:"domain_cap_ceiling"`
	Workers          WorkersConfig `toml:"workers"`
}

// WorkersConfig bounds the registry fetch pool.
type WorkersConfig struct {
	Min int `toml:"min"`
	Max int `toml:"max"`
}

// DefaultConfig returns the configuration used when no hull.toml exists.
func DefaultConfig() Config {
	return Config{
		Registry:         registry.DefaultBaseURL,
		Resolver:         "staged",
		TimeoutSeconds:   int(solve.DefaultTimeout / time.Second),
		MaxDecisions:     solve.DefaultMaxDecisions,
		DomainCap:        solve.DefaultDomainCap,
		DomainCapCeiling: solve.DefaultDomainCapCeiling,
	}
}

// LoadConfig reads dir/hull.toml over the defaults. A missing file is fine.
// The HULL_RESOLVER environment variable, when set, wins over the file.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(dir, ConfigName)
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, errors.Wrapf(err, "read %s", path)
	}
	if err == nil {
		if uerr := toml.Unmarshal(raw, &cfg); uerr != nil {
			return cfg, errors.Wrapf(uerr, "parse %s", path)
		}
	}

	if env := os.Getenv(resolverEnv); env != "" {
		cfg.Resolver = env
	}
	return cfg, nil
}

// SolverOptions translates the configuration into solver options.
func (c Config) SolverOptions() (solve.Options, error) {
	policy, err := solve.ParsePolicy(c.Resolver)
	if err != nil {
		return solve.Options{}, err
	}
	opts := solve.Options{
		Policy:       policy,
		Strict:       c.Strict,
		Canary:       c.Canary,
		Timeout:      time.Duration(c.TimeoutSeconds) * time.Second,
		MaxDecisions: c.MaxDecisions,
	}
	if c.CacheDir != "" {
		opts.UnsatCachePath = filepath.Join(c.CacheDir, "unsat.db")
	}
	return opts, nil
}
