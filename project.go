package hull

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hullpm/hull/registry"
	"github.com/hullpm/hull/solve"
)

// Project binds a directory's manifest, lockfile and configuration.
type Project struct {
	Dir      string
	Manifest *Manifest
	Lock     *Lockfile
	Config   Config
	Log      *logrus.Logger
}

// LoadProject reads the manifest, any existing lockfile and the
// configuration from dir. The manifest is mandatory; the rest is optional.
func LoadProject(dir string, log *logrus.Logger) (*Project, error) {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	m, err := ReadManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}

	lf, err := ReadLockfile(filepath.Join(dir, LockName))
	if err != nil {
		log.WithError(err).Warn("ignoring unreadable lockfile")
		lf = nil
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	return &Project{Dir: dir, Manifest: m, Lock: lf, Config: cfg, Log: log}, nil
}

// Resolution is the outcome of resolving a project.
type Resolution struct {
	Assignment solve.Assignment
	Resolved   map[string]solve.ResolvedPackage
	Elapsed    time.Duration
}

// Resolve runs the full pipeline: solver options from config, domains from
// the registry, engines behind the orchestrator, and the resolved package
// projection. The previous lockfile, when present, seeds incremental
// engines.
func (p *Project) Resolve(ctx context.Context, includeDev bool) (*Resolution, error) {
	opts, err := p.Config.SolverOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = p.Log
	if p.Lock != nil {
		opts.Previous = p.Lock.Assignment()
	}

	solver, err := solve.NewSolver(opts)
	if err != nil {
		return nil, err
	}

	client := registry.NewClient(registry.ClientOptions{
		BaseURL:  p.Config.Registry,
		Token:    p.Config.Token,
		CacheDir: p.Config.CacheDir,
		Logger:   p.Log,
	})
	builder := &registry.Builder{
		Client:     client,
		Log:        p.Log,
		MinWorkers: p.Config.Workers.Min,
		MaxWorkers: p.Config.Workers.Max,
	}

	input := p.Manifest.SolveInput(includeDev)
	start := time.Now()
	a, domains, err := solver.ResolveWithSource(ctx, input, builder,
		p.Config.DomainCap, p.Config.DomainCapCeiling)
	if err != nil {
		return nil, err
	}

	resolved, err := solve.ResolvedPackages(a, domains)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Assignment: a,
		Resolved:   resolved,
		Elapsed:    time.Since(start),
	}, nil
}

// WriteLock builds a lockfile from the resolution and writes it to the
// project directory.
func (p *Project) WriteLock(res *Resolution) error {
	lf := BuildLockfile(p.Manifest, res.Resolved)
	return WriteLockfile(filepath.Join(p.Dir, LockName), lf)
}
