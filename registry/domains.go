package registry

import (
	"context"
	"io"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hullpm/hull/solve"
)

// Builder constructs solver domains by walking requirement edges outward
// from the root in BFS layers. Each layer's packuments are fetched by a
// bounded worker pool and merged only after the whole layer lands, so the
// domain map is never observed half-built. Per-package version lists are
// truncated to the newest maxVersions; the orchestrator re-asks with a
// bigger cap when truncation causes a spurious UNSAT.
type Builder struct {
	Client     *Client
	Log        *logrus.Logger
	MinWorkers int
	MaxWorkers int
}

// workers sizes the fetch pool: a multiple of GOMAXPROCS clamped to the
// configured bounds.
func (b *Builder) workers() int {
	min := b.MinWorkers
	if min <= 0 {
		min = 4
	}
	max := b.MaxWorkers
	if max <= 0 {
		max = 32
	}
	if max < min {
		max = min
	}
	n := 4 * runtime.GOMAXPROCS(0)
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

func (b *Builder) logger() *logrus.Logger {
	if b.Log != nil {
		return b.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Domains implements solve.DomainSource. Root packages that cannot be
// fetched fail the build; transitive ones are logged and skipped, leaving
// the solver to report them if they turn out mandatory.
func (b *Builder) Domains(ctx context.Context, input solve.SolveInput, maxVersions int) (solve.Domains, error) {
	log := b.logger()
	out := solve.Domains{}
	seen := map[string]bool{}

	roots := map[string]bool{}
	for name := range input.Requirements {
		roots[name] = true
	}
	for name := range input.Optional {
		roots[name] = true
	}

	frontier := make([]string, 0, len(roots))
	for name := range roots {
		frontier = append(frontier, name)
		seen[name] = true
	}
	sort.Strings(frontier)

	layer := 0
	for len(frontier) > 0 {
		results := make([]*Packument, len(frontier))
		fetchErrs := make([]error, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.workers())
		for i, name := range frontier {
			i, name := i, name
			g.Go(func() error {
				p, err := b.Client.Packument(gctx, name)
				if err != nil {
					if roots[name] {
						return &solve.PackageMetadataError{Package: name, Reason: "packument fetch failed", Err: err}
					}
					fetchErrs[i] = err
					return nil
				}
				results[i] = p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		next := map[string]bool{}
		for i, name := range frontier {
			if results[i] == nil {
				log.WithError(fetchErrs[i]).WithField("pkg", name).Warn("skipping unfetchable package")
				continue
			}
			d := domainFromPackument(name, results[i], maxVersions)
			out[name] = d
			for _, pv := range d.Versions() {
				collectEdges(next, seen, pv.Dependencies)
				collectEdges(next, seen, pv.OptionalDependencies)
				collectEdges(next, seen, pv.PeerDependencies)
			}
		}

		if log.Level >= logrus.DebugLevel {
			log.WithFields(logrus.Fields{
				"layer":   layer,
				"fetched": len(frontier),
				"next":    len(next),
			}).Debug("merged domain layer")
		}

		frontier = frontier[:0]
		for name := range next {
			frontier = append(frontier, name)
		}
		sort.Strings(frontier)
		layer++
	}

	return out, nil
}

func collectEdges(next, seen map[string]bool, edges map[string]string) {
	for dep := range edges {
		if !seen[dep] {
			seen[dep] = true
			next[dep] = true
		}
	}
}

// domainFromPackument converts registry metadata into a solver domain,
// keeping the newest maxVersions candidates. Versions that do not parse are
// dropped by the domain constructor.
func domainFromPackument(name string, p *Packument, maxVersions int) *solve.PackageDomain {
	versions := make([]solve.PackageVersion, 0, len(p.Versions))
	for ver, meta := range p.Versions {
		pv := solve.PackageVersion{
			Version:              ver,
			Dependencies:         meta.Dependencies,
			OptionalDependencies: meta.OptionalDependencies,
			PeerDependencies:     meta.PeerDependencies,
			Tarball:              meta.Dist.Tarball,
			Integrity:            meta.Dist.Integrity,
		}
		if len(meta.PeerDependenciesMeta) > 0 {
			pv.OptionalPeers = map[string]bool{}
			for peer, pm := range meta.PeerDependenciesMeta {
				if pm.Optional {
					pv.OptionalPeers[peer] = true
				}
			}
		}
		versions = append(versions, pv)
	}
	return solve.NewPackageDomain(name, versions...).Truncate(maxVersions)
}
