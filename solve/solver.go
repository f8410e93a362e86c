// Package solve resolves npm-style dependency graphs. It carries four
// engines behind one orchestrator: an incremental and a from-scratch
// PubGrub solver, a SAT-style DFS with learned-clause pruning, and a
// queue-driven legacy resolver kept as the final fallback. A minimal
// selection fast path runs before any engine when the constraint shapes
// allow it.
package solve

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Solve budgets and domain caps. Exceeding a budget is a Timeout failure,
// never an unsatisfiability verdict.
const (
	DefaultTimeout          = 300 * time.Second
	DefaultMaxDecisions     = 10000
	DefaultDomainCap        = 64
	DefaultDomainCapCeiling = 1024
)

// Policy selects the first engine tried. Unless strict mode is on, the
// remaining engines follow in fixed order as fallbacks.
type Policy uint8

const (
	// PolicyStaged is the rollout default: the SAT engine leads, unless the
	// canary flag promotes incremental PubGrub.
	PolicyStaged Policy = iota
	PolicyPubGrubIncremental
	PolicyPubGrub
	PolicySAT
	PolicyLegacy
)

func (p Policy) String() string {
	switch p {
	case PolicyPubGrubIncremental:
		return "pubgrub-incremental"
	case PolicyPubGrub:
		return "pubgrub"
	case PolicySAT:
		return "sat"
	case PolicyLegacy:
		return "legacy-dfs"
	default:
		return "staged"
	}
}

// ParsePolicy reads a policy name as used in configuration and the
// HULL_RESOLVER override.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "staged":
		return PolicyStaged, nil
	case "pubgrub-incremental", "incremental":
		return PolicyPubGrubIncremental, nil
	case "pubgrub":
		return PolicyPubGrub, nil
	case "sat":
		return PolicySAT, nil
	case "legacy-dfs", "legacy":
		return PolicyLegacy, nil
	}
	return PolicyStaged, badOptsError(fmt.Sprintf("unknown resolver policy %q", s))
}

// Options configure a Solver.
type Options struct {
	Policy Policy
	// Strict stops after the selected engine instead of falling back.
	Strict bool
	// Canary promotes incremental PubGrub to the front of the staged chain.
	Canary bool
	// Timeout is the per-engine wall-clock budget. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxDecisions is the per-engine decision-depth budget. Zero means
	// DefaultMaxDecisions.
	MaxDecisions int
	// Previous seeds incremental engines with the prior lockfile assignment.
	Previous Assignment
	// UnsatCachePath, when set, persists the SAT engine's dead ends across
	// runs in a bolt file at this path.
	UnsatCachePath string
	Logger         *logrus.Logger
}

// Engine is one resolution strategy. Two contract points hold across every
// engine: when several versions of a package satisfy all constraints, the
// numerically highest is selected; and an optional requirement constrains
// its target once the target is selected, but never forces it in and never
// fails when it is absent.
type Engine interface {
	Name() string
	Resolve(ctx context.Context, input SolveInput, domains Domains) (Assignment, SolveStats, error)
}

// EngineFailure is one classified entry in the fallback trail.
type EngineFailure struct {
	Engine string
	Class  FailureClass
	Err    error
}

// ResolutionFailedError carries the whole fallback trail after every engine
// was exhausted.
type ResolutionFailedError struct {
	Failures []EngineFailure
}

func (e *ResolutionFailedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%s): %s", f.Engine, f.Class, f.Err.Error())
	}
	return "resolution failed: " + strings.Join(parts, "; ")
}

// Unsat reports whether any engine in the trail returned a proven
// unsatisfiability, as opposed to budgets or metadata trouble.
func (e *ResolutionFailedError) Unsat() bool {
	for _, f := range e.Failures {
		if f.Class == FailureUnsat {
			return true
		}
	}
	return false
}

// Solver runs the policy-selected engine chain over an input.
type Solver struct {
	opts Options
	log  *logrus.Logger
}

// NewSolver validates options and returns a Solver. A nil logger discards.
func NewSolver(opts Options) (*Solver, error) {
	if opts.Timeout < 0 {
		return nil, badOptsError("negative timeout")
	}
	if opts.MaxDecisions < 0 {
		return nil, badOptsError("negative decision budget")
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxDecisions == 0 {
		opts.MaxDecisions = DefaultMaxDecisions
	}
	log := opts.Logger
	if log == nil {
		log = discardLogger()
	}
	return &Solver{opts: opts, log: log}, nil
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// engines builds the attempt chain: the policy's engine first, then the
// remaining engines in canonical order unless strict mode is on.
func (s *Solver) engines(domains Domains) []Engine {
	lead := s.opts.Policy
	if lead == PolicyStaged {
		lead = PolicySAT
		if s.opts.Canary {
			lead = PolicyPubGrubIncremental
		}
	}

	var cache *UnsatCache
	if s.opts.UnsatCachePath != "" {
		c, err := OpenUnsatCache(s.opts.UnsatCachePath, domains.Fingerprint())
		if err != nil {
			s.log.WithError(err).Warn("unsat cache unavailable, solving without it")
		} else {
			cache = c
		}
	}

	byPolicy := map[Policy]Engine{
		PolicyPubGrubIncremental: &PubGrub{
			Log: s.log, Timeout: s.opts.Timeout, MaxDecisions: s.opts.MaxDecisions,
			Incremental: true, Previous: s.opts.Previous,
		},
		PolicyPubGrub: &PubGrub{
			Log: s.log, Timeout: s.opts.Timeout, MaxDecisions: s.opts.MaxDecisions,
		},
		PolicySAT: &SAT{
			Log: s.log, Timeout: s.opts.Timeout, MaxDecisions: s.opts.MaxDecisions,
			Previous: s.opts.Previous, Cache: cache,
		},
		PolicyLegacy: &LegacyDFS{Log: s.log, Timeout: s.opts.Timeout},
	}

	chain := []Engine{byPolicy[lead]}
	if s.opts.Strict {
		return chain
	}
	for _, p := range []Policy{PolicyPubGrubIncremental, PolicyPubGrub, PolicySAT, PolicyLegacy} {
		if p != lead {
			chain = append(chain, byPolicy[p])
		}
	}
	return chain
}

// Resolve runs the fast path and then the engine chain until one produces a
// peer-valid assignment. Each failure is classified and logged; when the
// chain is exhausted the trail comes back as a ResolutionFailedError.
func (s *Solver) Resolve(ctx context.Context, input SolveInput, domains Domains) (Assignment, error) {
	if a, ok := MinimalSelection(input, domains); ok {
		if err := ValidatePeers(a, domains); err == nil {
			if s.log.Level >= logrus.DebugLevel {
				s.log.WithField("packages", len(a)).Debug("fast path selection verified")
			}
			return a, nil
		}
	}

	var failures []EngineFailure
	for _, eng := range s.engines(domains) {
		start := time.Now()
		a, stats, err := eng.Resolve(ctx, input, domains)
		if err == nil {
			err = ValidatePeers(a, domains)
		}
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"engine":   eng.Name(),
				"packages": len(a),
				"elapsed":  time.Since(start),
			}).Info("resolved")
			if s.log.Level >= logrus.DebugLevel {
				s.log.WithFields(logrus.Fields{
					"decisions":    stats.Decisions,
					"propagations": stats.Propagations,
					"conflicts":    stats.Conflicts,
					"backtracks":   stats.Backtracks,
					"learned":      stats.Learned,
					"nodes":        stats.NodesVisited,
					"cache_hits":   stats.UnsatCacheHits,
					"forbid_hits":  stats.LearnedForbidHits,
				}).Debug("engine statistics")
			}
			return a, nil
		}

		class := Classify(err)
		failures = append(failures, EngineFailure{Engine: eng.Name(), Class: class, Err: err})
		s.log.WithFields(logrus.Fields{
			"engine":  eng.Name(),
			"class":   class.String(),
			"elapsed": time.Since(start),
		}).Warn("engine failed")
		if s.log.Level >= logrus.DebugLevel {
			if t, ok := err.(tracer); ok {
				s.log.Debug(t.traceString())
			}
		}
	}
	return nil, &ResolutionFailedError{Failures: failures}
}

// ResolveWithSource drives domain construction and resolution together:
// build capped domains, solve, and on an unsatisfiable verdict double the
// per-package version cap and rebuild, up to the ceiling. A truncated
// domain can make a satisfiable input look unsatisfiable; a genuine
// conflict stays one at every cap.
func (s *Solver) ResolveWithSource(ctx context.Context, input SolveInput, src DomainSource, versionCap, ceiling int) (Assignment, Domains, error) {
	if versionCap <= 0 {
		versionCap = DefaultDomainCap
	}
	if ceiling <= 0 {
		ceiling = DefaultDomainCapCeiling
	}

	for {
		domains, err := src.Domains(ctx, input, versionCap)
		if err != nil {
			return nil, nil, err
		}

		a, err := s.Resolve(ctx, input, domains)
		if err == nil {
			return a, domains, nil
		}

		rf, ok := err.(*ResolutionFailedError)
		if !ok || !rf.Unsat() || versionCap >= ceiling {
			return nil, domains, err
		}
		versionCap *= 2
		if versionCap > ceiling {
			versionCap = ceiling
		}
		s.log.WithField("cap", versionCap).Info("unsatisfiable under truncated domains, expanding version cap")
	}
}
