package solve

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// PubGrub is a CDCL-style resolver: unit propagation over
// incompatibilities, package decisions ordered by fewest candidates with an
// activity tie-break, and conflict resolution that learns new
// incompatibilities and backjumps. Failed inputs come back with a
// derivation tree explaining the conflict.
//
// Optional requirements constrain a package once selected but never force
// one in.
//
// With Incremental set, version selection prefers the previous assignment
// (the exact version when still valid, otherwise the highest same-major
// candidate) before falling back to newest-first.
type PubGrub struct {
	Log          *logrus.Logger
	Timeout      time.Duration
	MaxDecisions int
	Incremental  bool
	Previous     Assignment
}

func (e *PubGrub) Name() string {
	if e.Incremental {
		return "pubgrub-incremental"
	}
	return "pubgrub"
}

func (e *PubGrub) Resolve(ctx context.Context, input SolveInput, domains Domains) (Assignment, SolveStats, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxDecisions := e.MaxDecisions
	if maxDecisions <= 0 {
		maxDecisions = DefaultMaxDecisions
	}
	log := e.Log
	if log == nil {
		log = discardLogger()
	}

	r := &pubgrubRun{
		name:         e.Name(),
		log:          log,
		domains:      domains,
		ps:           newPartialSolution(),
		heur:         newAdaptiveHeuristic(),
		expanded:     map[string]bool{},
		deadline:     time.Now().Add(timeout),
		maxDecisions: maxDecisions,
		prev:         map[string]PackedVersion{},
	}
	if e.Incremental {
		for pkg, ver := range e.Previous {
			if packed, err := ParseVersion(ver); err == nil {
				r.prev[pkg] = packed
			}
		}
	}

	a, err := r.solve(ctx, input)
	return a, r.stats, err
}

type pubgrubRun struct {
	name    string
	log     *logrus.Logger
	domains Domains

	store    []*Incompatibility
	ps       *PartialSolution
	heur     *adaptiveHeuristic
	expanded map[string]bool
	prev     map[string]PackedVersion

	deadline     time.Time
	maxDecisions int
	stats        SolveStats
}

func (r *pubgrubRun) solve(ctx context.Context, input SolveInput) (Assignment, error) {
	for _, pkg := range sortedKeys(input.Requirements) {
		set, err := ParseSpec(input.Requirements[pkg])
		if err != nil {
			return nil, &PackageMetadataError{Package: pkg, Reason: "bad root requirement", Err: err}
		}
		r.store = append(r.store, rootIncompat(pkg, set))
	}
	// Optional root requirements never force a package in, but they do
	// constrain it once something else selects it.
	for _, pkg := range sortedKeys(input.Optional) {
		set, err := ParseSpec(input.Optional[pkg])
		if err != nil {
			return nil, &PackageMetadataError{Package: pkg, Reason: "bad optional root requirement", Err: err}
		}
		r.store = append(r.store, optionalRootIncompat(pkg, set))
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(r.deadline) {
			return nil, &TimeoutError{Engine: r.name, Limit: "wall clock"}
		}

		conflict := r.propagate()
		if conflict != nil {
			r.stats.Conflicts++
			if err := r.resolveConflict(conflict); err != nil {
				return nil, err
			}
			if r.heur.shouldRestart() && r.ps.decisionLevel() > 0 {
				r.ps.backtrack(0)
				r.heur.settle()
				r.stats.Restarts++
				if r.log.Level >= logrus.DebugLevel {
					r.log.WithField("learned", r.stats.Learned).Debug("search quality degraded, restarting")
				}
			}
			continue
		}

		if r.solved() {
			return r.extract()
		}

		if r.ps.decisionLevel() >= r.maxDecisions {
			return nil, &TimeoutError{Engine: r.name, Limit: "decision depth"}
		}

		conflict, err := r.decide()
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			r.stats.Conflicts++
			if err := r.resolveConflict(conflict); err != nil {
				return nil, err
			}
		}
	}
}

// propagate runs unit propagation to a fixed point. An incompatibility with
// every term satisfied is a conflict and is returned; one with exactly one
// open term and the rest satisfied forces the open term's negation.
func (r *pubgrubRun) propagate() *Incompatibility {
	for changed := true; changed; {
		changed = false
		for _, inc := range r.store {
			satisfied := 0
			open := -1
			contradicted := false
			for i, t := range inc.Terms {
				switch r.ps.relation(t) {
				case termSatisfied:
					satisfied++
				case termContradicted:
					contradicted = true
				default:
					if open >= 0 {
						open = -2
					} else {
						open = i
					}
				}
				if contradicted {
					break
				}
			}
			if contradicted {
				continue
			}
			if open == -1 {
				return inc
			}
			if open >= 0 && satisfied == len(inc.Terms)-1 {
				t := inc.Terms[open].Negate()
				r.ps.derive(t, inc)
				r.stats.Propagations++
				changed = true
			}
		}
	}
	return nil
}

// solved reports whether every package that acquired a positive constraint
// has a decision.
func (r *pubgrubRun) solved() bool {
	for pkg := range r.ps.required {
		if _, ok := r.ps.decided[pkg]; !ok {
			return false
		}
	}
	return true
}

func (r *pubgrubRun) extract() (Assignment, error) {
	out := Assignment{}
	for pkg, packed := range r.ps.decisions() {
		d, ok := r.domains[pkg]
		if !ok {
			return nil, internalf("decided %s but domain is missing", pkg)
		}
		pv, ok := d.GetPacked(packed)
		if !ok {
			return nil, internalf("decided %s@%s but version is missing", pkg, packed)
		}
		out[pkg] = pv.Version
	}
	return out, nil
}

// decide picks the undecided package with the fewest compatible candidates
// (activity breaks ties) and selects its newest candidate, then loads the
// chosen version's requirement edges into the store. A package left with no
// candidates yields a conflict instead.
func (r *pubgrubRun) decide() (*Incompatibility, error) {
	var names []string
	for pkg := range r.ps.required {
		if _, ok := r.ps.decided[pkg]; !ok {
			names = append(names, pkg)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, internalf("decide with nothing undecided")
	}

	var bestPkg string
	var bestCands []PackedVersion
	bestScore := 0.0
	for _, pkg := range names {
		allowed := r.ps.allowedFor(pkg)
		var cands []PackedVersion
		if d, ok := r.domains[pkg]; ok {
			cands = d.candidatesIn(allowed)
		}
		if len(cands) == 0 {
			inc := noVersionsIncompat(pkg, allowed)
			if cause := r.ps.satisfierCause([]string{pkg}); cause != nil {
				inc = derivedIncompat(inc, cause, inc.Terms)
			}
			r.store = append(r.store, inc)
			return inc, nil
		}
		score := r.heur.score(pkg)
		if bestPkg == "" || len(cands) < len(bestCands) ||
			(len(cands) == len(bestCands) && score > bestScore) {
			bestPkg, bestCands, bestScore = pkg, cands, score
		}
	}

	v := r.chooseVersion(bestPkg, bestCands)
	r.ps.decide(bestPkg, v)
	r.stats.Decisions++
	if r.log.Level >= logrus.DebugLevel {
		r.log.WithFields(logrus.Fields{
			"pkg":        bestPkg,
			"version":    v.String(),
			"candidates": len(bestCands),
			"level":      r.ps.decisionLevel(),
		}).Debug("selected version")
	}
	if err := r.expand(bestPkg, v); err != nil {
		return nil, err
	}
	return nil, nil
}

// chooseVersion applies the value ordering: previous assignment first when
// incremental, then highest same-major, then newest. candidates arrive
// ascending.
func (r *pubgrubRun) chooseVersion(pkg string, candidates []PackedVersion) PackedVersion {
	if prev, ok := r.prev[pkg]; ok {
		best := PackedVersion(0)
		found := false
		for _, c := range candidates {
			if c == prev {
				return c
			}
			if c.Major() == prev.Major() && (!found || c > best) {
				best, found = c, true
			}
		}
		if found {
			return best
		}
	}
	return candidates[len(candidates)-1]
}

// expand loads the requirement edges of pkg@v as dependency
// incompatibilities, once per version. Mandatory peers behave like
// dependencies. Optional dependencies and optional peers never force their
// target in; they constrain it once it is selected.
func (r *pubgrubRun) expand(pkg string, v PackedVersion) error {
	key := pkg + "@" + v.String()
	if r.expanded[key] {
		return nil
	}
	r.expanded[key] = true

	pv, ok := r.domains[pkg].GetPacked(v)
	if !ok {
		return internalf("expanding %s but version is missing", key)
	}
	for _, dep := range sortedKeys(pv.Dependencies) {
		set, err := ParseSpec(pv.Dependencies[dep])
		if err != nil {
			return &PackageMetadataError{Package: pkg, Reason: "bad requirement on " + dep, Err: err}
		}
		r.store = append(r.store, dependencyIncompat(pkg, v, dep, set))
	}
	for _, dep := range sortedKeys(pv.OptionalDependencies) {
		set, err := ParseSpec(pv.OptionalDependencies[dep])
		if err != nil {
			return &PackageMetadataError{Package: pkg, Reason: "bad optional requirement on " + dep, Err: err}
		}
		r.store = append(r.store, optionalDependencyIncompat(pkg, v, dep, set))
	}
	for _, peer := range sortedKeys(pv.PeerDependencies) {
		set, err := ParseSpec(pv.PeerDependencies[peer])
		if err != nil {
			return &PackageMetadataError{Package: pkg, Reason: "bad peer requirement on " + peer, Err: err}
		}
		if pv.OptionalPeers[peer] {
			r.store = append(r.store, optionalDependencyIncompat(pkg, v, peer, set))
			continue
		}
		r.store = append(r.store, dependencyIncompat(pkg, v, peer, set))
	}
	return nil
}

// resolveConflict walks satisfiers of the conflicting incompatibility,
// resolving against derivation causes until the conflict has a unique
// newest satisfier, then backjumps and derives that term's negation. A
// conflict rooted entirely at decision level zero is a proof of
// unsatisfiability.
func (r *pubgrubRun) resolveConflict(conflict *Incompatibility) error {
	original := conflict
	for {
		if len(conflict.Terms) == 0 {
			return &NoSolutionError{Tree: &DerivationTree{Conflict: conflict}}
		}

		maxIdx, prevIdx := -1, -1
		var maxTerm Term
		for _, t := range conflict.Terms {
			idx := r.ps.termSatisfierIndex(t)
			if idx < 0 {
				return internalf("conflict term %s is not satisfied", t.String())
			}
			if idx > maxIdx {
				prevIdx = maxIdx
				maxIdx, maxTerm = idx, t
			} else if idx > prevIdx {
				prevIdx = idx
			}
		}

		satisfier := r.ps.trail[maxIdx]
		satLevel := satisfier.level
		prevLevel := 0
		if prevIdx >= 0 {
			prevLevel = r.ps.trail[prevIdx].level
		}

		if satLevel <= 0 {
			// Everything contributing to the conflict was forced before the
			// first decision. Resolve the evidence chain all the way down so
			// the derivation tree carries the full story, then report.
			if satisfier.kind == kindDerivation && satisfier.cause != nil {
				conflict = derivedIncompat(conflict, satisfier.cause,
					resolveTerms(conflict, satisfier.cause, satisfier.pkg))
				continue
			}
			if r.log.Level >= logrus.DebugLevel {
				r.log.WithField("conflict", conflict.String()).Debug("conflict at level zero, unsatisfiable")
			}
			return &NoSolutionError{Tree: &DerivationTree{Conflict: conflict}}
		}

		if satisfier.kind == kindDecision || prevLevel != satLevel {
			lbd := distinctLevels(r, conflict)
			r.heur.onConflict(conflict.packages(), satLevel, lbd)

			r.ps.backtrack(prevLevel)
			r.stats.Backtracks++
			if conflict != original {
				r.store = append(r.store, conflict)
				r.stats.Learned++
			}
			// Every other term is still satisfied below the backjump level,
			// so the conflict forces the negation of the newest satisfier's
			// term. Deriving it here is exactly the unit propagation step.
			r.ps.derive(maxTerm.Negate(), conflict)
			r.stats.Propagations++
			if r.log.Level >= logrus.DebugLevel {
				r.log.WithFields(logrus.Fields{
					"pkg":   maxTerm.Package,
					"from":  satLevel,
					"to":    prevLevel,
					"terms": len(conflict.Terms),
				}).Debug("backjumped after conflict")
			}
			return nil
		}

		// The satisfier is a derivation at the same level as the rest of the
		// evidence: resolve the conflict against its cause and keep going.
		if satisfier.cause == nil {
			return internalf("derivation for %s has no cause", satisfier.pkg)
		}
		conflict = derivedIncompat(conflict, satisfier.cause,
			resolveTerms(conflict, satisfier.cause, satisfier.pkg))
	}
}

// resolveTerms merges the terms of two incompatibilities, dropping the
// pivot package and intersecting duplicate statements about the same
// package.
func resolveTerms(a, b *Incompatibility, pivot string) []Term {
	var out []Term
	index := map[string]int{}
	add := func(t Term) {
		if t.Package == pivot {
			return
		}
		if i, ok := index[t.Package]; ok {
			merged, _ := out[i].Intersect(t)
			out[i] = merged
			return
		}
		index[t.Package] = len(out)
		out = append(out, t)
	}
	for _, t := range a.Terms {
		add(t)
	}
	for _, t := range b.Terms {
		add(t)
	}
	return out
}

// distinctLevels counts the decision levels represented in a conflict, the
// LBD signal fed to the restart heuristic.
func distinctLevels(r *pubgrubRun, inc *Incompatibility) float64 {
	seen := map[int]bool{}
	for _, t := range inc.Terms {
		seen[r.ps.satisfierLevel(t.Package)] = true
	}
	return float64(len(seen))
}

// termSatisfierIndex finds the first trail index whose prefix satisfies t,
// or -1. Satisfaction is monotone along the trail, so scanning forward and
// stopping at the first hit is exact. As in relation, a prefix with only
// negative derivations for the package cannot satisfy a positive term.
func (ps *PartialSolution) termSatisfierIndex(t Term) int {
	var decided *PackedVersion
	allowed := AnySet()
	haveAllowed := false
	havePositive := false
	for i, a := range ps.trail {
		if a.pkg != t.Package {
			continue
		}
		if a.kind == kindDecision {
			v := a.version
			decided = &v
		} else {
			haveAllowed = true
			if a.term.Positive {
				havePositive = true
				allowed = allowed.Intersect(a.term.Versions)
			} else {
				allowed = allowed.Difference(a.term.Versions)
			}
		}

		if decided != nil {
			if t.Satisfies(*decided) {
				return i
			}
			continue
		}
		if !haveAllowed {
			continue
		}
		if t.Positive {
			if havePositive && !allowed.Intersect(t.Versions).IsEmpty() && allowed.Difference(t.Versions).IsEmpty() {
				return i
			}
		} else if allowed.Intersect(t.Versions).IsEmpty() {
			return i
		}
	}
	return -1
}
