package solve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SAT is a depth-first resolver with CDCL-flavored pruning: unit
// propagation of single-candidate packages, memoization of unsatisfiable
// search states, and learned (state, package, version) conflict clauses
// behind a watched-literal index. Branching picks the mandatory package
// with the fewest candidates; values are tried newest first. Optional
// requirements constrain a package once selected but never force one in.
type SAT struct {
	Log          *logrus.Logger
	Timeout      time.Duration
	MaxDecisions int
	Previous     Assignment
	Cache        *UnsatCache
}

func (e *SAT) Name() string { return "sat" }

type satRequirement struct {
	spec      string
	set       VersionSet
	requester string
	optional  bool
}

type satState struct {
	assignment   map[string]string
	requirements map[string][]satRequirement
	expanded     map[string]bool
}

func newSatState() *satState {
	return &satState{
		assignment:   map[string]string{},
		requirements: map[string][]satRequirement{},
		expanded:     map[string]bool{},
	}
}

// clone copies the state for a branch. Requirement slices are copied
// shallowly; entries themselves are immutable once added.
func (s *satState) clone() *satState {
	out := newSatState()
	for k, v := range s.assignment {
		out.assignment[k] = v
	}
	for k, v := range s.requirements {
		reqs := make([]satRequirement, len(v))
		copy(reqs, v)
		out.requirements[k] = reqs
	}
	for k := range s.expanded {
		out.expanded[k] = true
	}
	return out
}

func (s *satState) addRequirement(pkg, spec, requester string, optional bool) error {
	for _, r := range s.requirements[pkg] {
		if r.spec == spec && r.requester == requester && r.optional == optional {
			return nil
		}
	}
	set, err := ParseSpec(spec)
	if err != nil {
		return &PackageMetadataError{Package: pkg, Reason: "bad requirement from " + requester, Err: err}
	}
	s.requirements[pkg] = append(s.requirements[pkg], satRequirement{
		spec: spec, set: set, requester: requester, optional: optional,
	})
	return nil
}

func (s *satState) hasMandatory(pkg string) bool {
	for _, r := range s.requirements[pkg] {
		if !r.optional {
			return true
		}
	}
	return false
}

func (s *satState) sortedRequirementKeys() []string {
	out := make([]string, 0, len(s.requirements))
	for k := range s.requirements {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *satState) sortedAssignmentKeys() []string {
	out := make([]string, 0, len(s.assignment))
	for k := range s.assignment {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// signature canonically serializes the search-relevant part of the state:
// per package, its assignment (or "?") and the sorted deduplicated set of
// mandatory specs constraining it.
func (s *satState) signature() string {
	var b strings.Builder
	for _, pkg := range s.sortedRequirementKeys() {
		b.WriteString(pkg)
		b.WriteByte('=')
		if v, ok := s.assignment[pkg]; ok {
			b.WriteString(v)
		} else {
			b.WriteByte('?')
		}
		b.WriteByte(':')
		var specs []string
		for _, r := range s.requirements[pkg] {
			if !r.optional {
				specs = append(specs, r.spec)
			}
		}
		sort.Strings(specs)
		prev := ""
		for _, spec := range specs {
			if spec == prev {
				continue
			}
			prev = spec
			b.WriteString(spec)
			b.WriteByte('|')
		}
		b.WriteByte(';')
	}
	return b.String()
}

func (e *SAT) Resolve(ctx context.Context, input SolveInput, domains Domains) (Assignment, SolveStats, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxDepth := e.MaxDecisions
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDecisions
	}
	log := e.Log
	if log == nil {
		log = discardLogger()
	}

	state := newSatState()
	for _, pkg := range sortedKeys(input.Requirements) {
		if err := state.addRequirement(pkg, input.Requirements[pkg], "root", false); err != nil {
			return nil, SolveStats{}, err
		}
	}
	for _, pkg := range sortedKeys(input.Optional) {
		if err := state.addRequirement(pkg, input.Optional[pkg], "root (optional)", true); err != nil {
			return nil, SolveStats{}, err
		}
	}

	r := &satRun{
		log:      log,
		domains:  domains,
		unsat:    map[string]bool{},
		watch:    newWatchIndex(),
		deadline: time.Now().Add(timeout),
		maxDepth: maxDepth,
		cache:    e.Cache,
		prev:     e.Previous,
	}

	solved, err := r.dfs(ctx, state, 0)
	if r.cache != nil {
		if serr := r.cache.Save(); serr != nil {
			log.WithError(serr).Warn("could not persist unsat cache")
		}
	}
	if err != nil {
		return nil, r.stats, err
	}
	out := Assignment{}
	for k, v := range solved.assignment {
		out[k] = v
	}
	return out, r.stats, nil
}

type satRun struct {
	log     *logrus.Logger
	domains Domains

	unsat map[string]bool
	watch *watchIndex
	cache *UnsatCache
	prev  Assignment

	deadline time.Time
	maxDepth int
	stats    SolveStats
}

func (r *satRun) dfs(ctx context.Context, state *satState, depth int) (*satState, error) {
	r.stats.NodesVisited++
	if depth > r.maxDepth {
		return nil, &TimeoutError{Engine: "sat", Limit: "decision depth"}
	}
	if time.Now().After(r.deadline) {
		return nil, &TimeoutError{Engine: "sat", Limit: "wall clock"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.propagate(state); err != nil {
		return nil, err
	}

	sig := state.signature()
	if r.unsat[sig] || (r.cache != nil && r.cache.Has(sig)) {
		r.stats.UnsatCacheHits++
		return nil, &NoSolutionError{Summary: "cached unsatisfiable state"}
	}

	pkg, ok := r.chooseBranchVariable(state)
	if !ok {
		return state, nil
	}

	candidates, err := r.candidatesFor(state, pkg)
	if err != nil {
		return nil, err
	}
	r.orderCandidates(pkg, candidates)

	var lastErr error
	for _, cand := range candidates {
		if reason, hit := r.watch.forbidden(sig, pkg, cand); hit {
			r.stats.LearnedForbidHits++
			if r.log.Level >= logrus.DebugLevel {
				r.log.WithFields(logrus.Fields{"pkg": pkg, "version": cand, "reason": reason}).Debug("skipping learned dead end")
			}
			continue
		}
		branch := state.clone()
		branch.assignment[pkg] = cand
		r.stats.Decisions++

		done, err := r.dfs(ctx, branch, depth+1)
		if err == nil {
			return done, nil
		}
		if !retryable(err) {
			return nil, err
		}
		r.watch.learn(sig, pkg, cand, err.Error())
		r.stats.Learned++
		lastErr = err
	}

	r.unsat[sig] = true
	if r.cache != nil {
		r.cache.Add(sig)
	}
	if lastErr == nil {
		lastErr = &NoSolutionError{Summary: fmt.Sprintf("no satisfying assignment for %s", pkg)}
	}
	return nil, lastErr
}

// retryable reports whether a branch failure leaves room to try siblings.
// Budget exhaustion and context errors abort the whole search.
func retryable(err error) bool {
	return Classify(err) == FailureUnsat
}

// propagate runs expansion, validation and forcing of single-candidate
// packages to a fixed point.
func (r *satRun) propagate(state *satState) error {
	for {
		if err := r.expandAssignments(state); err != nil {
			return err
		}
		if err := r.validateAssignments(state); err != nil {
			return err
		}

		forcedPkg, forcedVer := "", ""
		for _, pkg := range state.sortedRequirementKeys() {
			if _, assigned := state.assignment[pkg]; assigned {
				continue
			}
			if !state.hasMandatory(pkg) {
				continue
			}
			candidates, err := r.candidatesFor(state, pkg)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return &NoSolutionError{Summary: conflictMessage(state, pkg)}
			}
			if len(candidates) == 1 {
				forcedPkg, forcedVer = pkg, candidates[0]
				break
			}
		}
		if forcedPkg == "" {
			return nil
		}
		state.assignment[forcedPkg] = forcedVer
		r.stats.Propagations++
	}
}

// expandAssignments loads the requirement edges of every assigned version
// that has not been expanded yet.
func (r *satRun) expandAssignments(state *satState) error {
	for {
		nextPkg, nextVer := "", ""
		for _, pkg := range state.sortedAssignmentKeys() {
			ver := state.assignment[pkg]
			if !state.expanded[watchKey(pkg, ver)] {
				nextPkg, nextVer = pkg, ver
				break
			}
		}
		if nextPkg == "" {
			return nil
		}

		d, ok := r.domains[nextPkg]
		if !ok {
			return internalf("missing domain for assigned %s", nextPkg)
		}
		pv, ok := d.Get(nextVer)
		if !ok {
			return internalf("missing %s@%s", nextPkg, nextVer)
		}

		from := nextPkg + "@" + nextVer
		for _, dep := range sortedKeys(pv.Dependencies) {
			if err := state.addRequirement(dep, pv.Dependencies[dep], from+" (dep)", false); err != nil {
				return err
			}
		}
		for _, dep := range sortedKeys(pv.OptionalDependencies) {
			if err := state.addRequirement(dep, pv.OptionalDependencies[dep], from+" (optional dep)", true); err != nil {
				return err
			}
		}
		for _, peer := range sortedKeys(pv.PeerDependencies) {
			optional := pv.OptionalPeers[peer]
			if err := state.addRequirement(peer, pv.PeerDependencies[peer], from+" (peer)", optional); err != nil {
				return err
			}
		}
		state.expanded[watchKey(nextPkg, nextVer)] = true
	}
}

func (r *satRun) validateAssignments(state *satState) error {
	for _, pkg := range state.sortedAssignmentKeys() {
		if _, ok := r.domains[pkg]; !ok {
			return &NoSolutionError{Summary: fmt.Sprintf("%s assigned but domain is missing", pkg)}
		}
		if !r.versionSatisfiesAll(state, pkg, state.assignment[pkg]) {
			return &NoSolutionError{Summary: conflictMessage(state, pkg)}
		}
	}
	for _, pkg := range state.sortedRequirementKeys() {
		if state.hasMandatory(pkg) {
			if _, ok := r.domains[pkg]; !ok {
				return &NoSolutionError{Summary: fmt.Sprintf("%s has mandatory requirements but no package domain", pkg)}
			}
		}
	}
	return nil
}

// chooseBranchVariable returns the unassigned mandatory package with the
// fewest candidates, or false when the assignment is complete.
func (r *satRun) chooseBranchVariable(state *satState) (string, bool) {
	best, bestCount := "", -1
	for _, pkg := range state.sortedRequirementKeys() {
		if _, assigned := state.assignment[pkg]; assigned {
			continue
		}
		if !state.hasMandatory(pkg) {
			continue
		}
		candidates, err := r.candidatesFor(state, pkg)
		if err != nil {
			continue
		}
		if bestCount < 0 || len(candidates) < bestCount {
			best, bestCount = pkg, len(candidates)
		}
	}
	return best, best != ""
}

func (r *satRun) candidatesFor(state *satState, pkg string) ([]string, error) {
	d, ok := r.domains[pkg]
	if !ok {
		if state.hasMandatory(pkg) {
			return nil, &NoSolutionError{Summary: fmt.Sprintf("%s required but no versions available", pkg)}
		}
		return nil, nil
	}
	var out []string
	for _, pv := range d.Versions() {
		if r.versionSatisfiesAll(state, pkg, pv.Version) {
			out = append(out, pv.Version)
		}
	}
	return out, nil
}

// orderCandidates sorts newest first; the previous assignment, when still a
// candidate, moves to the front, followed by its same-major versions.
func (r *satRun) orderCandidates(pkg string, candidates []string) {
	packed := make(map[string]PackedVersion, len(candidates))
	for _, c := range candidates {
		if v, err := ParseVersion(c); err == nil {
			packed[c] = v
		}
	}
	prevVer, hasPrev := "", false
	var prevPacked PackedVersion
	if r.prev != nil {
		if p, ok := r.prev[pkg]; ok {
			prevVer, hasPrev = p, true
			prevPacked = packed[p]
			if prevPacked == 0 {
				if v, err := ParseVersion(p); err == nil {
					prevPacked = v
				}
			}
		}
	}
	rank := func(c string) int {
		if !hasPrev {
			return 2
		}
		if c == prevVer {
			return 0
		}
		if packed[c].Major() == prevPacked.Major() {
			return 1
		}
		return 2
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rank(candidates[i]), rank(candidates[j])
		if ri != rj {
			return ri < rj
		}
		pi, pj := packed[candidates[i]], packed[candidates[j]]
		if pi != pj {
			return pi > pj
		}
		return candidates[i] > candidates[j]
	})
}

func (r *satRun) versionSatisfiesAll(state *satState, pkg, version string) bool {
	reqs := state.requirements[pkg]
	if len(reqs) == 0 {
		return true
	}
	packed, err := ParseVersion(version)
	if err != nil {
		return false
	}
	for _, req := range reqs {
		if !req.set.Contains(packed) {
			return false
		}
	}
	return true
}

func conflictMessage(state *satState, pkg string) string {
	reqs := state.requirements[pkg]
	if len(reqs) == 0 {
		return fmt.Sprintf("UNSAT for %s: no requirements", pkg)
	}
	parts := make([]string, len(reqs))
	for i, r := range reqs {
		suffix := ""
		if r.optional {
			suffix = " (optional)"
		}
		parts[i] = fmt.Sprintf("%s -> %s%s", r.requester, r.spec, suffix)
	}
	return fmt.Sprintf("UNSAT for %s: %s", pkg, strings.Join(parts, ", "))
}
