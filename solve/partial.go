package solve

// termRelation classifies how the current partial solution relates to a
// term: already forced true, already forced false, or still open.
type termRelation uint8

const (
	termInconclusive termRelation = iota
	termSatisfied
	termContradicted
)

type assignmentKind uint8

const (
	kindDecision assignmentKind = iota
	kindDerivation
)

// assignment is one entry in the chronological trail. Decisions carry a
// concrete version; derivations carry the statement that was derived and
// the incompatibility that forced it.
type assignment struct {
	pkg     string
	kind    assignmentKind
	version PackedVersion
	term    Term
	level   int
	cause   *Incompatibility
}

// PartialSolution is the chronological trail of decisions and derivations
// plus a per-package projection: the decided version, if any, and the
// intersection of all derived constraints.
type PartialSolution struct {
	trail    []assignment
	level    int
	decided  map[string]PackedVersion
	allowed  map[string]VersionSet
	required map[string]bool
}

func newPartialSolution() *PartialSolution {
	return &PartialSolution{
		decided:  map[string]PackedVersion{},
		allowed:  map[string]VersionSet{},
		required: map[string]bool{},
	}
}

func (ps *PartialSolution) decisionLevel() int { return ps.level }

// decide selects a concrete version for pkg at a new decision level.
func (ps *PartialSolution) decide(pkg string, v PackedVersion) {
	ps.level++
	ps.trail = append(ps.trail, assignment{pkg: pkg, kind: kindDecision, version: v, level: ps.level})
	ps.decided[pkg] = v
}

// derive records a statement forced by cause at the current decision level
// and folds it into the package's allowed set. A positive statement also
// marks the package as one that must eventually be decided.
func (ps *PartialSolution) derive(t Term, cause *Incompatibility) {
	ps.trail = append(ps.trail, assignment{pkg: t.Package, kind: kindDerivation, term: t, level: ps.level, cause: cause})
	ps.applyDerivation(t)
}

func (ps *PartialSolution) applyDerivation(t Term) {
	cur, ok := ps.allowed[t.Package]
	if !ok {
		cur = AnySet()
	}
	if t.Positive {
		ps.allowed[t.Package] = cur.Intersect(t.Versions)
		ps.required[t.Package] = true
	} else {
		ps.allowed[t.Package] = cur.Difference(t.Versions)
	}
}

// allowedFor returns the accumulated constraint for pkg, defaulting to the
// full set when nothing has been derived yet.
func (ps *PartialSolution) allowedFor(pkg string) VersionSet {
	if s, ok := ps.allowed[pkg]; ok {
		return s
	}
	return AnySet()
}

// relation classifies t against the projection. Packages with no
// assignments at all are always inconclusive. A package carrying only
// negative derivations may still end up unselected, so its constraints can
// contradict a positive term or satisfy a negative one, but never the
// reverse; only a required package pins the term down completely.
func (ps *PartialSolution) relation(t Term) termRelation {
	if v, ok := ps.decided[t.Package]; ok {
		if t.Satisfies(v) {
			return termSatisfied
		}
		return termContradicted
	}
	a, ok := ps.allowed[t.Package]
	if !ok {
		return termInconclusive
	}
	inBoth := a.Intersect(t.Versions)
	if t.Positive {
		switch {
		case inBoth.IsEmpty():
			return termContradicted
		case ps.required[t.Package] && a.Difference(t.Versions).IsEmpty():
			return termSatisfied
		}
		return termInconclusive
	}
	switch {
	case inBoth.IsEmpty():
		return termSatisfied
	case ps.required[t.Package] && a.Difference(t.Versions).IsEmpty():
		return termContradicted
	}
	return termInconclusive
}

// satisfierLevel returns the level of the most recent trail entry touching
// pkg, or -1 when none exists.
func (ps *PartialSolution) satisfierLevel(pkg string) int {
	for i := len(ps.trail) - 1; i >= 0; i-- {
		if ps.trail[i].pkg == pkg {
			return ps.trail[i].level
		}
	}
	return -1
}

// satisfierCause returns the incompatibility behind the most recent
// derivation touching any of pkgs, if there is one.
func (ps *PartialSolution) satisfierCause(pkgs []string) *Incompatibility {
	member := map[string]bool{}
	for _, p := range pkgs {
		member[p] = true
	}
	for i := len(ps.trail) - 1; i >= 0; i-- {
		a := ps.trail[i]
		if member[a.pkg] && a.kind == kindDerivation && a.cause != nil {
			return a.cause
		}
	}
	return nil
}

// backtrack drops every trail entry above level and rebuilds the
// projection from what remains.
func (ps *PartialSolution) backtrack(level int) {
	kept := ps.trail[:0]
	for _, a := range ps.trail {
		if a.level <= level {
			kept = append(kept, a)
		}
	}
	ps.trail = kept
	ps.level = level
	ps.decided = map[string]PackedVersion{}
	ps.allowed = map[string]VersionSet{}
	ps.required = map[string]bool{}
	for _, a := range ps.trail {
		if a.kind == kindDecision {
			ps.decided[a.pkg] = a.version
		} else {
			ps.applyDerivation(a.term)
		}
	}
}

// decisions returns a copy of the decided versions.
func (ps *PartialSolution) decisions() map[string]PackedVersion {
	out := make(map[string]PackedVersion, len(ps.decided))
	for k, v := range ps.decided {
		out[k] = v
	}
	return out
}
