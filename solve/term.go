package solve

// Term is a statement about one package: either "the selected version of
// Package must be in Versions" (positive) or "it must not be" (negative).
// A package with no selected version trivially meets any negative term.
type Term struct {
	Package  string
	Versions VersionSet
	Positive bool
}

// TermRequire states that pkg must resolve inside set.
func TermRequire(pkg string, set VersionSet) Term {
	return Term{Package: pkg, Versions: set, Positive: true}
}

// TermForbid states that pkg must not resolve inside set.
func TermForbid(pkg string, set VersionSet) Term {
	return Term{Package: pkg, Versions: set, Positive: false}
}

// TermExact states that pkg must resolve to exactly v.
func TermExact(pkg string, v PackedVersion) Term {
	return TermRequire(pkg, Singleton(v))
}

// Negate flips the polarity.
func (t Term) Negate() Term {
	return Term{Package: t.Package, Versions: t.Versions, Positive: !t.Positive}
}

// Satisfies reports whether a concrete selected version makes the term true.
func (t Term) Satisfies(v PackedVersion) bool {
	if t.Positive {
		return t.Versions.Contains(v)
	}
	return !t.Versions.Contains(v)
}

// Intersect combines two terms about the same package into the strongest
// single statement implied by both. Mixed polarity subtracts the negative
// side; two negatives merge by De Morgan into a negative over the union.
// ok is false when the terms name different packages.
func (t Term) Intersect(o Term) (Term, bool) {
	if t.Package != o.Package {
		return Term{}, false
	}
	switch {
	case t.Positive && o.Positive:
		return TermRequire(t.Package, t.Versions.Intersect(o.Versions)), true
	case t.Positive && !o.Positive:
		return TermRequire(t.Package, t.Versions.Difference(o.Versions)), true
	case !t.Positive && o.Positive:
		return TermRequire(t.Package, o.Versions.Difference(t.Versions)), true
	default:
		return TermForbid(t.Package, t.Versions.Union(o.Versions)), true
	}
}

func (t Term) String() string {
	if t.Positive {
		return t.Package + " " + t.Versions.String()
	}
	return "not " + t.Package + " " + t.Versions.String()
}
