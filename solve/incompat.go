package solve

import (
	"fmt"
	"strings"
)

// CauseKind says where an incompatibility came from.
type CauseKind uint8

const (
	// CauseRoot marks constraints stated by the root manifest.
	CauseRoot CauseKind = iota
	// CauseDependency marks a package version's declared requirement.
	CauseDependency
	// CauseCustom marks solver-internal facts, e.g. "no versions available".
	CauseCustom
	// CauseDerived marks incompatibilities learned during conflict
	// resolution from two earlier ones.
	CauseDerived
)

// Cause records the provenance of an incompatibility. Left/Right are set
// only for CauseDerived and link the learned fact back to its evidence.
type Cause struct {
	Kind      CauseKind
	Package   string // CauseDependency: the depending package
	Dependent string // CauseDependency: the package depended upon
	Note      string // CauseCustom
	Left      *Incompatibility
	Right     *Incompatibility
}

// Incompatibility is a set of terms that cannot all hold at once. Instances
// are immutable after construction and shared freely.
type Incompatibility struct {
	Terms []Term
	Cause Cause
}

// rootIncompat encodes "pkg outside set is impossible", i.e. the root
// manifest requires pkg within set.
func rootIncompat(pkg string, set VersionSet) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{TermForbid(pkg, set)},
		Cause: Cause{Kind: CauseRoot},
	}
}

// dependencyIncompat encodes "pkg at exactly v together with dep outside
// set is impossible", i.e. pkg@v requires dep within set.
func dependencyIncompat(pkg string, v PackedVersion, dep string, set VersionSet) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{TermExact(pkg, v), TermForbid(dep, set)},
		Cause: Cause{Kind: CauseDependency, Package: pkg, Dependent: dep},
	}
}

// optionalDependencyIncompat encodes "pkg at exactly v together with dep
// selected outside set is impossible": the optional requirement constrains
// dep once something selects it but never forces it in.
func optionalDependencyIncompat(pkg string, v PackedVersion, dep string, set VersionSet) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{TermExact(pkg, v), TermRequire(dep, set.Complement())},
		Cause: Cause{Kind: CauseDependency, Package: pkg, Dependent: dep},
	}
}

// optionalRootIncompat encodes "pkg selected outside set is impossible",
// the root-manifest form of an optional requirement.
func optionalRootIncompat(pkg string, set VersionSet) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{TermRequire(pkg, set.Complement())},
		Cause: Cause{Kind: CauseRoot},
	}
}

func noVersionsIncompat(pkg string, allowed VersionSet) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{TermRequire(pkg, allowed)},
		Cause: Cause{Kind: CauseCustom, Note: fmt.Sprintf("no available version of %s", pkg)},
	}
}

func derivedIncompat(conflict, other *Incompatibility, terms []Term) *Incompatibility {
	return &Incompatibility{
		Terms: terms,
		Cause: Cause{Kind: CauseDerived, Left: conflict, Right: other},
	}
}

func (inc *Incompatibility) String() string {
	parts := make([]string, len(inc.Terms))
	for i, t := range inc.Terms {
		parts[i] = t.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// packages returns the distinct package names the terms mention, in term
// order.
func (inc *Incompatibility) packages() []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range inc.Terms {
		if !seen[t.Package] {
			seen[t.Package] = true
			out = append(out, t.Package)
		}
	}
	return out
}

// DerivationTree explains an unsolvable conflict. Walking the cause links
// from the final conflict reaches the root and dependency facts that
// produced it.
type DerivationTree struct {
	Conflict *Incompatibility
}

// Format renders the explanation: the evidence grouped per package as
// requires/excludes lines, followed by a remediation hint when one package
// carries more than one constraint.
func (t *DerivationTree) Format() string {
	leaves := collectEvidence(t.Conflict)

	var order []string
	grouped := map[string][]string{}
	counts := map[string]int{}
	add := func(pkg, line string) {
		if _, ok := grouped[pkg]; !ok {
			order = append(order, pkg)
		}
		for _, prev := range grouped[pkg] {
			if prev == line {
				return
			}
		}
		grouped[pkg] = append(grouped[pkg], line)
		counts[pkg]++
	}
	for _, inc := range leaves {
		switch inc.Cause.Kind {
		case CauseRoot:
			for _, term := range inc.Terms {
				if term.Positive {
					// Optional requirements carry the complement of what they
					// accept; report the accepted set.
					add(term.Package, fmt.Sprintf("requires %s when selected (root)", term.Versions.Complement().String()))
				} else {
					add(term.Package, fmt.Sprintf("requires %s (root)", term.Versions.String()))
				}
			}
		case CauseDependency:
			var from string
			for _, term := range inc.Terms {
				if term.Package == inc.Cause.Package && term.Positive {
					from = fmt.Sprintf("%s %s", term.Package, term.Versions.String())
				}
			}
			for _, term := range inc.Terms {
				if term.Package != inc.Cause.Dependent {
					continue
				}
				if term.Positive {
					add(term.Package, fmt.Sprintf("requires %s when selected (via %s)", term.Versions.Complement().String(), from))
				} else {
					add(term.Package, fmt.Sprintf("requires %s (via %s)", term.Versions.String(), from))
				}
			}
		case CauseCustom:
			for _, term := range inc.Terms {
				add(term.Package, inc.Cause.Note+", needs "+term.Versions.String())
			}
		default:
			for _, term := range inc.Terms {
				verb := "requires"
				if term.Positive {
					verb = "excludes"
				}
				add(term.Package, fmt.Sprintf("%s %s", verb, term.Versions.String()))
			}
		}
	}

	var b strings.Builder
	b.WriteString("no version assignment satisfies all requirements\n\n")
	for _, pkg := range order {
		fmt.Fprintf(&b, "  %s:\n", pkg)
		for _, line := range grouped[pkg] {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	for _, pkg := range order {
		if counts[pkg] > 1 {
			fmt.Fprintf(&b, "\nTry updating %s to a version that satisfies all requirements, or add an override to force a specific version.", pkg)
			break
		}
	}
	return b.String()
}

// collectEvidence walks the cause links and returns the non-derived
// incompatibilities, deduplicated, in discovery order.
func collectEvidence(inc *Incompatibility) []*Incompatibility {
	var out []*Incompatibility
	seen := map[*Incompatibility]bool{}
	var walk func(*Incompatibility)
	walk = func(cur *Incompatibility) {
		if cur == nil || seen[cur] {
			return
		}
		seen[cur] = true
		if cur.Cause.Kind == CauseDerived {
			walk(cur.Cause.Left)
			walk(cur.Cause.Right)
			return
		}
		out = append(out, cur)
	}
	walk(inc)
	return out
}
