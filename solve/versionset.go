package solve

import (
	"sort"
	"strings"
)

// VersionRange is one continuous interval of packed versions.
type VersionRange struct {
	Min          PackedVersion
	Max          PackedVersion
	MinInclusive bool
	MaxInclusive bool
}

func (r VersionRange) nonEmpty() bool {
	if r.Min < r.Max {
		return true
	}
	return r.Min == r.Max && r.MinInclusive && r.MaxInclusive
}

// Contains reports whether v lies inside the range.
func (r VersionRange) Contains(v PackedVersion) bool {
	minOK := v > r.Min || (v == r.Min && r.MinInclusive)
	maxOK := v < r.Max || (v == r.Max && r.MaxInclusive)
	return minOK && maxOK
}

// intersect returns the overlap of two ranges, if any.
func (r VersionRange) intersect(o VersionRange) (VersionRange, bool) {
	out := r
	switch {
	case o.Min > r.Min:
		out.Min, out.MinInclusive = o.Min, o.MinInclusive
	case o.Min == r.Min:
		out.MinInclusive = r.MinInclusive && o.MinInclusive
	}
	switch {
	case o.Max < r.Max:
		out.Max, out.MaxInclusive = o.Max, o.MaxInclusive
	case o.Max == r.Max:
		out.MaxInclusive = r.MaxInclusive && o.MaxInclusive
	}
	if !out.nonEmpty() {
		return VersionRange{}, false
	}
	return out, true
}

func (r VersionRange) overlaps(o VersionRange) bool {
	_, ok := r.intersect(o)
	return ok
}

// touches reports whether the two ranges share a boundary point and can be
// merged into one interval.
func (r VersionRange) touches(o VersionRange) bool {
	return (r.Max == o.Min && (r.MaxInclusive || o.MinInclusive)) ||
		(r.Min == o.Max && (r.MinInclusive || o.MaxInclusive))
}

// span returns the smallest single range covering both inputs. Only valid
// when they overlap or touch.
func (r VersionRange) span(o VersionRange) VersionRange {
	out := r
	switch {
	case o.Min < r.Min:
		out.Min, out.MinInclusive = o.Min, o.MinInclusive
	case o.Min == r.Min:
		out.MinInclusive = r.MinInclusive || o.MinInclusive
	}
	switch {
	case o.Max > r.Max:
		out.Max, out.MaxInclusive = o.Max, o.MaxInclusive
	case o.Max == r.Max:
		out.MaxInclusive = r.MaxInclusive || o.MaxInclusive
	}
	return out
}

// subtract removes o from r, yielding zero, one or two leftover pieces.
func (r VersionRange) subtract(o VersionRange) []VersionRange {
	x, ok := r.intersect(o)
	if !ok {
		return []VersionRange{r}
	}
	var out []VersionRange
	left := VersionRange{Min: r.Min, MinInclusive: r.MinInclusive, Max: x.Min, MaxInclusive: !x.MinInclusive}
	if left.nonEmpty() && (r.Min < x.Min || (r.Min == x.Min && r.MinInclusive && !x.MinInclusive)) {
		out = append(out, left)
	}
	right := VersionRange{Min: x.Max, MinInclusive: !x.MaxInclusive, Max: r.Max, MaxInclusive: r.MaxInclusive}
	if right.nonEmpty() && (x.Max < r.Max || (x.Max == r.Max && r.MaxInclusive && !x.MaxInclusive)) {
		out = append(out, right)
	}
	return out
}

func (r VersionRange) String() string {
	if r.Min == r.Max && r.MinInclusive && r.MaxInclusive {
		return r.Min.String()
	}
	var lo, hi string
	switch {
	case r.Min == 0 && r.MinInclusive:
		lo = ""
	case r.MinInclusive:
		lo = ">=" + r.Min.String()
	default:
		lo = ">" + r.Min.String()
	}
	switch {
	case r.Max == MaxVersion:
		hi = ""
	case r.MaxInclusive:
		hi = "<=" + r.Max.String()
	default:
		hi = "<" + r.Max.String()
	}
	switch {
	case lo == "" && hi == "":
		return "*"
	case lo == "":
		return hi
	case hi == "":
		return lo
	}
	return lo + " " + hi
}

// VersionSet is an immutable set of versions kept as ordered disjoint
// ranges. All operations return fresh sets.
type VersionSet struct {
	ranges []VersionRange
}

// EmptySet contains no versions.
func EmptySet() VersionSet { return VersionSet{} }

// AnySet contains every version.
func AnySet() VersionSet {
	return VersionSet{ranges: []VersionRange{{Min: 0, Max: MaxVersion, MinInclusive: true, MaxInclusive: true}}}
}

// Singleton contains exactly one version.
func Singleton(v PackedVersion) VersionSet {
	return VersionSet{ranges: []VersionRange{{Min: v, Max: v, MinInclusive: true, MaxInclusive: true}}}
}

// SetFromRange wraps a single range. Empty ranges yield the empty set.
func SetFromRange(r VersionRange) VersionSet {
	if !r.nonEmpty() {
		return EmptySet()
	}
	return VersionSet{ranges: []VersionRange{r}}
}

// IsEmpty reports whether the set contains no versions.
func (s VersionSet) IsEmpty() bool { return len(s.ranges) == 0 }

// IsAny reports whether the set contains every version.
func (s VersionSet) IsAny() bool {
	return len(s.ranges) == 1 && s.ranges[0].Min == 0 && s.ranges[0].MinInclusive &&
		s.ranges[0].Max == MaxVersion && s.ranges[0].MaxInclusive
}

// Contains reports whether v is a member.
func (s VersionSet) Contains(v PackedVersion) bool {
	for _, r := range s.ranges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

// Ranges returns a copy of the underlying intervals.
func (s VersionSet) Ranges() []VersionRange {
	out := make([]VersionRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Intersect returns the versions present in both sets.
func (s VersionSet) Intersect(o VersionSet) VersionSet {
	var out []VersionRange
	for _, a := range s.ranges {
		for _, b := range o.ranges {
			if x, ok := a.intersect(b); ok {
				out = append(out, x)
			}
		}
	}
	return normalize(out)
}

// Union returns the versions present in either set, re-merging adjacent
// intervals.
func (s VersionSet) Union(o VersionSet) VersionSet {
	all := make([]VersionRange, 0, len(s.ranges)+len(o.ranges))
	all = append(all, s.ranges...)
	all = append(all, o.ranges...)
	return normalize(all)
}

// Difference returns the versions in s that are not in o.
func (s VersionSet) Difference(o VersionSet) VersionSet {
	cur := make([]VersionRange, len(s.ranges))
	copy(cur, s.ranges)
	for _, b := range o.ranges {
		var next []VersionRange
		for _, a := range cur {
			next = append(next, a.subtract(b)...)
		}
		cur = next
	}
	return normalize(cur)
}

// Complement returns every version not in s.
func (s VersionSet) Complement() VersionSet {
	return AnySet().Difference(s)
}

// Highest returns the greatest member of available that is in the set.
func (s VersionSet) Highest(available []PackedVersion) (PackedVersion, bool) {
	var best PackedVersion
	found := false
	for _, v := range available {
		if s.Contains(v) && (!found || v > best) {
			best, found = v, true
		}
	}
	return best, found
}

func (s VersionSet) String() string {
	if len(s.ranges) == 0 {
		return "(none)"
	}
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, " || ")
}

// normalize sorts ranges and merges any that overlap or touch.
func normalize(ranges []VersionRange) VersionSet {
	kept := ranges[:0]
	for _, r := range ranges {
		if r.nonEmpty() {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return VersionSet{}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Min != kept[j].Min {
			return kept[i].Min < kept[j].Min
		}
		return kept[i].MinInclusive && !kept[j].MinInclusive
	})
	merged := make([]VersionRange, 0, len(kept))
	merged = append(merged, kept[0])
	for _, r := range kept[1:] {
		last := &merged[len(merged)-1]
		if last.overlaps(r) || last.touches(r) {
			*last = last.span(r)
		} else {
			merged = append(merged, r)
		}
	}
	return VersionSet{ranges: merged}
}

// ParseSpec translates an npm range expression into a VersionSet. The
// grammar covers exact versions, comparators (>, >=, <, <=, =), tilde and
// caret shorthands, x-ranges and partial versions, hyphen ranges, space or
// comma separated AND groups, and "||" unions. Empty, "*" and "latest"
// specs allow any version.
func ParseSpec(spec string) (VersionSet, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "*" || spec == "latest" {
		return AnySet(), nil
	}

	out := EmptySet()
	for _, alt := range strings.Split(spec, "||") {
		set, err := parseGroup(alt, spec)
		if err != nil {
			return EmptySet(), err
		}
		out = out.Union(set)
	}
	return out, nil
}

func parseGroup(group, whole string) (VersionSet, error) {
	group = strings.ReplaceAll(group, ",", " ")
	fields := strings.Fields(group)
	if len(fields) == 0 {
		return AnySet(), nil
	}

	// Hyphen range: "1.2.3 - 2.3.4".
	for i, f := range fields {
		if f != "-" {
			continue
		}
		if i == 0 || i != len(fields)-2 {
			return EmptySet(), &ParseError{Input: whole, Reason: "misplaced hyphen range"}
		}
		lo, err := comparatorRange(">=", fields[i-1], whole)
		if err != nil {
			return EmptySet(), err
		}
		hi, err := hyphenUpper(fields[i+1], whole)
		if err != nil {
			return EmptySet(), err
		}
		set := SetFromRange(lo).Intersect(SetFromRange(hi))
		if len(fields) == 3 {
			return set, nil
		}
		rest, err := parseGroup(strings.Join(fields[:i-1], " "), whole)
		if err != nil {
			return EmptySet(), err
		}
		return set.Intersect(rest), nil
	}

	out := AnySet()
	for _, f := range fields {
		op, rest := splitOp(f)
		r, err := comparatorRange(op, rest, whole)
		if err != nil {
			return EmptySet(), err
		}
		out = out.Intersect(SetFromRange(r))
	}
	return out, nil
}

func splitOp(tok string) (string, string) {
	for _, op := range []string{">=", "<=", ">", "<", "^", "~", "="} {
		if strings.HasPrefix(tok, op) {
			return op, strings.TrimSpace(tok[len(op):])
		}
	}
	return "", tok
}

// comparatorRange translates one operator+version token into an interval.
// npm shorthand rules: tilde fixes the minor (major when only a major is
// given), caret fixes the leftmost nonzero component, x-ranges and partial
// versions widen the missing components.
func comparatorRange(op, ver string, whole string) (VersionRange, error) {
	parts, n, err := scanVersionParts(ver)
	if err != nil {
		return VersionRange{}, &ParseError{Input: whole, Reason: err.Error()}
	}
	// Trailing wildcards shorten the version: "1.x" behaves like "1".
	for n > 0 && parts[n-1] == wildcardPart {
		n--
	}
	if n > 0 && partsWildcard(parts[:n]) {
		return VersionRange{}, &ParseError{Input: whole, Reason: "wildcard before concrete component"}
	}

	maj, min, pat := partOr(parts, 0), partOr(parts, 1), partOr(parts, 2)
	lo := PackVersion(maj, min, pat)

	switch op {
	case ">":
		return VersionRange{Min: lo, Max: MaxVersion, MinInclusive: false, MaxInclusive: true}, nil
	case ">=":
		return VersionRange{Min: lo, Max: MaxVersion, MinInclusive: true, MaxInclusive: true}, nil
	case "<":
		return VersionRange{Min: 0, Max: lo, MinInclusive: true, MaxInclusive: false}, nil
	case "<=":
		return VersionRange{Min: 0, Max: lo, MinInclusive: true, MaxInclusive: true}, nil
	case "~":
		if n <= 1 {
			return VersionRange{Min: lo, Max: PackVersion(maj+1, 0, 0), MinInclusive: true}, nil
		}
		return VersionRange{Min: lo, Max: PackVersion(maj, min+1, 0), MinInclusive: true}, nil
	case "^":
		// The cap sits above the leftmost nonzero component that was
		// actually written: "^0" admits all of 0.x.x, "^0.0" all of 0.0.x.
		var hi PackedVersion
		switch {
		case maj > 0 || n < 2:
			hi = PackVersion(maj+1, 0, 0)
		case min > 0 || n < 3:
			hi = PackVersion(0, min+1, 0)
		default:
			hi = PackVersion(0, 0, pat+1)
		}
		return VersionRange{Min: lo, Max: hi, MinInclusive: true}, nil
	case "", "=":
		switch n {
		case 0:
			return VersionRange{Min: 0, Max: MaxVersion, MinInclusive: true, MaxInclusive: true}, nil
		case 1:
			return VersionRange{Min: lo, Max: PackVersion(maj+1, 0, 0), MinInclusive: true}, nil
		case 2:
			return VersionRange{Min: lo, Max: PackVersion(maj, min+1, 0), MinInclusive: true}, nil
		default:
			return VersionRange{Min: lo, Max: lo, MinInclusive: true, MaxInclusive: true}, nil
		}
	}
	return VersionRange{}, &ParseError{Input: whole, Reason: "unknown operator " + op}
}

// hyphenUpper builds the upper half of a hyphen range. A partial right side
// is exclusive of the next component: "1.2.3 - 2.3" means <2.4.0.
func hyphenUpper(ver string, whole string) (VersionRange, error) {
	parts, n, err := scanVersionParts(ver)
	if err != nil {
		return VersionRange{}, &ParseError{Input: whole, Reason: err.Error()}
	}
	for n > 0 && parts[n-1] == wildcardPart {
		n--
	}
	maj, min, pat := partOr(parts, 0), partOr(parts, 1), partOr(parts, 2)
	switch n {
	case 1:
		return VersionRange{Min: 0, Max: PackVersion(maj+1, 0, 0), MinInclusive: true}, nil
	case 2:
		return VersionRange{Min: 0, Max: PackVersion(maj, min+1, 0), MinInclusive: true}, nil
	default:
		return VersionRange{Min: 0, Max: PackVersion(maj, min, pat), MinInclusive: true, MaxInclusive: true}, nil
	}
}

// hasUpperBound reports whether the spec carries any explicit "<" or "<="
// comparator. Shorthand-implied caps (caret, tilde, x-ranges) do not count;
// the fast selection path only refuses explicit maximums.
func hasUpperBound(spec string) bool {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "*" || spec == "latest" {
		return false
	}
	for _, alt := range strings.Split(spec, "||") {
		alt = strings.ReplaceAll(alt, ",", " ")
		for _, f := range strings.Fields(alt) {
			op, _ := splitOp(f)
			if op == "<" || op == "<=" {
				return true
			}
		}
	}
	return false
}
