package solve

// MinimalSelection is the O(n) fast path. It applies only when no root or
// reachable dependency spec carries an explicit "<" or "<=" comparator:
// with lower bounds only, intersecting the constraints and taking the
// newest available candidate per package is exactly what the full engines
// would decide, so a verified selection can skip the search entirely.
//
// The returned bool reports whether the fast path applies AND the selection
// verified: every root requirement satisfied, every dependency and
// mandatory peer edge of every selected version pointing at a selected,
// in-range version. Any miss discards the selection; the caller falls
// through to a full engine.
func MinimalSelection(input SolveInput, domains Domains) (Assignment, bool) {
	selection := Assignment{}

	for _, pkg := range sortedKeys(input.Requirements) {
		spec := input.Requirements[pkg]
		if hasUpperBound(spec) {
			return nil, false
		}
		set, err := ParseSpec(spec)
		if err != nil {
			return nil, false
		}
		d, ok := domains[pkg]
		if !ok {
			return nil, false
		}
		best, ok := set.Highest(packedVersions(d))
		if !ok {
			return nil, false
		}
		pv, ok := d.GetPacked(best)
		if !ok {
			return nil, false
		}
		selection[pkg] = pv.Version
	}

	// Optional root requirements bind only when their target was selected
	// for another reason, the same rule the engines apply.
	for _, pkg := range sortedKeys(input.Optional) {
		if !edgeHolds(pkg, input.Optional[pkg], selection, true) {
			return nil, false
		}
	}

	if !verifySelection(selection, domains) {
		return nil, false
	}
	return selection, true
}

func packedVersions(d *PackageDomain) []PackedVersion {
	out := make([]PackedVersion, 0, d.Len())
	for _, pv := range d.Versions() {
		out = append(out, pv.Packed)
	}
	return out
}

// verifySelection checks every requirement edge of the selected versions
// against the selection itself. Optional dependencies and optional peers
// are only checked when the target happens to be selected.
func verifySelection(selection Assignment, domains Domains) bool {
	for _, pkg := range sortedKeys(selection) {
		d, ok := domains[pkg]
		if !ok {
			return false
		}
		pv, ok := d.Get(selection[pkg])
		if !ok {
			return false
		}
		if !edgesHold(pv.Dependencies, selection, false) {
			return false
		}
		if !edgesHold(pv.OptionalDependencies, selection, true) {
			return false
		}
		for _, peer := range sortedKeys(pv.PeerDependencies) {
			optional := pv.OptionalPeers[peer]
			if !edgeHolds(peer, pv.PeerDependencies[peer], selection, optional) {
				return false
			}
		}
	}
	return true
}

func edgesHold(edges map[string]string, selection Assignment, optional bool) bool {
	for _, dep := range sortedKeys(edges) {
		if !edgeHolds(dep, edges[dep], selection, optional) {
			return false
		}
	}
	return true
}

func edgeHolds(dep, spec string, selection Assignment, optional bool) bool {
	if hasUpperBound(spec) {
		return false
	}
	selected, ok := selection[dep]
	if !ok {
		return optional
	}
	set, err := ParseSpec(spec)
	if err != nil {
		return false
	}
	packed, err := ParseVersion(selected)
	if err != nil {
		return false
	}
	return set.Contains(packed)
}
