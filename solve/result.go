package solve

// SolveStats counts the work one engine did. The orchestrator logs them per
// attempt.
type SolveStats struct {
	Decisions         int
	Propagations      int
	Conflicts         int
	Backtracks        int
	Learned           int
	Restarts          int
	NodesVisited      int
	UnsatCacheHits    int
	LearnedForbidHits int
}

// ResolvedPackage is one lockfile-ready entry: the pinned version plus the
// resolved versions of its requirement edges within the same solution.
type ResolvedPackage struct {
	Name             string
	Version          string
	Resolved         string
	Integrity        string
	Dependencies     map[string]string
	PeerDependencies map[string]string
}

// ResolvedPackages projects an assignment into lockfile entries. Dependency
// maps point at the versions selected in the same assignment; optional
// targets that were not selected are simply absent.
func ResolvedPackages(a Assignment, domains Domains) (map[string]ResolvedPackage, error) {
	out := make(map[string]ResolvedPackage, len(a))
	for _, pkg := range sortedKeys(a) {
		d, ok := domains[pkg]
		if !ok {
			return nil, internalf("resolved %s but domain is missing", pkg)
		}
		pv, ok := d.Get(a[pkg])
		if !ok {
			return nil, internalf("resolved %s@%s but version is missing", pkg, a[pkg])
		}

		deps := map[string]string{}
		for dep := range pv.Dependencies {
			if v, ok := a[dep]; ok {
				deps[dep] = v
			}
		}
		for dep := range pv.OptionalDependencies {
			if v, ok := a[dep]; ok {
				deps[dep] = v
			}
		}
		peers := map[string]string{}
		for peer := range pv.PeerDependencies {
			if v, ok := a[peer]; ok {
				peers[peer] = v
			}
		}

		out[pkg] = ResolvedPackage{
			Name:             pkg,
			Version:          pv.Version,
			Resolved:         pv.Tarball,
			Integrity:        pv.Integrity,
			Dependencies:     deps,
			PeerDependencies: peers,
		}
	}
	return out, nil
}
