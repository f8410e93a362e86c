package solve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"github.com/sirupsen/logrus"
)

// LegacyDFS is the queue-driven resolver of last resort: walk requirement
// edges breadth-first, keep every spec ever stated per package, and pin the
// highest version satisfying the combined specs. No backtracking; a package
// whose combined specs admit nothing, or whose pin would have to move, is a
// conflict. Constraint checks go through strict semver so the engine stays
// an independent cross-check on the interval algebra used elsewhere.
type LegacyDFS struct {
	Log     *logrus.Logger
	Timeout time.Duration
}

func (e *LegacyDFS) Name() string { return "legacy-dfs" }

type legacyRequirement struct {
	requester string
	spec      string
}

type legacyWorkItem struct {
	pkg       string
	spec      string
	requester string
}

func (e *LegacyDFS) Resolve(ctx context.Context, input SolveInput, domains Domains) (Assignment, SolveStats, error) {
	var stats SolveStats
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	log := e.Log
	if log == nil {
		log = discardLogger()
	}

	tree := Assignment{}
	requirements := map[string][]legacyRequirement{}
	seen := map[string]bool{}
	var conflicts []string

	var queue []legacyWorkItem
	for _, pkg := range sortedKeys(input.Requirements) {
		queue = append(queue, legacyWorkItem{pkg: pkg, spec: input.Requirements[pkg], requester: "root"})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if time.Now().After(deadline) {
			return nil, stats, &TimeoutError{Engine: e.Name(), Limit: "wall clock"}
		}

		item := queue[0]
		queue = queue[1:]
		stats.NodesVisited++

		addLegacyRequirement(requirements, item.pkg, item.requester, item.spec)

		version, err := highestSatisfying(domains, item.pkg, requirements[item.pkg])
		if err != nil {
			return nil, stats, err
		}
		if version == "" {
			return nil, stats, &NoSolutionError{
				Summary: fmt.Sprintf("dependency conflict for %s (no version satisfies all): %s",
					item.pkg, formatRequirements(requirements[item.pkg])),
			}
		}

		if existing, ok := tree[item.pkg]; ok {
			if existing == version {
				continue
			}
			specs := make([]string, len(requirements[item.pkg]))
			for i, r := range requirements[item.pkg] {
				specs[i] = r.spec
			}
			conflicts = append(conflicts, fmt.Sprintf("%s: existing %s vs %s (specs: %s)",
				item.pkg, existing, version, strings.Join(specs, ", ")))
			continue
		}
		if seen[watchKey(item.pkg, version)] {
			continue
		}
		seen[watchKey(item.pkg, version)] = true
		tree[item.pkg] = version
		stats.Decisions++
		if log.Level >= logrus.DebugLevel {
			log.WithFields(logrus.Fields{"pkg": item.pkg, "version": version}).Debug("pinned version")
		}

		pv, ok := domains[item.pkg].Get(version)
		if !ok {
			return nil, stats, internalf("pinned %s@%s but version is missing", item.pkg, version)
		}
		for _, dep := range sortedKeys(pv.Dependencies) {
			queue = append(queue, legacyWorkItem{pkg: dep, spec: pv.Dependencies[dep], requester: item.pkg})
		}
		// Peer edges are not walked; the validation pass judges them against
		// the finished tree.
	}

	if len(conflicts) > 0 {
		return nil, stats, &NoSolutionError{
			Summary: fmt.Sprintf("dependency conflict: %s. Consider updating dependencies or using a single version.",
				strings.Join(conflicts, "; ")),
		}
	}
	return tree, stats, nil
}

func addLegacyRequirement(reqs map[string][]legacyRequirement, pkg, requester, spec string) {
	for _, r := range reqs[pkg] {
		if r.requester == requester && r.spec == spec {
			return
		}
	}
	reqs[pkg] = append(reqs[pkg], legacyRequirement{requester: requester, spec: spec})
}

// highestSatisfying returns the newest domain version matching every spec,
// "" when none does. Missing domains count as no match.
func highestSatisfying(domains Domains, pkg string, reqs []legacyRequirement) (string, error) {
	d, ok := domains[pkg]
	if !ok {
		return "", nil
	}

	constraints := make([]*semver.Constraints, 0, len(reqs))
	for _, r := range reqs {
		spec := strings.TrimSpace(r.spec)
		if spec == "" || spec == "*" || spec == "latest" {
			continue
		}
		c, err := semver.NewConstraint(spec)
		if err != nil {
			return "", &PackageMetadataError{Package: pkg, Reason: "bad requirement from " + r.requester, Err: err}
		}
		constraints = append(constraints, c)
	}

	versions := d.Versions()
	order := make([]int, len(versions))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return versions[order[i]].Packed > versions[order[j]].Packed
	})

	for _, idx := range order {
		v, err := semver.NewVersion(versions[idx].Version)
		if err != nil {
			continue
		}
		ok := true
		for _, c := range constraints {
			if !c.Check(v) {
				ok = false
				break
			}
		}
		if ok {
			return versions[idx].Version, nil
		}
	}
	return "", nil
}

func formatRequirements(reqs []legacyRequirement) string {
	parts := make([]string, len(reqs))
	for i, r := range reqs {
		parts[i] = fmt.Sprintf("%s -> %s", r.requester, r.spec)
	}
	return strings.Join(parts, ", ")
}
