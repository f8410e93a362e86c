package solve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// PackageVersion is one publishable version of a package together with the
// requirement edges it declares.
type PackageVersion struct {
	Version string
	Packed  PackedVersion

	Dependencies         map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	OptionalPeers        map[string]bool

	Tarball   string
	Integrity string
}

// PackageDomain holds the candidate versions of one package, ordered oldest
// to newest.
type PackageDomain struct {
	Name     string
	versions []PackageVersion
	byString map[string]int
	byPacked map[PackedVersion]int
}

// NewPackageDomain builds a domain, packing any version whose Packed field
// is unset and sorting ascending. Versions that fail to parse are dropped.
func NewPackageDomain(name string, versions ...PackageVersion) *PackageDomain {
	d := &PackageDomain{Name: name}
	for _, pv := range versions {
		if pv.Packed == 0 && pv.Version != "" && pv.Version != "0.0.0" {
			packed, err := ParseVersion(pv.Version)
			if err != nil {
				continue
			}
			pv.Packed = packed
		}
		d.versions = append(d.versions, pv)
	}
	sort.Slice(d.versions, func(i, j int) bool {
		if d.versions[i].Packed != d.versions[j].Packed {
			return d.versions[i].Packed < d.versions[j].Packed
		}
		return d.versions[i].Version < d.versions[j].Version
	})
	d.reindex()
	return d
}

func (d *PackageDomain) reindex() {
	d.byString = make(map[string]int, len(d.versions))
	d.byPacked = make(map[PackedVersion]int, len(d.versions))
	for i, pv := range d.versions {
		d.byString[pv.Version] = i
		d.byPacked[pv.Packed] = i
	}
}

// Len returns the number of candidate versions.
func (d *PackageDomain) Len() int { return len(d.versions) }

// Versions returns the candidates, oldest first.
func (d *PackageDomain) Versions() []PackageVersion { return d.versions }

// Get looks a version up by its exact string.
func (d *PackageDomain) Get(version string) (PackageVersion, bool) {
	i, ok := d.byString[version]
	if !ok {
		return PackageVersion{}, false
	}
	return d.versions[i], true
}

// GetPacked looks a version up by its packed form.
func (d *PackageDomain) GetPacked(v PackedVersion) (PackageVersion, bool) {
	i, ok := d.byPacked[v]
	if !ok {
		return PackageVersion{}, false
	}
	return d.versions[i], true
}

// Newest returns the highest candidate.
func (d *PackageDomain) Newest() (PackageVersion, bool) {
	if len(d.versions) == 0 {
		return PackageVersion{}, false
	}
	return d.versions[len(d.versions)-1], true
}

// Truncate returns a domain restricted to the newest n versions. n <= 0 or
// n >= Len returns the receiver unchanged.
func (d *PackageDomain) Truncate(n int) *PackageDomain {
	if n <= 0 || n >= len(d.versions) {
		return d
	}
	out := &PackageDomain{Name: d.Name, versions: d.versions[len(d.versions)-n:]}
	out.reindex()
	return out
}

// candidatesIn returns the packed versions inside allowed, ascending.
func (d *PackageDomain) candidatesIn(allowed VersionSet) []PackedVersion {
	var out []PackedVersion
	for _, pv := range d.versions {
		if allowed.Contains(pv.Packed) {
			out = append(out, pv.Packed)
		}
	}
	return out
}

// Domains maps package name to its candidate versions.
type Domains map[string]*PackageDomain

// Fingerprint hashes a canonical serialization of the domains. Anything
// keyed on it (the persistent UNSAT cache) is invalidated the moment any
// version or requirement edge changes.
func (ds Domains) Fingerprint() string {
	names := make([]string, 0, len(ds))
	for name := range ds {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%s\n", name)
		for _, pv := range ds[name].versions {
			fmt.Fprintf(h, " %s d=%s o=%s p=%s op=%s\n",
				pv.Version,
				canonicalEdges(pv.Dependencies),
				canonicalEdges(pv.OptionalDependencies),
				canonicalEdges(pv.PeerDependencies),
				canonicalFlags(pv.OptionalPeers))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalEdges(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "@" + m[k]
	}
	return strings.Join(parts, ",")
}

func canonicalFlags(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// SolveInput is the root of the resolution problem: the manifest's
// requirements by package name. Optional requirements constrain a package
// if it ends up selected but never force it in and never fail resolution
// when absent.
type SolveInput struct {
	Requirements map[string]string
	Optional     map[string]string
}

// Assignment is a solution: exact version string per selected package.
type Assignment map[string]string

// DomainSource produces domains for an input, limited to the newest
// maxVersions candidates per package (0 means unlimited). The orchestrator
// re-asks with a doubled cap when a truncated domain turns out
// unsatisfiable.
type DomainSource interface {
	Domains(ctx context.Context, input SolveInput, maxVersions int) (Domains, error)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
