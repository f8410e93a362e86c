package solve

import (
	"testing"
	"time"
)

// Fixture helpers shared by the engine tests. Domains are declared as
// literal version lists; edges are plain spec maps.

func mkVersion(v string) PackageVersion {
	return PackageVersion{Version: v}
}

func mkDeps(v string, deps map[string]string) PackageVersion {
	return PackageVersion{Version: v, Dependencies: deps}
}

func mkPeers(v string, peers map[string]string, optional ...string) PackageVersion {
	pv := PackageVersion{Version: v, PeerDependencies: peers}
	if len(optional) > 0 {
		pv.OptionalPeers = map[string]bool{}
		for _, p := range optional {
			pv.OptionalPeers[p] = true
		}
	}
	return pv
}

func mkDomains(pkgs map[string][]PackageVersion) Domains {
	out := Domains{}
	for name, versions := range pkgs {
		out[name] = NewPackageDomain(name, versions...)
	}
	return out
}

func mustVersion(t *testing.T, s string) PackedVersion {
	t.Helper()
	v, err := ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func mustSpec(t *testing.T, s string) VersionSet {
	t.Helper()
	set, err := ParseSpec(s)
	if err != nil {
		t.Fatalf("ParseSpec(%q): %v", s, err)
	}
	return set
}

// testEngines returns every engine with test-sized budgets.
func testEngines() []Engine {
	return []Engine{
		&PubGrub{Timeout: 5 * time.Second},
		&PubGrub{Timeout: 5 * time.Second, Incremental: true},
		&SAT{Timeout: 5 * time.Second},
		&LegacyDFS{Timeout: 5 * time.Second},
	}
}

func checkAssignment(t *testing.T, got Assignment, want map[string]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("assignment has %d packages, want %d: %v", len(got), len(want), got)
	}
	for pkg, ver := range want {
		if got[pkg] != ver {
			t.Errorf("%s resolved to %q, want %q", pkg, got[pkg], ver)
		}
	}
}
