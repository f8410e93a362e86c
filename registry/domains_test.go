package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hullpm/hull/solve"
)

// registryFor serves a fixed set of packuments; anything else is a 404.
func registryFor(t *testing.T, packs map[string]*Packument) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		p, ok := packs[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(packumentJSON(t, p))
	}))
}

func withDeps(p *Packument, version string, deps map[string]string) *Packument {
	meta := p.Versions[version]
	meta.Dependencies = deps
	p.Versions[version] = meta
	return p
}

func TestBuilderWalksRequirementEdges(t *testing.T) {
	packs := map[string]*Packument{
		"app-core": withDeps(simplePackument("app-core", "1.0.0"), "1.0.0",
			map[string]string{"transit": "^2.0.0"}),
		"transit": withDeps(simplePackument("transit", "2.1.0"), "2.1.0",
			map[string]string{"leaf": "^1.0.0"}),
		"leaf": simplePackument("leaf", "1.0.0", "1.2.0"),
	}
	srv := registryFor(t, packs)
	defer srv.Close()

	b := &Builder{Client: NewClient(ClientOptions{BaseURL: srv.URL})}
	input := solve.SolveInput{Requirements: map[string]string{"app-core": "^1.0.0"}}
	domains, err := b.Domains(context.Background(), input, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"app-core", "transit", "leaf"} {
		if domains[name] == nil {
			t.Fatalf("domain for %s missing", name)
		}
	}
	if domains["leaf"].Len() != 2 {
		t.Errorf("leaf has %d versions, want 2", domains["leaf"].Len())
	}
	pv, ok := domains["app-core"].Get("1.0.0")
	if !ok || pv.Dependencies["transit"] != "^2.0.0" {
		t.Errorf("app-core edges = %+v", pv)
	}
	if pv.Tarball == "" || pv.Integrity == "" {
		t.Error("dist fields not carried into the domain")
	}
}

func TestBuilderTruncatesVersions(t *testing.T) {
	packs := map[string]*Packument{
		"many": simplePackument("many", "1.0.0", "1.1.0", "1.2.0", "1.3.0"),
	}
	srv := registryFor(t, packs)
	defer srv.Close()

	b := &Builder{Client: NewClient(ClientOptions{BaseURL: srv.URL})}
	input := solve.SolveInput{Requirements: map[string]string{"many": "*"}}
	domains, err := b.Domains(context.Background(), input, 2)
	if err != nil {
		t.Fatal(err)
	}
	d := domains["many"]
	if d.Len() != 2 {
		t.Fatalf("truncated domain has %d versions, want 2", d.Len())
	}
	newest, _ := d.Newest()
	if newest.Version != "1.3.0" {
		t.Errorf("newest after truncation = %s", newest.Version)
	}
	if _, ok := d.Get("1.0.0"); ok {
		t.Error("truncation kept the oldest version")
	}
}

func TestBuilderRootFetchFailureIsFatal(t *testing.T) {
	srv := registryFor(t, map[string]*Packument{})
	defer srv.Close()

	b := &Builder{Client: NewClient(ClientOptions{BaseURL: srv.URL})}
	input := solve.SolveInput{Requirements: map[string]string{"gone": "^1.0.0"}}
	_, err := b.Domains(context.Background(), input, 0)
	md := &solve.PackageMetadataError{}
	if !errors.As(err, &md) {
		t.Fatalf("error is %T, want *solve.PackageMetadataError: %v", err, err)
	}
	if md.Package != "gone" {
		t.Errorf("failing package = %q", md.Package)
	}
}

func TestBuilderSkipsUnfetchableTransitives(t *testing.T) {
	packs := map[string]*Packument{
		"app": withDeps(simplePackument("app", "1.0.0"), "1.0.0",
			map[string]string{"broken": "^1.0.0"}),
	}
	srv := registryFor(t, packs)
	defer srv.Close()

	b := &Builder{Client: NewClient(ClientOptions{BaseURL: srv.URL})}
	input := solve.SolveInput{Requirements: map[string]string{"app": "*"}}
	domains, err := b.Domains(context.Background(), input, 0)
	if err != nil {
		t.Fatal(err)
	}
	if domains["app"] == nil {
		t.Fatal("root domain missing")
	}
	if domains["broken"] != nil {
		t.Error("unfetchable transitive produced a domain")
	}
}

func TestBuilderCarriesPeerMetadata(t *testing.T) {
	p := simplePackument("plugin", "1.0.0")
	meta := p.Versions["1.0.0"]
	meta.PeerDependencies = map[string]string{"host": "^2.0.0", "theme": "^1.0.0"}
	meta.PeerDependenciesMeta = map[string]PeerMeta{"theme": {Optional: true}}
	p.Versions["1.0.0"] = meta

	packs := map[string]*Packument{
		"plugin": p,
		"host":   simplePackument("host", "2.0.0"),
		"theme":  simplePackument("theme", "1.0.0"),
	}
	srv := registryFor(t, packs)
	defer srv.Close()

	b := &Builder{Client: NewClient(ClientOptions{BaseURL: srv.URL})}
	input := solve.SolveInput{Requirements: map[string]string{"plugin": "*"}}
	domains, err := b.Domains(context.Background(), input, 0)
	if err != nil {
		t.Fatal(err)
	}

	pv, ok := domains["plugin"].Get("1.0.0")
	if !ok {
		t.Fatal("plugin version missing")
	}
	if pv.PeerDependencies["host"] != "^2.0.0" {
		t.Errorf("peer edges = %v", pv.PeerDependencies)
	}
	if !pv.OptionalPeers["theme"] || pv.OptionalPeers["host"] {
		t.Errorf("optional peers = %v", pv.OptionalPeers)
	}
	// Peer targets are fetched too; the solver needs their domains.
	if domains["host"] == nil || domains["theme"] == nil {
		t.Error("peer targets not walked")
	}
}

func TestBuilderWorkerBounds(t *testing.T) {
	b := &Builder{}
	if n := b.workers(); n < 4 || n > 32 {
		t.Errorf("default workers = %d, want within [4, 32]", n)
	}
	bounded := &Builder{MinWorkers: 2, MaxWorkers: 2}
	if n := bounded.workers(); n != 2 {
		t.Errorf("bounded workers = %d, want 2", n)
	}
}
