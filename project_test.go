package hull

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRegistry serves minimal packuments: name -> version -> dependencies.
func fakeRegistry(t *testing.T, packages map[string]map[string]map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		versions, ok := packages[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		doc := map[string]interface{}{"name": name}
		vs := map[string]interface{}{}
		for ver, deps := range versions {
			vs[ver] = map[string]interface{}{
				"name":         name,
				"version":      ver,
				"dependencies": deps,
				"dist": map[string]string{
					"tarball":   fmt.Sprintf("https://example.test/%s-%s.tgz", name, ver),
					"integrity": "sha512-" + name + ver,
				},
			}
		}
		doc["versions"] = vs
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			t.Error(err)
		}
	}))
}

func writeProjectFiles(t *testing.T, dir, registryURL string) {
	t.Helper()
	manifest := `{
  "name": "demo",
  "version": "1.0.0",
  "dependencies": {"left-pad": "^1.0.0"}
}`
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	config := fmt.Sprintf("registry = %q\n", registryURL)
	if err := os.WriteFile(filepath.Join(dir, ConfigName), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestProjectResolveAndLock(t *testing.T) {
	srv := fakeRegistry(t, map[string]map[string]map[string]string{
		"left-pad": {
			"1.0.0": {"pad-core": "^0.9.0"},
			"1.3.0": {"pad-core": "^0.9.0"},
		},
		"pad-core": {
			"0.9.1": {},
		},
	})
	defer srv.Close()

	dir := t.TempDir()
	writeProjectFiles(t, dir, srv.URL)

	p, err := LoadProject(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Lock != nil {
		t.Fatal("fresh project reports a lockfile")
	}

	res, err := p.Resolve(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Assignment["left-pad"] != "1.3.0" || res.Assignment["pad-core"] != "0.9.1" {
		t.Fatalf("assignment = %v", res.Assignment)
	}
	if res.Resolved["left-pad"].Integrity == "" {
		t.Error("integrity missing from resolution")
	}

	if err := p.WriteLock(res); err != nil {
		t.Fatal(err)
	}
	lf, err := ReadLockfile(filepath.Join(dir, LockName))
	if err != nil {
		t.Fatal(err)
	}
	if lf == nil {
		t.Fatal("lockfile not written")
	}
	if lf.Packages["node_modules/left-pad"].Version != "1.3.0" {
		t.Errorf("locked left-pad = %+v", lf.Packages["node_modules/left-pad"])
	}

	// Reloading picks the lockfile up and seeds the previous assignment.
	again, err := LoadProject(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.Lock == nil {
		t.Fatal("lockfile not loaded on reload")
	}
	if again.Lock.Assignment()["left-pad"] != "1.3.0" {
		t.Errorf("previous assignment = %v", again.Lock.Assignment())
	}
}

func TestProjectResolveSurfacesConflicts(t *testing.T) {
	srv := fakeRegistry(t, map[string]map[string]map[string]string{
		"a": {"1.0.0": {"x": "^1.0.0"}},
		"b": {"1.0.0": {"x": "^2.0.0"}},
		"x": {"1.0.0": {}, "2.0.0": {}},
	})
	defer srv.Close()

	dir := t.TempDir()
	manifest := `{
  "name": "doomed",
  "version": "1.0.0",
  "dependencies": {"a": "^1.0.0", "b": "^1.0.0"}
}`
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	config := fmt.Sprintf("registry = %q\n", srv.URL)
	if err := os.WriteFile(filepath.Join(dir, ConfigName), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProject(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Resolve(context.Background(), true); err == nil {
		t.Fatal("conflicting requirements resolved")
	}
}
