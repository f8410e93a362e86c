package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func packumentJSON(t *testing.T, p *Packument) []byte {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func simplePackument(name string, versions ...string) *Packument {
	p := &Packument{Name: name, Versions: map[string]VersionMetadata{}}
	for _, v := range versions {
		p.Versions[v] = VersionMetadata{
			Name:    name,
			Version: v,
			Dist: Dist{
				Tarball:   "https://example.test/" + name + "-" + v + ".tgz",
				Integrity: "sha512-" + name + v,
			},
		}
	}
	if len(versions) > 0 {
		p.DistTags = map[string]string{"latest": versions[len(versions)-1]}
	}
	return p
}

func TestClientFetchesAbbreviatedPackument(t *testing.T) {
	var gotAccept atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept.Store(r.Header.Get("Accept"))
		w.Header().Set("ETag", `"v1"`)
		w.Write(packumentJSON(t, simplePackument("left-pad", "1.0.0", "1.3.0")))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	p, err := c.Packument(context.Background(), "left-pad")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "left-pad" || len(p.Versions) != 2 {
		t.Fatalf("packument = %+v", p)
	}
	if p.Latest() != "1.3.0" {
		t.Errorf("Latest = %q", p.Latest())
	}
	if gotAccept.Load() != "application/vnd.npm.install-v1+json" {
		t.Errorf("Accept = %q", gotAccept.Load())
	}
}

func TestClientMemoryCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(packumentJSON(t, simplePackument("once", "1.0.0")))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	for i := 0; i < 3; i++ {
		if _, err := c.Packument(context.Background(), "once"); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
	names := c.CachedNames("on")
	if len(names) != 1 || names[0] != "once" {
		t.Errorf("CachedNames = %v", names)
	}
}

func TestClientLogsCacheSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		w.Write(packumentJSON(t, simplePackument(name, "1.0.0")))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	c := NewClient(ClientOptions{BaseURL: srv.URL, Logger: log})
	for _, name := range []string{"first", "second"} {
		if _, err := c.Packument(context.Background(), name); err != nil {
			t.Fatal(err)
		}
	}
	out := buf.String()
	if !strings.Contains(out, "packument cached") {
		t.Errorf("debug log missing cache entries:\n%s", out)
	}
	if !strings.Contains(out, "cached=2") {
		t.Errorf("debug log missing the cache size:\n%s", out)
	}
}

func TestClientETagRevalidation(t *testing.T) {
	var revalidated atomic.Bool
	body := packumentJSON(t, simplePackument("stable", "2.0.0"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v7"` {
			revalidated.Store(true)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v7"`)
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()

	first := NewClient(ClientOptions{BaseURL: srv.URL, CacheDir: dir})
	if _, err := first.Packument(context.Background(), "stable"); err != nil {
		t.Fatal(err)
	}

	// A fresh client has an empty memory cache and must revalidate the
	// disk copy.
	second := NewClient(ClientOptions{BaseURL: srv.URL, CacheDir: dir})
	p, err := second.Packument(context.Background(), "stable")
	if err != nil {
		t.Fatal(err)
	}
	if !revalidated.Load() {
		t.Error("second client did not send If-None-Match")
	}
	if len(p.Versions) != 1 {
		t.Errorf("revalidated packument lost versions: %+v", p)
	}
}

func TestClientFallsBackToCacheWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(packumentJSON(t, simplePackument("flaky", "1.0.0")))
	}))

	dir := t.TempDir()
	first := NewClient(ClientOptions{BaseURL: srv.URL, CacheDir: dir})
	if _, err := first.Packument(context.Background(), "flaky"); err != nil {
		t.Fatal(err)
	}
	srv.Close()

	second := NewClient(ClientOptions{BaseURL: srv.URL, CacheDir: dir})
	p, err := second.Packument(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("cached fallback failed: %v", err)
	}
	if len(p.Versions) != 1 {
		t.Errorf("fallback packument = %+v", p)
	}
}

func TestClientFullPackumentFallback(t *testing.T) {
	full := packumentJSON(t, simplePackument("odd", "3.1.0"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "application/json" {
			w.Write(full)
			return
		}
		// Abbreviated form served with no versions.
		w.Write([]byte(`{"name":"odd","versions":{}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	p, err := c.Packument(context.Background(), "odd")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Versions) != 1 {
		t.Errorf("full-document fallback not used: %+v", p)
	}
}

func TestClientAuthToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write(packumentJSON(t, simplePackument("private", "0.1.0")))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Token: "s3cret"})
	if _, err := c.Packument(context.Background(), "private"); err != nil {
		t.Fatal(err)
	}
	if gotAuth.Load() != "Bearer s3cret" {
		t.Errorf("Authorization = %q", gotAuth.Load())
	}
}

func TestClientReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	if _, err := c.Packument(context.Background(), "nope"); err == nil {
		t.Error("404 did not surface as an error")
	}
}

func TestEscapeName(t *testing.T) {
	if got := escapeName("@types/node"); got != "@types%2Fnode" {
		t.Errorf("escapeName = %q", got)
	}
	if got := escapeName("lodash"); got != "lodash" {
		t.Errorf("escapeName = %q", got)
	}
}
