package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the public npm registry.
const DefaultBaseURL = "https://registry.npmjs.org"

// abbreviatedAccept asks for the install-only packument, a fraction of the
// full document's size. Registries that don't support it return the full
// document anyway.
const abbreviatedAccept = "application/vnd.npm.install-v1+json"

// Client fetches packuments. Responses are held in memory behind a radix
// index and, when a cache directory is configured, revalidated on disk with
// ETags so an unchanged packument costs one 304. Concurrent requests for
// the same package are coalesced.
type Client struct {
	base     string
	token    string
	cacheDir string
	http     *http.Client
	log      *logrus.Logger

	mem   *memCache
	group singleflight.Group
}

// ClientOptions configure a Client. Zero values fall back to the public
// registry, no auth, no disk cache and a discarding logger.
type ClientOptions struct {
	BaseURL  string
	Token    string
	CacheDir string
	Timeout  time.Duration
	Logger   *logrus.Logger
}

func NewClient(opts ClientOptions) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Client{
		base:     base,
		token:    opts.Token,
		cacheDir: opts.CacheDir,
		http:     &http.Client{Timeout: timeout},
		log:      log,
		mem:      newMemCache(),
	}
}

// Packument returns the metadata document for name, from cache when fresh.
func (c *Client) Packument(ctx context.Context, name string) (*Packument, error) {
	if p, ok := c.mem.get(name); ok {
		return p, nil
	}
	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		if p, ok := c.mem.get(name); ok {
			return p, nil
		}
		p, err := c.fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		c.mem.put(name, p)
		if c.log.Level >= logrus.DebugLevel {
			c.log.WithFields(logrus.Fields{"pkg": name, "cached": c.mem.len()}).Debug("packument cached")
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Packument), nil
}

// CachedNames lists in-memory cached packages under prefix.
func (c *Client) CachedNames(prefix string) []string {
	return c.mem.names(prefix)
}

func (c *Client) fetch(ctx context.Context, name string) (*Packument, error) {
	cached, etag := c.readDiskCache(name)

	body, newEtag, notModified, err := c.request(ctx, name, abbreviatedAccept, etag)
	if err != nil {
		if cached != nil {
			c.log.WithError(err).WithField("pkg", name).Warn("registry unreachable, using cached packument")
			return cached, nil
		}
		return nil, err
	}
	if notModified {
		if cached != nil {
			return cached, nil
		}
		// 304 without a cached body: retry unconditionally.
		body, newEtag, _, err = c.request(ctx, name, abbreviatedAccept, "")
		if err != nil {
			return nil, err
		}
	}

	p, err := decodePackument(body)
	if err != nil {
		return nil, errors.Wrapf(err, "decode packument for %s", name)
	}
	if len(p.Versions) == 0 {
		// Some registries serve an empty abbreviated document; ask for the
		// full one before giving up.
		full, fullEtag, _, ferr := c.request(ctx, name, "application/json", "")
		if ferr == nil {
			if fp, derr := decodePackument(full); derr == nil && len(fp.Versions) > 0 {
				p, body, newEtag = fp, full, fullEtag
			}
		}
	}

	c.writeDiskCache(name, body, newEtag)
	return p, nil
}

// request performs one GET. It returns the body, the response ETag, and
// whether the server answered 304 Not Modified.
func (c *Client) request(ctx context.Context, name, accept, etag string) ([]byte, string, bool, error) {
	url := c.base + "/" + escapeName(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", false, errors.Wrapf(err, "build request for %s", name)
	}
	req.Header.Set("Accept", accept)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", false, errors.Wrapf(err, "fetch packument for %s", name)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return nil, etag, true, nil
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", false, errors.Wrapf(err, "read packument for %s", name)
		}
		return body, resp.Header.Get("ETag"), false, nil
	default:
		return nil, "", false, errors.Errorf("registry returned %s for %s", resp.Status, name)
	}
}

func decodePackument(body []byte) (*Packument, error) {
	var p Packument
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// escapeName encodes the scope separator; everything else in a package name
// is URL-safe.
func escapeName(name string) string {
	return strings.Replace(name, "/", "%2F", 1)
}

func (c *Client) diskCachePaths(name string) (string, string) {
	sum := sha256.Sum256([]byte(name))
	base := filepath.Join(c.cacheDir, "packuments", hex.EncodeToString(sum[:]))
	return base + ".json", base + ".etag"
}

func (c *Client) readDiskCache(name string) (*Packument, string) {
	if c.cacheDir == "" {
		return nil, ""
	}
	bodyPath, etagPath := c.diskCachePaths(name)
	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil, ""
	}
	p, err := decodePackument(body)
	if err != nil {
		return nil, ""
	}
	etag := ""
	if raw, err := os.ReadFile(etagPath); err == nil {
		etag = strings.TrimSpace(string(raw))
	}
	return p, etag
}

func (c *Client) writeDiskCache(name string, body []byte, etag string) {
	if c.cacheDir == "" || len(body) == 0 {
		return
	}
	bodyPath, etagPath := c.diskCachePaths(name)
	if err := os.MkdirAll(filepath.Dir(bodyPath), 0755); err != nil {
		c.log.WithError(err).Warn("could not create packument cache dir")
		return
	}
	if err := os.WriteFile(bodyPath, body, 0644); err != nil {
		c.log.WithError(err).WithField("pkg", name).Warn("could not write packument cache")
		return
	}
	if etag != "" {
		if err := os.WriteFile(etagPath, []byte(etag), 0644); err != nil {
			c.log.WithError(err).WithField("pkg", name).Warn("could not write packument etag")
		}
	}
}
