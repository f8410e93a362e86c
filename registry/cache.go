package registry

import (
	"sync"

	radix "github.com/armon/go-radix"
)

// memCache is the in-memory packument cache, indexed by a radix tree so
// scoped packages ("@scope/...") can be listed by prefix.
type memCache struct {
	mu   sync.RWMutex
	tree *radix.Tree
}

func newMemCache() *memCache {
	return &memCache{tree: radix.New()}
}

func (c *memCache) get(name string) (*Packument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.tree.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Packument), true
}

func (c *memCache) put(name string, p *Packument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.Insert(name, p)
}

func (c *memCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Len()
}

// names lists cached package names under prefix, e.g. "@types/".
func (c *memCache) names(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	c.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		out = append(out, k)
		return false
	})
	return out
}
