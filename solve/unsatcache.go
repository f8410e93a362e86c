package solve

import (
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

// UnsatCache persists proven-unsatisfiable search states across runs in a
// bolt file. Entries live in a bucket named by the domain fingerprint, so a
// registry publish that changes any candidate version abandons the old
// bucket wholesale. The cache is loaded once at open and written once at
// save; the solver itself only touches memory.
type UnsatCache struct {
	path        string
	fingerprint string
	seen        map[string]bool
	dirty       []string
}

// OpenUnsatCache loads the entries recorded for fingerprint from the bolt
// file at path, creating the file if needed.
func OpenUnsatCache(path, fingerprint string) (*UnsatCache, error) {
	c := &UnsatCache{path: path, fingerprint: fingerprint, seen: map[string]bool{}}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open unsat cache")
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(fingerprint))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			c.seen[string(k)] = true
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "read unsat cache")
	}
	return c, nil
}

// Has reports whether the state signature is a known dead end.
func (c *UnsatCache) Has(sig string) bool { return c.seen[sig] }

// Add records a newly proven dead end. It is persisted on the next Save.
func (c *UnsatCache) Add(sig string) {
	if c.seen[sig] {
		return
	}
	c.seen[sig] = true
	c.dirty = append(c.dirty, sig)
}

// Len returns the number of known dead ends.
func (c *UnsatCache) Len() int { return len(c.seen) }

// Save writes the entries learned since open and drops buckets for stale
// fingerprints. A no-op when nothing new was learned.
func (c *UnsatCache) Save() error {
	if len(c.dirty) == 0 {
		return nil
	}

	db, err := bolt.Open(c.path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return errors.Wrap(err, "open unsat cache")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		var stale [][]byte
		err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if string(name) != c.fingerprint {
				cp := make([]byte, len(name))
				copy(cp, name)
				stale = append(stale, cp)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, name := range stale {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}

		b, err := tx.CreateBucketIfNotExists([]byte(c.fingerprint))
		if err != nil {
			return err
		}
		for _, sig := range c.dirty {
			if err := b.Put([]byte(sig), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "write unsat cache")
	}
	c.dirty = c.dirty[:0]
	return nil
}
