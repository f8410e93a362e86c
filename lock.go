package hull

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/hullpm/hull/solve"
)

// LockName is the lockfile written next to the manifest.
const LockName = "package-lock.json"

const lockfileVersion = 3

// Lockfile is a v3 package-lock document. The "" key holds the root
// project entry; every resolved package lives under a node_modules/ key.
type Lockfile struct {
	Name            string                 `json:"name"`
	Version         string                 `json:"version,omitempty"`
	LockfileVersion int                    `json:"lockfileVersion"`
	Packages        map[string]LockPackage `json:"packages"`
}

// LockPackage is one entry in the lockfile's packages map.
type LockPackage struct {
	Name             string            `json:"name,omitempty"`
	Version          string            `json:"version,omitempty"`
	Resolved         string            `json:"resolved,omitempty"`
	Integrity        string            `json:"integrity,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
}

// BuildLockfile assembles a lockfile from the manifest and the resolved
// package entries.
func BuildLockfile(m *Manifest, resolved map[string]solve.ResolvedPackage) *Lockfile {
	lf := &Lockfile{
		Name:            m.Name,
		Version:         m.Version,
		LockfileVersion: lockfileVersion,
		Packages:        map[string]LockPackage{},
	}

	root := LockPackage{Name: m.Name, Version: m.Version}
	if len(m.Dependencies) > 0 {
		root.Dependencies = map[string]string{}
		for name, spec := range m.Dependencies {
			root.Dependencies[name] = spec
		}
	}
	lf.Packages[""] = root

	for _, rp := range resolved {
		lf.Packages["node_modules/"+rp.Name] = LockPackage{
			Version:          rp.Version,
			Resolved:         rp.Resolved,
			Integrity:        rp.Integrity,
			Dependencies:     rp.Dependencies,
			PeerDependencies: rp.PeerDependencies,
		}
	}
	return lf
}

// Assignment extracts the locked package versions, used to seed
// incremental resolution on the next run.
func (lf *Lockfile) Assignment() solve.Assignment {
	a := solve.Assignment{}
	for key, p := range lf.Packages {
		name, ok := strings.CutPrefix(key, "node_modules/")
		if !ok || p.Version == "" {
			continue
		}
		a[name] = p.Version
	}
	return a
}

func readLock(r io.Reader) (*Lockfile, error) {
	lf := &Lockfile{}
	if err := json.NewDecoder(r).Decode(lf); err != nil {
		return nil, errors.Wrap(err, "decode lockfile")
	}
	if lf.LockfileVersion != lockfileVersion {
		return nil, errors.Errorf("unsupported lockfileVersion %d", lf.LockfileVersion)
	}
	return lf, nil
}

// ReadLockfile loads the lockfile at path. A missing file is not an error;
// it returns (nil, nil).
func ReadLockfile(path string) (*Lockfile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	lf, err := readLock(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return lf, nil
}

// marshalLock renders the lockfile with stable key order and a trailing
// newline, so repeated runs produce byte-identical files.
func marshalLock(lf *Lockfile) ([]byte, error) {
	// json.MarshalIndent sorts map keys; "" sorts before "node_modules/...",
	// which is the order npm writes.
	b, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal lockfile")
	}
	return append(b, '\n'), nil
}

// WriteLockfile writes the lockfile to path atomically.
func WriteLockfile(path string, lf *Lockfile) error {
	b, err := marshalLock(lf)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "rename %s", path)
	}
	return nil
}
