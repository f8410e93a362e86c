package hull

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/hullpm/hull/solve"
)

// ManifestName is the project manifest file read from the project root.
const ManifestName = "package.json"

// Manifest is the subset of package.json that drives resolution.
type Manifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
}

func readManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	if err := json.NewDecoder(r).Decode(m); err != nil {
		return nil, errors.Wrap(err, "decode manifest")
	}
	return m, nil
}

// ReadManifest loads the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	m, err := readManifest(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return m, nil
}

// SolveInput converts the manifest's requirement maps into solver input.
// Regular and dev dependencies are mandatory; optionalDependencies may be
// dropped when they cannot be satisfied. A name listed in both wins the
// mandatory slot.
func (m *Manifest) SolveInput(includeDev bool) solve.SolveInput {
	in := solve.SolveInput{
		Requirements: map[string]string{},
		Optional:     map[string]string{},
	}
	for name, spec := range m.Dependencies {
		in.Requirements[name] = spec
	}
	if includeDev {
		for name, spec := range m.DevDependencies {
			if _, ok := in.Requirements[name]; !ok {
				in.Requirements[name] = spec
			}
		}
	}
	for name, spec := range m.OptionalDependencies {
		if _, ok := in.Requirements[name]; !ok {
			in.Optional[name] = spec
		}
	}
	return in
}
