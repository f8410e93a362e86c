package registry

// Packument is the registry's per-package metadata document. Only the
// fields resolution needs are decoded; the abbreviated form
// (vnd.npm.install-v1+json) carries all of them.
type Packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]VersionMetadata `json:"versions"`
}

// VersionMetadata is one published version inside a packument. Missing
// maps stay nil; callers treat nil as empty.
type VersionMetadata struct {
	Name                 string              `json:"name"`
	Version              string              `json:"version"`
	Dependencies         map[string]string   `json:"dependencies"`
	DevDependencies      map[string]string   `json:"devDependencies"`
	OptionalDependencies map[string]string   `json:"optionalDependencies"`
	PeerDependencies     map[string]string   `json:"peerDependencies"`
	PeerDependenciesMeta map[string]PeerMeta `json:"peerDependenciesMeta"`
	Deprecated           string              `json:"deprecated"`
	Dist                 Dist                `json:"dist"`
}

// PeerMeta flags a peer dependency as optional.
type PeerMeta struct {
	Optional bool `json:"optional"`
}

// Dist locates the version's tarball.
type Dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
	Shasum    string `json:"shasum"`
}

// Latest returns the version tagged latest, or "".
func (p *Packument) Latest() string {
	if p == nil {
		return ""
	}
	return p.DistTags["latest"]
}
