package solve

import "fmt"

// ValidatePeers judges a finished assignment against every peer requirement
// declared by the selected versions. All violations are collected before
// reporting; an assignment is never failed on the first conflict found.
// Optional peers are validated when present and ignored when absent.
func ValidatePeers(a Assignment, domains Domains) error {
	type peerReq struct {
		requester string
		spec      string
		optional  bool
	}
	peerReqs := map[string][]peerReq{}
	var peerOrder []string

	for _, pkg := range sortedKeys(a) {
		d, ok := domains[pkg]
		if !ok {
			return &PackageMetadataError{Package: pkg, Reason: "selected but domain is missing"}
		}
		pv, ok := d.Get(a[pkg])
		if !ok {
			return &PackageMetadataError{Package: pkg, Reason: fmt.Sprintf("selected version %s is missing", a[pkg])}
		}
		for _, peer := range sortedKeys(pv.PeerDependencies) {
			if _, ok := peerReqs[peer]; !ok {
				peerOrder = append(peerOrder, peer)
			}
			peerReqs[peer] = append(peerReqs[peer], peerReq{
				requester: pkg + "@" + pv.Version,
				spec:      pv.PeerDependencies[peer],
				optional:  pv.OptionalPeers[peer],
			})
		}
	}

	var conflicts []PeerConflict
	for _, peer := range peerOrder {
		reqs := peerReqs[peer]
		resolved, selected := a[peer]

		if !selected {
			mandatory := false
			var lines []string
			for _, r := range reqs {
				if !r.optional {
					mandatory = true
				}
				lines = append(lines, fmt.Sprintf("%s -> %s", r.requester, r.spec))
			}
			if mandatory {
				conflicts = append(conflicts, PeerConflict{Peer: peer, Missing: true, Requirements: lines})
			}
			continue
		}

		packed, err := ParseVersion(resolved)
		if err != nil {
			return &PackageMetadataError{Package: peer, Reason: "unparsable selected version " + resolved, Err: err}
		}
		for _, r := range reqs {
			set, err := ParseSpec(r.spec)
			if err != nil {
				return &PackageMetadataError{Package: peer, Reason: "bad peer requirement from " + r.requester, Err: err}
			}
			if !set.Contains(packed) {
				conflicts = append(conflicts, PeerConflict{
					Peer:      peer,
					Requester: r.requester,
					Spec:      r.spec,
					Resolved:  resolved,
				})
			}
		}
	}

	if len(conflicts) > 0 {
		return &PeerConflictError{Conflicts: conflicts}
	}
	return nil
}
