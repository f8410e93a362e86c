package solve

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureClass buckets resolution failures for fallback policy and
// telemetry.
type FailureClass uint8

const (
	FailureOther FailureClass = iota
	FailureUnsat
	FailureTimeout
	FailurePeer
	FailureMetadata
)

func (c FailureClass) String() string {
	switch c {
	case FailureUnsat:
		return "unsat"
	case FailureTimeout:
		return "timeout"
	case FailurePeer:
		return "peer-conflict"
	case FailureMetadata:
		return "metadata"
	default:
		return "other"
	}
}

// Classify maps an error onto its failure class.
func Classify(err error) FailureClass {
	var (
		ns *NoSolutionError
		to *TimeoutError
		pc *PeerConflictError
		md *PackageMetadataError
	)
	switch {
	case errors.As(err, &to), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &pc):
		return FailurePeer
	case errors.As(err, &ns):
		return FailureUnsat
	case errors.As(err, &md):
		return FailureMetadata
	default:
		return FailureOther
	}
}

// NoSolutionError reports a proven-unsatisfiable input. Engines that build
// derivation trees attach one; the others supply a plain summary.
type NoSolutionError struct {
	Tree    *DerivationTree
	Summary string
}

func (e *NoSolutionError) Error() string {
	if e.Summary != "" {
		return e.Summary
	}
	if e.Tree != nil {
		return e.Tree.Format()
	}
	return "no version assignment satisfies all requirements"
}

func (e *NoSolutionError) traceString() string {
	if e.Tree != nil {
		return e.Tree.Format()
	}
	return e.Summary
}

// TimeoutError reports an exhausted solve budget. Limit names which budget
// ran out (wall clock or decision depth); it is deliberately distinct from
// an unsatisfiability verdict.
type TimeoutError struct {
	Engine string
	Limit  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s budget exhausted before a verdict", e.Engine, e.Limit)
}

// PackageMetadataError reports unusable registry metadata: an unfetchable
// packument, a malformed version, or an unparsable requirement spec.
type PackageMetadataError struct {
	Package string
	Reason  string
	Err     error
}

func (e *PackageMetadataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("metadata for %s: %s: %v", e.Package, e.Reason, e.Err)
	}
	return fmt.Sprintf("metadata for %s: %s", e.Package, e.Reason)
}

func (e *PackageMetadataError) Unwrap() error { return e.Err }

// PeerConflict is one violated or missing peer requirement.
type PeerConflict struct {
	Peer         string
	Requester    string
	Spec         string
	Resolved     string
	Missing      bool
	Requirements []string
}

func (c PeerConflict) String() string {
	if c.Missing {
		return fmt.Sprintf("peer %s missing (requirements: %s)", c.Peer, strings.Join(c.Requirements, ", "))
	}
	return fmt.Sprintf("peer %s required by %s but resolved %s (spec %s)", c.Peer, c.Requester, c.Resolved, c.Spec)
}

// PeerConflictError aggregates every peer violation in a candidate
// solution. Validation never stops at the first conflict.
type PeerConflictError struct {
	Conflicts []PeerConflict
}

func (e *PeerConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("peer dependency conflict: %s. Consider updating dependencies or using a single version.", strings.Join(parts, "; "))
}

func (e *PeerConflictError) traceString() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = "  " + c.String()
	}
	return "peer validation failed:\n" + strings.Join(parts, "\n")
}

// internalError marks a solver invariant violation. Seeing one is a bug.
type internalError struct {
	msg string
}

func (e *internalError) Error() string { return "internal: " + e.msg }

func internalf(format string, args ...interface{}) error {
	return &internalError{msg: fmt.Sprintf(format, args...)}
}

// badOptsError reports invalid solver options, detected before any work
// starts.
type badOptsError string

func (e badOptsError) Error() string { return string(e) }

// tracer is implemented by failures that carry a long-form explanation
// worth logging at debug level.
type tracer interface {
	traceString() string
}
