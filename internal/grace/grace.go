// Package grace implements the cluster-wide Grace Coordinator (component
// D): a single shared record, the GraceObject, tracking a monotonic
// current epoch, an optional in-progress reclaim epoch, and a per-member
// flag set (NeedGrace, Enforcing). It is modeled directly on Ceph RADOS's
// omap-backed grace object (rados_grace_*), generalized behind a Store
// interface so the same coordination logic runs over BadgerDB, Postgres,
// or an in-memory map.
package grace

import "fmt"

// Flags are the per-member bits tracked alongside the GraceObject.
type Flags uint8

const (
	// NeedGrace marks a member as still owed a grace period: it may
	// have clients that need to reclaim locks/state before the cluster
	// can stop enforcing grace.
	NeedGrace Flags = 1 << iota
	// Enforcing marks a member as actively rejecting non-reclaim
	// requests for the duration of the current grace period.
	Enforcing
)

// String renders flags as a fixed two-character form used by Dump: 'N'/'-'
// for NeedGrace, 'E'/'-' for Enforcing.
func (f Flags) String() string {
	n := byte('-')
	if f&NeedGrace != 0 {
		n = 'N'
	}
	e := byte('-')
	if f&Enforcing != 0 {
		e = 'E'
	}
	return string([]byte{n, e})
}

// Epochs is the byte-value half of the GraceObject: two little-endian u64
// counters, independent of host byte order so the on-disk/on-wire form is
// identical across architectures.
type Epochs struct {
	// CurrentEpoch increases every time a new grace period begins.
	CurrentEpoch uint64
	// ReclaimEpoch is nonzero while a grace period is in progress; its
	// value is the epoch being reclaimed into.
	ReclaimEpoch uint64
}

// InGracePeriod reports whether the cluster is currently enforcing a
// grace period.
func (e Epochs) InGracePeriod() bool { return e.ReclaimEpoch != 0 }

// Version is the opaque optimistic-concurrency token returned by a Store
// on every read or write, and required by every subsequent write against
// the same object. Two reads of the same unmodified object always return
// equal Versions; any write changes it. Backends map this onto whatever
// native CAS primitive they have (BadgerDB's commit timestamp, a GORM
// optimistic-lock column, an in-memory counter).
type Version uint64

// Member is one entry in a GraceObject's membership table.
type Member struct {
	ID    string
	Flags Flags
}

// ErrorCode classifies a grace coordinator failure the way spec.md §7
// distinguishes "racy store, retry" from hard failures that must not be
// retried.
type ErrorCode int

const (
	// ErrCodeNoSuchMember: the named member is not present in the
	// membership table. Hard failure.
	ErrCodeNoSuchMember ErrorCode = iota
	// ErrCodeAlreadyExists: Add was called for a member that is already
	// present. Hard failure.
	ErrCodeAlreadyExists
	// ErrCodeNotEnforcing: Lift observed at least one member with
	// ReclaimEpoch set but Enforcing unset — the cluster cannot safely
	// lift grace because not every member has confirmed it is enforcing
	// it. Hard failure, requires operator intervention.
	ErrCodeNotEnforcing
	// ErrCodeNotRecoverable: a conflict-retry loop exhausted its budget.
	// Hard failure. A backing object that does not exist is reported as
	// the Store's ErrNotFound, not with this code.
	ErrCodeNotRecoverable
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNoSuchMember:
		return "no_such_member"
	case ErrCodeAlreadyExists:
		return "already_exists"
	case ErrCodeNotEnforcing:
		return "not_enforcing"
	case ErrCodeNotRecoverable:
		return "not_recoverable"
	default:
		return "unknown"
	}
}

// Error is the typed error every grace coordinator operation returns for
// hard failures, following the teacher's *metadata.StoreError shape: a
// machine-checkable Code plus a human Message, meant to be matched with
// errors.As rather than string comparison.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("grace: %s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
