package grace

import (
	"context"
	"errors"
)

// ErrConflict is returned by Write or UpdateOmap when the supplied
// Version no longer matches the object's current version: someone else
// wrote to it first. The coordinator treats this as the sole retryable
// condition — every other error is a hard failure.
var ErrConflict = errors.New("grace: racy store write, retry")

// ErrNotFound is returned by Read, ReadPlusOmap, Write, or UpdateOmap when
// the named object does not exist.
var ErrNotFound = errors.New("grace: object not found")

// Store is the cluster-shared backing store a Coordinator runs its
// optimistic-concurrency protocol against. A GraceObject named by a
// string key has two parts sharing one Version: an Epochs byte-value, and
// an unordered table of Member flags (an "omap" in the Ceph RADOS sense
// this was modeled on — a key-value extension living alongside the
// object's byte value, versioned together with it).
type Store interface {
	// CreateIfAbsent creates the named object with CurrentEpoch=1,
	// ReclaimEpoch=0, and an empty membership table if it does not
	// already exist. Reports whether it created a new object.
	CreateIfAbsent(ctx context.Context, name string) (created bool, err error)

	// Read returns just the Epochs half of the object.
	Read(ctx context.Context, name string) (Epochs, Version, error)

	// ReadPlusOmap returns the Epochs plus the full membership table.
	ReadPlusOmap(ctx context.Context, name string) (Epochs, map[string]Flags, Version, error)

	// Write performs a compare-and-swap on the Epochs half: it succeeds
	// only if the object's current version equals expected, and returns
	// the object's new version on success.
	Write(ctx context.Context, name string, epochs Epochs, expected Version) (Version, error)

	// UpdateOmap performs a compare-and-swap on the membership table:
	// upserts sets or overwrites the named members' flags, deletes
	// removes the named members entirely. It succeeds only if the
	// object's current version equals expected.
	UpdateOmap(ctx context.Context, name string, upserts map[string]Flags, deletes []string, expected Version) (Version, error)

	// Notify is a best-effort signal to other cluster members that the
	// object changed. Implementations may no-op; callers must not treat
	// its failure as the operation having failed.
	Notify(ctx context.Context, name string) error
}
