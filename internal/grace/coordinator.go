package grace

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/coregate/coregate/internal/logger"
)

// maxConflictRetries bounds the read-modify-write retry loop every
// operation below runs: a handful of attempts is enough to ride out a
// genuine race with another member's concurrent write, and more than
// that indicates the cluster is unhealthy rather than merely contended.
const maxConflictRetries = 8

// Coordinator implements the Grace Coordinator's operations against a
// Store, translating spec.md §4.D's retry policy (retry on ErrConflict,
// fail hard on everything else) into Go control flow.
type Coordinator struct {
	store      Store
	objectName string
}

// NewCoordinator builds a Coordinator for the named GraceObject.
func NewCoordinator(store Store, objectName string) *Coordinator {
	return &Coordinator{store: store, objectName: objectName}
}

// Create ensures the GraceObject exists. Idempotent: calling it again
// after the object already exists is a no-op, not an error.
func (c *Coordinator) Create(ctx context.Context) error {
	_, err := c.store.CreateIfAbsent(ctx, c.objectName)
	return err
}

// Add registers new members with flags cleared (spec.md's stated
// behavior; see DESIGN.md OQ-2 for why this core does not mirror
// rados_grace_add's ENFORCING-on-add behavior). Fails hard, without
// retry, if any named member already exists; no member is inserted if
// any one of them is rejected, matching the rest of this package's
// all-or-nothing batch semantics.
func (c *Coordinator) Add(ctx context.Context, memberIDs []string) error {
	return c.retry(ctx, "add", func() (bool, error) {
		_, members, version, err := c.store.ReadPlusOmap(ctx, c.objectName)
		if err != nil {
			return false, err
		}
		upserts := make(map[string]Flags, len(memberIDs))
		for _, id := range memberIDs {
			if _, exists := members[id]; exists {
				return false, newError(ErrCodeAlreadyExists, "member %q already present", id)
			}
			upserts[id] = 0
		}
		_, err = c.store.UpdateOmap(ctx, c.objectName, upserts, nil, version)
		if err != nil {
			return errors.Is(err, ErrConflict), err
		}
		c.bestEffortNotify(ctx)
		return false, nil
	})
}

// Join announces that each of memberIDs needs a grace period, as one
// atomic update. If no grace period is currently in progress, start
// requests that one begin now: start=true starts a fresh epoch and
// flags every named member as needing it; start=false with no grace
// period in progress is a genuine no-op (no write at all). If a grace
// period is already in progress, Join adds these members to it
// regardless of start, without touching the epochs. Fails hard, without
// retry, if any named member is absent.
func (c *Coordinator) Join(ctx context.Context, memberIDs []string, start bool) error {
	return c.retry(ctx, "join", func() (bool, error) {
		epochs, members, version, err := c.store.ReadPlusOmap(ctx, c.objectName)
		if err != nil {
			return false, err
		}
		for _, id := range memberIDs {
			if _, ok := members[id]; !ok {
				return false, newError(ErrCodeNoSuchMember, "member %q not present", id)
			}
		}

		if !epochs.InGracePeriod() {
			if !start {
				return false, nil // true no-op
			}
			newEpochs := Epochs{CurrentEpoch: epochs.CurrentEpoch + 1, ReclaimEpoch: epochs.CurrentEpoch}
			v2, err := c.store.Write(ctx, c.objectName, newEpochs, version)
			if err != nil {
				return errors.Is(err, ErrConflict), err
			}
			upserts := make(map[string]Flags, len(memberIDs))
			for _, id := range memberIDs {
				upserts[id] = members[id] | NeedGrace | Enforcing
			}
			_, err = c.store.UpdateOmap(ctx, c.objectName, upserts, nil, v2)
			if err != nil {
				return errors.Is(err, ErrConflict), err
			}
			c.bestEffortNotify(ctx)
			return false, nil
		}

		upserts := make(map[string]Flags, len(memberIDs))
		changed := false
		for _, id := range memberIDs {
			newFlags := members[id] | NeedGrace
			if newFlags != members[id] {
				changed = true
			}
			upserts[id] = newFlags
		}
		if !changed {
			return false, nil // already joined, nothing to write
		}
		_, err = c.store.UpdateOmap(ctx, c.objectName, upserts, nil, version)
		if err != nil {
			return errors.Is(err, ErrConflict), err
		}
		c.bestEffortNotify(ctx)
		return false, nil
	})
}

// EnforcingToggle sets or clears the Enforcing bit for each of
// memberIDs, as one atomic update. Fails hard, without retry, if any
// named member is absent.
func (c *Coordinator) EnforcingToggle(ctx context.Context, memberIDs []string, enforcing bool) error {
	return c.retry(ctx, "enforcing_toggle", func() (bool, error) {
		_, members, version, err := c.store.ReadPlusOmap(ctx, c.objectName)
		if err != nil {
			return false, err
		}
		upserts := make(map[string]Flags, len(memberIDs))
		changed := false
		for _, id := range memberIDs {
			flags, ok := members[id]
			if !ok {
				return false, newError(ErrCodeNoSuchMember, "member %q not present", id)
			}
			var newFlags Flags
			if enforcing {
				newFlags = flags | Enforcing
			} else {
				newFlags = flags &^ Enforcing
			}
			if newFlags != flags {
				changed = true
			}
			upserts[id] = newFlags
		}
		if !changed {
			return false, nil
		}
		_, err = c.store.UpdateOmap(ctx, c.objectName, upserts, nil, version)
		if err != nil {
			return errors.Is(err, ErrConflict), err
		}
		c.bestEffortNotify(ctx)
		return false, nil
	})
}

// MemberCheck is a read-only query that succeeds iff every one of
// memberIDs is present in the membership table. Unlike the mutating
// operations above it never conflicts, so it is not run through retry.
func (c *Coordinator) MemberCheck(ctx context.Context, memberIDs []string) (bool, error) {
	_, members, _, err := c.store.ReadPlusOmap(ctx, c.objectName)
	if err != nil {
		return false, err
	}
	for _, id := range memberIDs {
		if _, ok := members[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// EnforcingCheck reports whether selfID is present and every member in
// the whole table currently has the Enforcing bit set — not just
// selfID. Fails hard if selfID itself is absent.
func (c *Coordinator) EnforcingCheck(ctx context.Context, selfID string) (bool, error) {
	_, members, _, err := c.store.ReadPlusOmap(ctx, c.objectName)
	if err != nil {
		return false, err
	}
	if _, ok := members[selfID]; !ok {
		return false, newError(ErrCodeNoSuchMember, "member %q not present", selfID)
	}
	for _, flags := range members {
		if flags&Enforcing == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Lift clears NeedGrace for the named members, having confirmed they
// completed their reclaim. It scans the *entire* membership table, not
// just the requested members: if a grace period is in progress
// (ReclaimEpoch != 0) and any member in the whole cluster lacks
// Enforcing, Lift fails hard with ErrCodeNotEnforcing rather than
// retrying — an un-enforcing member means the cluster cannot safely
// guarantee no stale request slips through, and that needs operator
// attention, not a retry. ReclaimEpoch is cleared only once every member
// has had NeedGrace cleared (k == need, in the original's terms).
func (c *Coordinator) Lift(ctx context.Context, memberIDs []string) error {
	return c.retry(ctx, "lift", func() (bool, error) {
		epochs, members, version, err := c.store.ReadPlusOmap(ctx, c.objectName)
		if err != nil {
			return false, err
		}
		if !epochs.InGracePeriod() {
			return false, nil
		}

		for id, flags := range members {
			if flags&Enforcing == 0 {
				return false, newError(ErrCodeNotEnforcing, "member %q is not enforcing grace", id)
			}
		}

		upserts := make(map[string]Flags, len(memberIDs))
		updated := make(map[string]Flags, len(members))
		for id, flags := range members {
			updated[id] = flags
		}
		for _, id := range memberIDs {
			flags, ok := members[id]
			if !ok {
				return false, newError(ErrCodeNoSuchMember, "member %q not present", id)
			}
			cleared := flags &^ NeedGrace
			upserts[id] = cleared
			updated[id] = cleared
		}

		newVersion, err := c.store.UpdateOmap(ctx, c.objectName, upserts, nil, version)
		if err != nil {
			return errors.Is(err, ErrConflict), err
		}

		remainingNeed := 0
		for _, flags := range updated {
			if flags&NeedGrace != 0 {
				remainingNeed++
			}
		}
		if remainingNeed == 0 {
			_, err = c.store.Write(ctx, c.objectName, Epochs{CurrentEpoch: epochs.CurrentEpoch, ReclaimEpoch: 0}, newVersion)
			if err != nil {
				return errors.Is(err, ErrConflict), err
			}
		}

		c.bestEffortNotify(ctx)
		return false, nil
	})
}

// Epochs returns the current and reclaim epoch counters.
func (c *Coordinator) Epochs(ctx context.Context) (Epochs, error) {
	epochs, _, err := c.store.Read(ctx, c.objectName)
	return epochs, err
}

// Dump renders the GraceObject as operator-facing text: a summary line
// of the two epoch counters, a "member\tflags" header line, then one line
// per member, in
// deterministic (sorted) order, formatted as "<id>\t<NE-flags>\n" where
// the flags column is "N"/"-" then "E"/"-" (see Flags.String).
func (c *Coordinator) Dump(ctx context.Context) (string, error) {
	epochs, members, _, err := c.store.ReadPlusOmap(ctx, c.objectName)
	if err != nil {
		return "", err
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	_, _ = b.WriteString("cur=")
	_, _ = b.WriteString(strconv.FormatUint(epochs.CurrentEpoch, 10))
	_, _ = b.WriteString(" rec=")
	_, _ = b.WriteString(strconv.FormatUint(epochs.ReclaimEpoch, 10))
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString("member\tflags\n")
	for _, id := range ids {
		_, _ = b.WriteString(id)
		_, _ = b.WriteString("\t")
		_, _ = b.WriteString(members[id].String())
		_, _ = b.WriteString("\n")
	}
	return b.String(), nil
}

// retry runs op, which returns (retryable, err), up to maxConflictRetries
// times while it reports a retryable error, and gives up with
// ErrCodeNotRecoverable if every attempt is exhausted.
func (c *Coordinator) retry(ctx context.Context, op string, fn func() (retryable bool, err error)) error {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		retryable, err := fn()
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
		logger.Debug("grace coordinator retrying after conflict", "op", op, "object", c.objectName, "attempt", attempt)
	}
	return newError(ErrCodeNotRecoverable, "%s: exhausted retries on %q: %v", op, c.objectName, lastErr)
}

func (c *Coordinator) bestEffortNotify(ctx context.Context) {
	if err := c.store.Notify(ctx, c.objectName); err != nil {
		logger.Debug("grace notify failed, continuing", "object", c.objectName, "error", err)
	}
}
