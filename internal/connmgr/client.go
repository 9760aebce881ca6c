package connmgr

import (
	"context"
	"sync"
	"time"

	"github.com/coregate/coregate/internal/invariant"
)

// Client tracks one cluster-wide client identity (all connections sharing
// a source address) and its connection-manager state machine.
//
// Go has no timed condition-variable wait, so the cond_change broadcast in
// the original is reimplemented with a channel that is closed and replaced
// on every state or connection-set change: a waiter captures the current
// channel, unlocks, and selects on it against a deadline. Closing a
// channel wakes every waiter at once, the same fan-out a pthread_cond
// broadcast gives.
type Client struct {
	Key      string
	Loopback bool

	mu          sync.Mutex
	state       State
	connections map[*Connection]struct{}
	changed     chan struct{}

	refCount      int32
	leaseDeadline time.Time
}

func newClient(key string, loopback bool) *Client {
	return &Client{
		Key:         key,
		Loopback:    loopback,
		state:       Drained,
		connections: make(map[*Connection]struct{}),
		changed:     make(chan struct{}),
	}
}

// State returns the client's current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionCount returns the number of connections currently tracked for
// this client. It is always exactly len(connections); there is no
// separate counter to drift out of sync with the set.
func (c *Client) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.connections)
}

// changeState transitions the client to "to", asserting the transition is
// legal, updates metrics, and wakes every waiter. Caller must hold c.mu.
func (c *Client) changeState(to State, metrics stateMetricsRecorder) {
	if !isTransitionValid(c.state, to) {
		invariant.Violation("illegal client state transition",
			"client", c.Key, "from", c.state.String(), "to", to.String())
	}
	from := c.state
	c.state = to
	if metrics != nil {
		metrics.RecordStateChange(from, to)
	}
	close(c.changed)
	c.changed = make(chan struct{})
}

// waitForChange blocks until the client's state or connection set changes,
// or ctx is done, whichever happens first. Caller must hold c.mu; it is
// released while waiting and re-acquired before returning.
func (c *Client) waitForChange(ctx context.Context) error {
	ch := c.changed
	c.mu.Unlock()
	defer c.mu.Lock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) addConnection(conn *Connection) {
	c.connections[conn] = struct{}{}
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Client) removeConnection(conn *Connection) {
	delete(c.connections, conn)
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Client) hold() {
	c.mu.Lock()
	c.refCount++
	c.mu.Unlock()
}

// release drops a reference and reports whether the client became
// unreferenced (the caller is then responsible for removing it from the
// directory).
func (c *Client) release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refCount--
	if c.refCount < 0 {
		invariant.Violation("client refcount went negative", "client", c.Key)
	}
	return c.refCount == 0
}

// setLeaseDeadline records the lease deadline computed after a
// successful local drain for this client.
func (c *Client) setLeaseDeadline(t time.Time) {
	c.mu.Lock()
	c.leaseDeadline = t
	c.mu.Unlock()
}

// LeaseDeadline returns the lease deadline last recorded after a
// successful drain_and_disconnect_local for this client, or the zero
// Time if a drain has never completed successfully for it.
func (c *Client) LeaseDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaseDeadline
}

// stateMetricsRecorder is implemented by internal/metrics to keep
// per-state gauges in sync without connmgr importing the metrics package
// directly (mirrors the teacher's constructor-indirection to avoid an
// import cycle between the domain package and its metrics adapter).
type stateMetricsRecorder interface {
	RecordStateChange(from, to State)
}
