// Package connmgr implements the per-client connection admission state
// machine that gives an NFS cluster exactly-once semantics across
// replicas behind a load balancer: before a new connection from a client
// is admitted, every other replica is asked to drain (forcibly close) its
// connections from that same client, so at most one replica is ever
// executing requests from a given client at a time.
package connmgr

import (
	"context"
	"net"
	"time"

	"github.com/coregate/coregate/internal/invariant"
	"github.com/coregate/coregate/internal/logger"
)

// ManagerMetrics receives observations from a Manager for export via
// Prometheus. Implemented by internal/metrics; kept as an interface here
// so connmgr never imports the metrics package.
type ManagerMetrics interface {
	stateMetricsRecorder
	RecordConnectionStarted(result ConnectionStartedResult, elapsed time.Duration)
	RecordDrain(result DrainResult, elapsed time.Duration)
	RecordDrainedConnectionCount(result DrainResult, count int)
}

// Options configures a Manager. Zero value is a disabled manager: every
// connection is allowed immediately and no draining ever happens, which
// is the correct behavior for `enable_connection_manager: false`.
type Options struct {
	Enabled bool
	// Timeout bounds both a single activation attempt (waiting for peers
	// to drain) and a single local drain attempt.
	Timeout time.Duration
	// LeaseLifetime and DrainGraceExtension together determine how far a
	// client's NFSv4 lease is pushed out after this replica successfully
	// drains its connections for that client; see DESIGN.md OQ-1.
	LeaseLifetime       time.Duration
	DrainGraceExtension time.Duration
	Metrics             ManagerMetrics
}

// Manager is the Connection Manager (component C), built on top of the
// Transport Registry discipline (Transport/Connection) and the Client
// Directory (component B).
type Manager struct {
	opts      Options
	directory *Directory
	callbacks callbackCell
}

// NewManager constructs a Manager. Call SetCallback before any connection
// is admitted if Enabled is true; until it is set, activation uses the
// always-fail default callback rather than silently admitting connections
// it cannot prove are safe.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts, directory: NewDirectory()}
}

// SetCallback registers the drain-other-servers callback. May only be
// called once, or again after ClearCallback.
func (m *Manager) SetCallback(cb Callback) { m.callbacks.set(cb) }

// ClearCallback removes the registered callback and returns it. May only
// be called after SetCallback.
func (m *Manager) ClearCallback() Callback { return m.callbacks.clear() }

// ConnectionInit pre-allocates the per-transport Connection slot for a
// newly accepted socket. Must be called before ConnectionStarted.
func (m *Manager) ConnectionInit(conn net.Conn, peerAddr net.Addr) *Transport {
	t := NewTransport(conn, peerAddr)
	t.setConnection(newConnection(t, nil, false))
	t.setOnDestroy(m.finishConnection)
	return t
}

// shouldManage reports whether a connection from addr is subject to the
// connection manager's admission discipline at all: a disabled manager
// and a loopback peer are both excluded from management the same way,
// since neither can ever be served from more than one replica.
func (m *Manager) shouldManage(addr Addr) bool {
	return m.opts.Enabled && !addr.Loopback
}

// ConnectionStarted is called once the peer address for a newly accepted
// connection is known. If the connection manager is enabled, this blocks
// until every other cluster member has drained this client (or the
// configured timeout elapses), admitting the connection only if that
// succeeds.
func (m *Manager) ConnectionStarted(ctx context.Context, t *Transport) ConnectionStartedResult {
	start := time.Now()
	result := m.connectionStarted(ctx, t)
	if mx := m.opts.Metrics; mx != nil {
		mx.RecordConnectionStarted(result, time.Since(start))
	}
	return result
}

func (m *Manager) connectionStarted(ctx context.Context, t *Transport) ConnectionStartedResult {
	conn := t.connectionSlot()
	if conn == nil {
		invariant.Violation("connection_started on transport without a pre-allocated connection", "transport", t.ID)
	}

	addr := NormalizeAddr(t.PeerAddr)
	client := m.directory.getOrCreate(addr)
	conn.isManaged = m.shouldManage(addr)

	if !conn.isManaged {
		if client.release() {
			m.directory.forget(client)
		}
		conn.client = nil
		return Allow
	}

	conn.client = client

	deadline := time.Now().Add(m.opts.Timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	client.mu.Lock()
	m.tryActivateClientIfNeeded(waitCtx, client, addr, deadline)
	finalState := client.state
	if finalState == Active {
		client.addConnection(conn)
	}
	client.mu.Unlock()

	if finalState != Active {
		conn.client = nil
		conn.isManaged = false
		if client.release() {
			m.directory.forget(client)
		}
		return Drop
	}
	return Allow
}

// tryActivateClientIfNeeded is the single-pass activation attempt ported
// from try_activate_client_if_needed: it makes at most one attempt to
// move the client toward Active and returns; it never loops internally.
// Caller must hold client.mu.
func (m *Manager) tryActivateClientIfNeeded(ctx context.Context, client *Client, addr Addr, deadline time.Time) {
	switch client.state {
	case Drained:
		client.changeState(Activating, m.opts.Metrics)
		cb := m.callbacks.get()

		client.mu.Unlock()
		result := cb.Drain(ctx, cb.UserContext, addrNetAddr(addr), addr.Key, deadline)
		client.mu.Lock()

		if client.state != Activating {
			invariant.Violation("client left Activating state during peer drain callback", "client", addr.Key)
		}
		if result == DrainSuccess || result == DrainSuccessNoConnections {
			client.changeState(Active, m.opts.Metrics)
		} else {
			client.changeState(Drained, m.opts.Metrics)
		}
	case Activating:
		if err := client.waitForChange(ctx); err != nil {
			logger.Debug("activation wait ended without a state change", "client", addr.Key, "error", err)
		}
	case Active:
		// Already active: nothing to do.
	case Draining:
		// A new connection preempts an in-progress local drain.
		client.changeState(Active, m.opts.Metrics)
	}
}

func addrNetAddr(addr Addr) net.Addr {
	return addrShim{addr.Key}
}

// addrShim adapts the normalized key back into a net.Addr for callers of
// the drain callback that only need the string form plus Network().
type addrShim struct{ s string }

func (a addrShim) Network() string { return "tcp" }
func (a addrShim) String() string  { return a.s }

// ConnectionFinished is called when a connection's transport is
// destroyed. It releases the transport's reference; Transport.Release's
// destroy path guarantees the teardown below runs exactly once even if
// ConnectionFinished is called more than once for the same transport —
// once from the owning caller and once after a forced drain already tore
// the transport down, for instance.
func (m *Manager) ConnectionFinished(t *Transport) {
	t.Release()
}

// finishConnection is Transport.destroy's callback: for an unmanaged
// connection it is a no-op; otherwise it removes the connection from its
// client's set, wakes anyone draining this client, and releases (and, if
// that was the last reference, forgets) the client.
func (m *Manager) finishConnection(conn *Connection) {
	if !conn.isManaged {
		return
	}

	client := conn.client
	client.mu.Lock()
	client.removeConnection(conn)
	client.mu.Unlock()

	if client.release() {
		m.directory.forget(client)
	}
}

// DrainAndDisconnectLocal forcibly closes this replica's connections from
// the client at addr and waits for them to close, or for the configured
// timeout. It never creates a Client Directory entry: if no client has
// ever connected here, drain is vacuously successful.
func (m *Manager) DrainAndDisconnectLocal(ctx context.Context, addr net.Addr) DrainResult {
	start := time.Now()
	client := m.directory.lookup(NormalizeAddr(addr))
	result := m.drainAndDisconnectLocal(ctx, client)
	if client != nil && (result == DrainSuccess || result == DrainSuccessNoConnections) {
		// Mandatory side effect of a successful drain (spec.md §9,
		// property #4): push the client's lease out past both the
		// standard lifetime and the grace extension, so a slow peer
		// finishing its own drain can never race this one for the lock.
		// client is captured before the drain runs because a successful
		// drain typically drops the Client Directory's last reference and
		// forgets the entry; the Client itself stays valid to record the
		// deadline on even after it's no longer reachable by lookup.
		client.setLeaseDeadline(m.LeaseDeadline(time.Now()))
	}
	if mx := m.opts.Metrics; mx != nil {
		mx.RecordDrain(result, time.Since(start))
	}
	return result
}

func (m *Manager) drainAndDisconnectLocal(ctx context.Context, client *Client) DrainResult {
	if client == nil {
		return DrainSuccessNoConnections
	}

	deadline := time.Now().Add(m.opts.Timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	client.mu.Lock()
	defer client.mu.Unlock()

	switch client.state {
	case Drained:
		return DrainSuccessNoConnections
	case Activating:
		// A connection is already in flight trying to activate; let it
		// win rather than race it for the state.
		return DrainFailed
	case Active:
		return m.tryDrainSelf(waitCtx, client, deadline)
	case Draining:
		return m.waitOutDrain(waitCtx, client)
	default:
		invariant.Violation("unreachable client state", "state", client.state)
		return DrainFailed
	}
}

// tryDrainSelf drains client's local connections. Caller must hold
// client.mu and client.state must be Active; it is released while forced
// socket closes happen and re-acquired to resolve the outcome.
func (m *Manager) tryDrainSelf(ctx context.Context, client *Client, deadline time.Time) DrainResult {
	client.changeState(Draining, m.opts.Metrics)

	conns := make([]*Connection, 0, len(client.connections))
	for c := range client.connections {
		conns = append(conns, c)
	}
	if len(conns) == 0 {
		client.changeState(Drained, m.opts.Metrics)
		return DrainSuccessNoConnections
	}

	client.mu.Unlock()
	for _, c := range conns {
		c.transport.forceDestroy()
	}
	client.mu.Lock()

	for client.state == Draining && len(client.connections) > 0 {
		if err := client.waitForChange(ctx); err != nil {
			break
		}
	}

	result := m.resolveDrainOutcome(client)
	if mx := m.opts.Metrics; mx != nil {
		mx.RecordDrainedConnectionCount(result, len(conns))
	}
	return result
}

// waitOutDrain is entered when drain_and_disconnect_local observes a
// client already being drained locally (e.g. a duplicate peer request).
// It waits for that drain to finish rather than starting a second one.
func (m *Manager) waitOutDrain(ctx context.Context, client *Client) DrainResult {
	for client.state == Draining {
		if err := client.waitForChange(ctx); err != nil {
			break
		}
	}
	return m.resolveDrainOutcome(client)
}

func (m *Manager) resolveDrainOutcome(client *Client) DrainResult {
	switch client.state {
	case Active:
		// A new connection preempted the drain.
		return DrainFailed
	case Draining:
		if len(client.connections) == 0 {
			client.changeState(Drained, m.opts.Metrics)
			return DrainSuccess
		}
		client.changeState(Active, m.opts.Metrics)
		return DrainFailedTimeout
	case Drained:
		return DrainSuccess
	default:
		invariant.Violation("unreachable client state after drain", "state", client.state)
		return DrainFailed
	}
}

// LeaseDeadline computes the NFSv4 lease deadline to apply after a
// successful drain completes for a client, per DESIGN.md OQ-1: the lease
// must outlive not just the standard lease lifetime but also the worst
// case time this cluster allows a slow peer to finish (or be evicted
// from) its own drain, so a slow-but-eventually-successful peer can never
// cause a lock to be released out from under a client that is still
// waiting to reclaim it on the new replica. DrainAndDisconnectLocal calls
// this and records the result on the Client after every successful
// drain.
func (m *Manager) LeaseDeadline(now time.Time) time.Time {
	return now.Add(m.opts.LeaseLifetime + m.opts.DrainGraceExtension)
}
