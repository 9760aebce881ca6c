package connmgr

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coregate/coregate/internal/invariant"
	"github.com/coregate/coregate/internal/logger"
)

// Transport wraps one accepted socket. The connection manager never owns
// the socket's lifecycle end-to-end (that belongs to the RPC server that
// accepted it); it only needs enough access to force-close the socket
// during a drain and to attach its own per-transport Connection slot.
//
// Transport carries its own atomic refcount and destroy path, mirroring
// the original's Transport::hold/Transport::release: Release at zero
// triggers destroy, which is guaranteed to run its teardown exactly once
// even if Release is called more than once — by the owning caller and
// independently by a forced drain that already tore the socket down.
type Transport struct {
	ID       string
	Conn     net.Conn
	PeerAddr net.Addr

	mu         sync.Mutex
	connection *Connection

	refCount    int32
	destroyOnce sync.Once
	onDestroy   func(*Connection)
}

// NewTransport wraps an accepted connection for connection-manager
// tracking. peerAddr is taken separately from conn.RemoteAddr() because
// proxy-protocol deployments learn the real client address only after the
// first bytes on the wire, same as the original's comment on
// connection_started. The returned Transport starts with a refcount of
// one, representing the caller's own reference.
func NewTransport(conn net.Conn, peerAddr net.Addr) *Transport {
	return &Transport{
		ID:       uuid.NewString(),
		Conn:     conn,
		PeerAddr: peerAddr,
		refCount: 1,
	}
}

// Hold atomically increments the transport's refcount.
func (t *Transport) Hold() {
	atomic.AddInt32(&t.refCount, 1)
}

// Release atomically decrements the transport's refcount. The caller
// that drives it to zero (or below, if Release is ever called more times
// than Hold) runs destroy; every other caller, including one racing it
// concurrently, is a safe no-op — destroy's own teardown body runs at
// most once.
func (t *Transport) Release() {
	if atomic.AddInt32(&t.refCount, -1) <= 0 {
		t.destroyOnce.Do(t.destroy)
	}
}

// setOnDestroy registers the callback destroy invokes with whatever
// Connection was attached, exactly once. Must be called before the first
// Release.
func (t *Transport) setOnDestroy(fn func(*Connection)) {
	t.onDestroy = fn
}

// destroy performs the Transport Registry's destroy sequence: re-arm
// SO_LINGER for an immediate RST, shutdown+close the fd, and invoke the
// connection_finished callback exactly once. Reached only through
// destroyOnce, so it is infallible to call Release an arbitrary number of
// extra times on an already-destroyed Transport.
func (t *Transport) destroy() {
	if tcp, ok := t.Conn.(*net.TCPConn); ok {
		if err := tcp.SetLinger(0); err != nil {
			logger.Warn("failed to set SO_LINGER before forced close", "transport", t.ID, "error", err)
		}
	}
	if err := t.Conn.Close(); err != nil {
		logger.Debug("close returned error", "transport", t.ID, "error", err)
	}
	if c := t.clearConnection(); c != nil && t.onDestroy != nil {
		t.onDestroy(c)
	}
}

// setConnection attaches the manager's per-transport state. Called once,
// from connection_started; fatal if called twice.
func (t *Transport) setConnection(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connection != nil {
		invariant.Violation("transport already has a connection slot", "transport", t.ID)
	}
	t.connection = c
}

// connectionSlot returns the attached Connection, or nil if none has been
// assigned (or it was already cleared by destroy).
func (t *Transport) connectionSlot() *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connection
}

// clearConnection detaches the per-transport state, returning what was
// attached, or nil if nothing was (or it was already cleared). Unlike the
// rest of this package's invariant checks, this one does not abort the
// process: destroy must remain safe under a concurrent or repeated call,
// per spec, so finding nothing attached is simply reported as such.
func (t *Transport) clearConnection() *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.connection
	t.connection = nil
	return c
}

// forceDestroy aborts the underlying socket with an immediate RST instead
// of a graceful FIN: it re-arms SO_LINGER and releases the transport's
// reference, which (per Release's contract) runs destroy if this was the
// last reference. This is used only during forced draining, never as the
// connection's steady-state close path: a lingering RST tells the peer
// unambiguously that in-flight requests were discarded rather than
// completed, which is exactly what draining needs to communicate.
func (t *Transport) forceDestroy() {
	if tcp, ok := t.Conn.(*net.TCPConn); ok {
		if err := tcp.SetLinger(0); err != nil {
			logger.Warn("failed to set SO_LINGER before forced close", "transport", t.ID, "error", err)
		}
	}
	t.Release()
}

// drainDeadline computes a single "now + timeout" deadline for a whole
// drain pass rather than one per connection. The manager does not call
// it; it computes its deadlines inline.
func drainDeadline(timeout time.Duration) time.Time {
	return time.Now().Add(timeout)
}
