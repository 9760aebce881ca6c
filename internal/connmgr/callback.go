package connmgr

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/coregate/coregate/internal/invariant"
	"github.com/coregate/coregate/internal/logger"
)

// DrainFunc sends a "drain this client" request to every other cluster
// member and blocks until they have all confirmed (or the deadline
// passes). It is the only hook this package needs from the cluster peer
// protocol; how the request actually reaches other replicas is entirely
// up to the caller.
type DrainFunc func(ctx context.Context, userContext any, addr net.Addr, addrStr string, deadline time.Time) DrainResult

// Callback bundles the drain function with the opaque context it closes
// over, mirroring connection_manager__callback_context_t.
type Callback struct {
	UserContext any
	Drain       DrainFunc
}

// callbackCell is the single process-wide registration slot. set/clear
// must alternate: set twice without an intervening clear, or clear
// without a prior set, is a programmer error in wiring, not a runtime
// condition to tolerate.
type callbackCell struct {
	mu       sync.RWMutex
	callback *Callback
}

func (c *callbackCell) set(cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callback != nil {
		invariant.Violation("drain callback set twice without an intervening clear")
	}
	c.callback = &cb
}

func (c *callbackCell) clear() Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callback == nil {
		invariant.Violation("drain callback cleared without having been set")
	}
	cb := *c.callback
	c.callback = nil
	return cb
}

// get returns the registered callback, or the default (always-fail)
// callback if none has been registered. A connection manager that is
// enabled but never had a callback wired in treats every activation as
// undrainable rather than silently admitting connections it could not
// actually prove safe.
func (c *callbackCell) get() Callback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.callback == nil {
		return Callback{Drain: defaultDrainCallback}
	}
	return *c.callback
}

func defaultDrainCallback(_ context.Context, _ any, _ net.Addr, addrStr string, _ time.Time) DrainResult {
	logger.Error("no drain callback registered, refusing to activate client", "client", addrStr)
	return DrainFailed
}
