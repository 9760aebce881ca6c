package connmgr

import (
	"net"
	"sync"
)

// Directory is the Client Directory (component B): a process-wide map from
// normalized client address to the Client tracking its connection-manager
// state. Entries are reference-counted and removed once no Connection
// still references them, so the directory never grows unbounded with
// clients that have fully disconnected.
type Directory struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewDirectory creates an empty Client Directory.
func NewDirectory() *Directory {
	return &Directory{clients: make(map[string]*Client)}
}

// getOrCreate returns the Client for addr, creating and inserting one if
// absent, and holds a reference on the caller's behalf. Callers must
// release() the reference exactly once, normally when the Connection
// backed by this reference finishes.
func (d *Directory) getOrCreate(addr Addr) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[addr.Key]
	if !ok {
		c = newClient(addr.Key, addr.Loopback)
		d.clients[addr.Key] = c
	}
	c.hold()
	return c
}

// forget removes c from the directory if it is still the entry registered
// under its key; it is a no-op if a newer Client has since replaced it.
func (d *Directory) forget(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.clients[c.Key]; ok && cur == c {
		delete(d.clients, c.Key)
	}
}

// lookup returns the Client currently registered for addr without
// creating one or taking a reference, or nil if none exists. Used by
// drain_and_disconnect_local, which must not fabricate a record for a
// client nobody has connected to on this replica.
func (d *Directory) lookup(addr Addr) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[addr.Key]
}

// Addr is the normalized identity of a client: the fold applied to raw
// net.Addr values so the same physical client is never tracked under two
// keys (e.g. an IPv4-mapped IPv6 form vs. its IPv4 form).
type Addr struct {
	Key      string
	Loopback bool
}

// NormalizeAddr derives the Client Directory key for a raw peer address.
func NormalizeAddr(addr net.Addr) Addr {
	key, loopback := clientKey(addr)
	return Addr{Key: key, Loopback: loopback}
}
