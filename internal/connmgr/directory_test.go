package connmgr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryGetOrCreateReusesEntry(t *testing.T) {
	d := NewDirectory()
	addr := NormalizeAddr(tcpAddr("192.168.1.10", 2049))

	c1 := d.getOrCreate(addr)
	c2 := d.getOrCreate(addr)

	assert.Same(t, c1, c2)
}

func TestDirectoryForgetOnlyRemovesMatchingEntry(t *testing.T) {
	d := NewDirectory()
	addr := NormalizeAddr(tcpAddr("192.168.1.11", 2049))

	c1 := d.getOrCreate(addr)
	d.forget(c1)
	require.Nil(t, d.lookup(addr))

	c2 := d.getOrCreate(addr)
	// A stale reference to a client that has already been replaced must
	// not evict the new entry.
	d.forget(c1)
	assert.Same(t, c2, d.lookup(addr))
}

func TestNormalizeAddrFoldsIPv4MappedIPv6(t *testing.T) {
	v4 := NormalizeAddr(&net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 2049})
	v4in6 := NormalizeAddr(&net.TCPAddr{IP: net.ParseIP("::ffff:10.1.2.3"), Port: 2049})

	assert.Equal(t, v4.Key, v4in6.Key)
}

func TestNormalizeAddrDetectsLoopback(t *testing.T) {
	a := NormalizeAddr(tcpAddr("127.0.0.1", 2049))
	assert.True(t, a.Loopback)

	b := NormalizeAddr(tcpAddr("10.0.0.1", 2049))
	assert.False(t, b.Loopback)
}
