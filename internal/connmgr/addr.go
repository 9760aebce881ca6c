package connmgr

import (
	"net"
	"net/netip"
)

// clientKey returns the normalized key used to look up a Client for the
// given peer address, along with whether the address is loopback.
//
// IPv4-mapped IPv6 addresses ("::ffff:a.b.c.d") are folded to their IPv4
// form so that the same physical client can never be tracked under two
// different keys depending on which socket family accepted it.
func clientKey(addr net.Addr) (key string, loopback bool) {
	host := addrHost(addr)
	if host.IsValid() {
		if host.Is4In6() {
			host = netip.AddrFrom4(host.As4())
		}
		host = host.Unmap()
		return host.String(), host.IsLoopback()
	}
	// Fall back to the raw string form (e.g. a non-IP transport address);
	// such addresses are never loopback by definition.
	return addr.String(), false
}

// addrHost extracts the IP portion of a net.Addr, returning an invalid
// netip.Addr if the address doesn't carry a parseable IP (e.g. a unix
// socket path).
func addrHost(addr net.Addr) netip.Addr {
	switch a := addr.(type) {
	case *net.TCPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			return netip.Addr{}
		}
		return ip
	case *net.UDPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			return netip.Addr{}
		}
		return ip
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			host = addr.String()
		}
		ip, err := netip.ParseAddr(host)
		if err != nil {
			return netip.Addr{}
		}
		return ip
	}
}
