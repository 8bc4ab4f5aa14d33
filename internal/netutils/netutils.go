package netutils

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Listen binds to the specified address, both on tcp4 and tcp6 when an empty
// host is specified.
func Listen(addr string) ([]net.Listener, error) {
	var hasIPv4, hasIPv6 bool

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("`%s` is not a normalized "+
			"listener address", addr)
	}

	// Empty host or host of * on plan9 is both IPv4 and IPv6.
	if host == "" || (host == "*" && runtime.GOOS == "plan9") {
		hasIPv4 = true
		hasIPv6 = true
	} else {
		// Remove the IPv6 zone from the host, if present.  The zone
		// prevents ParseIP from correctly parsing the IP address.
		zoneIndex := strings.Index(host, "%")
		if zoneIndex != -1 {
			host = host[:zoneIndex]
		}

		ip := net.ParseIP(host)
		switch {
		case ip == nil:
			return nil, fmt.Errorf("`%s` is not a valid IP address", host)
		case ip.To4() == nil:
			hasIPv6 = true
		default:
			hasIPv4 = true
		}
	}
	listeners := make([]net.Listener, 0, 2)
	if hasIPv4 {
		listener, err := net.Listen("tcp4", addr)
		if err != nil {
			return nil, fmt.Errorf("unable to listen on tcp4:%s: %v", addr, err)
		}
		listeners = append(listeners, listener)
	}
	if hasIPv6 {
		listener, err := net.Listen("tcp6", addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return nil, fmt.Errorf("unable to listen on tcp6:%s: %v", addr, err)
		}
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

// ListenUDP binds an IPv4 UDP socket to the given address. When reuseAddr is
// true, the address may be rebound immediately after a previous socket bound
// to it is closed, which allows restarting a process bound to a well-known
// port.
func ListenUDP(ctx context.Context, addr string, reuseAddr bool) (*net.UDPConn, error) {
	lc := net.ListenConfig{}
	if reuseAddr {
		lc.Control = func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = setReuseAddr(fd)
			})
			if err != nil {
				return err
			}
			return sockErr
		}
	}

	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// LocalAddrPort returns the local address of the UDP socket.
func LocalAddrPort(conn *net.UDPConn) netip.AddrPort {
	ap := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// DSCPExpeditedForwarding is the TOS byte value for the EF (expedited
// forwarding) DSCP class, used for latency sensitive traffic.
const DSCPExpeditedForwarding = 0xb8

// SetDSCP marks outbound datagrams of the socket with the given TOS (IPv4) or
// traffic class (IPv6).
func SetDSCP(conn *net.UDPConn, tos int) error {
	if LocalAddrPort(conn).Addr().Is4() {
		return ipv4.NewConn(conn).SetTOS(tos)
	}
	return ipv6.NewConn(conn).SetTrafficClass(tos)
}

// ReadBufferSize returns the size of the kernel receive buffer of the socket.
func ReadBufferSize(conn *net.UDPConn) (int, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("unable to extract SyscallConn: %v", err)
	}

	var size int
	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		size, sockErr = getReadBufferSize(fd)
	})
	if err == nil {
		err = sockErr
	}
	return size, err
}
