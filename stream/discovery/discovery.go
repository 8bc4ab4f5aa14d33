// Package discovery implements the broadcast rendezvous that allows listeners
// to find a broadcaster without prior configuration.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/companyzero/lanaudio/rpc"
	"github.com/decred/slog"
)

// DefaultBroadcastAddr is the limited broadcast address on the discovery port.
var DefaultBroadcastAddr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), rpc.DiscoveryPort)

// readBufferSize is the size of the buffer for discovery datagrams. Valid
// payloads are much smaller than this.
const readBufferSize = 64

// cancelReads makes pending and future reads on conn fail once the context is
// done. The returned func must be called before conn is read again with a
// different context.
func cancelReads(ctx context.Context, conn *net.UDPConn) func() {
	afterDone := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		close(afterDone)
	})
	return func() {
		if !stop() {
			<-afterDone
		}
	}
}

// Discover sends a discovery request to target using conn and waits up to
// timeout for the first valid server announcement. It returns the address of
// the server's stream socket.
//
// Malformed replies are ignored. If no server replies in time, this returns
// ErrNoServerFound.
func Discover(ctx context.Context, conn *net.UDPConn, target netip.AddrPort,
	timeout time.Duration, log slog.Logger) (netip.AddrPort, error) {

	if log == nil {
		log = slog.Disabled
	}

	_, err := conn.WriteToUDPAddrPort([]byte(rpc.DiscoverRequest), target)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: unable to send discovery "+
			"request to %s: %v", ErrNetwork, target, err)
	}
	log.Debugf("Sent discovery request to %s", target)

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	stop := cancelReads(ctx, conn)
	defer func() {
		stop()
		conn.SetReadDeadline(time.Time{})
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		switch {
		case ctx.Err() != nil:
			return netip.AddrPort{}, ctx.Err()

		case errors.Is(err, os.ErrDeadlineExceeded):
			return netip.AddrPort{}, fmt.Errorf("%w after %s", ErrNoServerFound, timeout)

		case errors.Is(err, net.ErrClosed):
			return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrNetwork, err)

		case err != nil:
			// Errors such as ICMP port unreachable notices are
			// reported by some platforms on the next read.
			log.Debugf("Ignoring discovery read error: %v", err)
			continue
		}

		port, err := rpc.ParseServerAnnouncement(buf[:n])
		if err != nil {
			log.Tracef("Ignoring %d bytes from %s: %v", n, from, err)
			continue
		}

		server := netip.AddrPortFrom(from.Addr().Unmap(), port)
		log.Debugf("Server announced by %s at %s", from, server)
		return server, nil
	}
}
