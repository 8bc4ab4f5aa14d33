// Package rpc defines the wire formats used between broadcasters and
// listeners.
//
// Two protocols are used, both over UDP:
//  1. discovery, exchanged on a well-known port: listeners broadcast a
//     DISCOVER request and broadcasters answer (and periodically announce)
//     with SERVER:<port>.
//  2. streaming: broadcasters send one AudioPacket per datagram to every
//     subscribed listener.
package rpc

import "time"

const (
	// DiscoveryPort is the well-known UDP port of the discovery protocol.
	DiscoveryPort = 50000

	// DefaultStreamPort is the default UDP port audio packets are sent to
	// and received on.
	DefaultStreamPort = 50001

	// DiscoveryInterval is the interval between announcements broadcast by
	// a server.
	DiscoveryInterval = time.Second

	// DiscoveryTimeout is how long a listener waits for a server reply.
	DiscoveryTimeout = 5 * time.Second

	// MaxSafeDatagramSize is the largest datagram that fits an ethernet
	// frame without IP fragmentation.
	MaxSafeDatagramSize = 1472

	// MaxDatagramSize is the largest possible UDP payload over IPv4.
	MaxDatagramSize = 65507
)
