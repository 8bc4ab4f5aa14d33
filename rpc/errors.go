package rpc

import "errors"

var (
	// ErrShortPacket is returned when decoding a datagram smaller than
	// the audio packet header.
	ErrShortPacket = errors.New("packet shorter than header")

	// ErrMalformedAnnouncement is returned when parsing a discovery
	// payload that is not a valid server announcement.
	ErrMalformedAnnouncement = errors.New("malformed server announcement")
)
