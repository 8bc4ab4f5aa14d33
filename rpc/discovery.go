package rpc

import (
	"bytes"
	"fmt"
	"strconv"
)

// DiscoverRequest is the literal payload of a discovery request.
const DiscoverRequest = "DISCOVER"

// serverAnnouncementPrefix prefixes the stream port in server replies and
// announcements.
const serverAnnouncementPrefix = "SERVER:"

// IsDiscoverRequest returns true if b is a discovery request.
func IsDiscoverRequest(b []byte) bool {
	return string(b) == DiscoverRequest
}

// ServerAnnouncement returns the payload a server uses to reply to discovery
// requests and to announce itself.
func ServerAnnouncement(streamPort uint16) []byte {
	return strconv.AppendUint([]byte(serverAnnouncementPrefix), uint64(streamPort), 10)
}

// ParseServerAnnouncement parses a server announcement and returns the
// announced stream port.
func ParseServerAnnouncement(b []byte) (uint16, error) {
	portStr, ok := bytes.CutPrefix(b, []byte(serverAnnouncementPrefix))
	if !ok {
		return 0, fmt.Errorf("%w: missing prefix", ErrMalformedAnnouncement)
	}
	port, err := strconv.ParseUint(string(portStr), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedAnnouncement, err)
	}
	if port == 0 {
		return 0, fmt.Errorf("%w: zero port", ErrMalformedAnnouncement)
	}
	return uint16(port), nil
}
