package rpc

import (
	"testing"

	"github.com/companyzero/lanaudio/internal/assert"
)

func TestServerAnnouncement(t *testing.T) {
	assert.DeepEqual(t, string(ServerAnnouncement(50001)), "SERVER:50001")
	assert.DeepEqual(t, string(ServerAnnouncement(1)), "SERVER:1")
}

// TestParseServerAnnouncement tests parsing valid and malformed server
// announcements.
func TestParseServerAnnouncement(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    uint16
		wantErr error
	}{
		{name: "valid", in: "SERVER:50001", want: 50001},
		{name: "max port", in: "SERVER:65535", want: 65535},
		{name: "port overflow", in: "SERVER:65536", wantErr: ErrMalformedAnnouncement},
		{name: "zero port", in: "SERVER:0", wantErr: ErrMalformedAnnouncement},
		{name: "negative port", in: "SERVER:-1", wantErr: ErrMalformedAnnouncement},
		{name: "no port", in: "SERVER:", wantErr: ErrMalformedAnnouncement},
		{name: "trailing newline", in: "SERVER:50001\n", wantErr: ErrMalformedAnnouncement},
		{name: "lowercase", in: "server:50001", wantErr: ErrMalformedAnnouncement},
		{name: "request", in: "DISCOVER", wantErr: ErrMalformedAnnouncement},
		{name: "empty", in: "", wantErr: ErrMalformedAnnouncement},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseServerAnnouncement([]byte(tc.in))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NilErr(t, err)
			assert.DeepEqual(t, got, tc.want)
		})
	}
}

func TestIsDiscoverRequest(t *testing.T) {
	assert.BoolIs(t, IsDiscoverRequest([]byte("DISCOVER")), true)
	assert.BoolIs(t, IsDiscoverRequest([]byte("DISCOVER\n")), false)
	assert.BoolIs(t, IsDiscoverRequest([]byte("discover")), false)
	assert.BoolIs(t, IsDiscoverRequest([]byte("SERVER:50001")), false)
	assert.BoolIs(t, IsDiscoverRequest(nil), false)
}
