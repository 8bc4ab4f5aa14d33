package netutils

import (
	"context"
	"testing"

	"github.com/companyzero/lanaudio/internal/assert"
)

// TestListenUDPReuseAddr tests that a port bound with address reuse can be
// rebound after the first socket is closed.
func TestListenUDPReuseAddr(t *testing.T) {
	ctx := context.Background()
	c1, err := ListenUDP(ctx, "127.0.0.1:0", true)
	assert.NilErr(t, err)
	addr := LocalAddrPort(c1)
	assert.BoolIs(t, addr.Port() != 0, true)
	assert.NilErr(t, c1.Close())

	c2, err := ListenUDP(ctx, addr.String(), true)
	assert.NilErr(t, err)
	assert.DeepEqual(t, LocalAddrPort(c2), addr)
	assert.NilErr(t, c2.Close())
}

func TestListenUDPInvalidAddr(t *testing.T) {
	_, err := ListenUDP(context.Background(), "not an addr", false)
	assert.NonNilErr(t, err)
}

// TestSocketOptions tests the DSCP and read buffer helpers on a loopback
// socket.
func TestSocketOptions(t *testing.T) {
	c, err := ListenUDP(context.Background(), "127.0.0.1:0", false)
	assert.NilErr(t, err)
	defer c.Close()

	assert.NilErr(t, SetDSCP(c, DSCPExpeditedForwarding))

	assert.NilErr(t, c.SetReadBuffer(64*1024))
	size, err := ReadBufferSize(c)
	assert.NilErr(t, err)
	if size <= 0 {
		t.Fatalf("unexpected read buffer size %d", size)
	}
}

// TestListenDualStack tests binding TCP listeners for an explicit IPv4 host.
func TestListenDualStack(t *testing.T) {
	ls, err := Listen("127.0.0.1:0")
	assert.NilErr(t, err)
	assert.DeepEqual(t, len(ls), 1)
	for _, l := range ls {
		l.Close()
	}

	_, err = Listen("127.0.0.1")
	assert.NonNilErr(t, err)
	_, err = Listen("example.com:80")
	assert.NonNilErr(t, err)
}
