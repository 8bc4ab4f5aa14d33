package e2etests

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/companyzero/lanaudio/internal/assert"
	"github.com/companyzero/lanaudio/internal/audio"
	"github.com/companyzero/lanaudio/internal/netutils"
	"github.com/companyzero/lanaudio/internal/testutils"
	"github.com/companyzero/lanaudio/stream/receiver"
	"github.com/companyzero/lanaudio/stream/sender"
	"github.com/decred/slog"
)

type testScaffoldCfg struct {
	showLog bool
}

type testScaffold struct {
	t      testing.TB
	ctx    context.Context
	cancel func()
	logBknd func(subsys string) slog.Logger
}

func newTestScaffold(t *testing.T, cfg testScaffoldCfg) *testScaffold {
	t.Helper()
	bknd := testutils.NewTestLogBackend(t, testutils.WithShowLog(cfg.showLog))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &testScaffold{
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		logBknd: bknd.NamedSubLogger("e2e", nil),
	}
}

// bindLoopback binds a socket on an ephemeral loopback port.
func (ts *testScaffold) bindLoopback() *net.UDPConn {
	ts.t.Helper()
	conn, err := netutils.ListenUDP(ts.ctx, "127.0.0.1:0", false)
	assert.NilErr(ts.t, err)
	ts.t.Cleanup(func() { conn.Close() })
	return conn
}

func (ts *testScaffold) newSender(opts ...sender.Option) *sender.Sender {
	ts.t.Helper()
	opts = append([]sender.Option{
		sender.WithLogger(ts.logBknd("SEND")),
		sender.WithBindAddr("127.0.0.1:0"),
		sender.WithDiscoveryAddr("127.0.0.1:0"),
		sender.WithReportStatsInterval(0),
	}, opts...)
	s, err := sender.New(opts...)
	assert.NilErr(ts.t, err)
	return s
}

func (ts *testScaffold) newReceiver(opts ...receiver.Option) *receiver.Receiver {
	ts.t.Helper()
	opts = append([]receiver.Option{
		receiver.WithLogger(ts.logBknd("RECV")),
		receiver.WithDiscoveryBindAddr("127.0.0.1:0"),
		receiver.WithDiscoveryTimeout(5 * time.Second),
		receiver.WithReportStatsInterval(0),
	}, opts...)
	r, err := receiver.New(opts...)
	assert.NilErr(ts.t, err)
	ts.t.Cleanup(func() { r.Close() })
	return r
}

// runSender runs the sender and returns the chan to send chunks to and the
// chan where the result of Run is written.
func (ts *testScaffold) runSender(s *sender.Sender) (chan audio.SampleChunk, chan error) {
	chunks := make(chan audio.SampleChunk, audio.ChunkQueueSize)
	errChan := make(chan error, 1)
	go func() { errChan <- s.Run(ts.ctx, chunks) }()
	return chunks, errChan
}

// produceChunks sends a chunk of the given size every interval until the
// context is done, then closes the channel.
func produceChunks(ctx context.Context, chunks chan<- audio.SampleChunk,
	size int, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(chunks)
	for i := 0; ; i++ {
		chunk := make(audio.SampleChunk, size)
		chunk[0] = float32(i%1000) / 1000
		select {
		case chunks <- chunk:
		case <-ctx.Done():
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
