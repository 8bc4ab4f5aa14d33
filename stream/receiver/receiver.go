// Package receiver implements the listener side of the stream: it finds a
// broadcaster through discovery and turns the received datagrams back into
// sample chunks.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/companyzero/lanaudio/internal/audio"
	"github.com/companyzero/lanaudio/internal/metrics"
	"github.com/companyzero/lanaudio/internal/netutils"
	"github.com/companyzero/lanaudio/rpc"
	"github.com/companyzero/lanaudio/stream/discovery"
	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// config determines a receiver config.
type config struct {
	log               slog.Logger
	discLog           slog.Logger
	bindAddr          string
	discoveryBindAddr string
	discoveryTarget   netip.AddrPort
	discoveryTimeout  time.Duration
	promAddr          string
	readBufferSize    int
	packetSize        int
	streamConn        *net.UDPConn

	statsReportInterval time.Duration
}

// fillConfig fills a new config with the default config values, then applies
// all specified options.
func fillConfig(opts ...Option) config {
	cfg := config{
		log:                 slog.Disabled,
		bindAddr:            net.JoinHostPort("0.0.0.0", strconv.Itoa(rpc.DefaultStreamPort)),
		discoveryBindAddr:   "0.0.0.0:0",
		discoveryTarget:     discovery.DefaultBroadcastAddr,
		discoveryTimeout:    rpc.DiscoveryTimeout,
		readBufferSize:      1 << 20,
		packetSize:          audio.DefaultCaptureConfig().PacketSize(),
		statsReportInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.discLog == nil {
		cfg.discLog = cfg.log
	}
	return cfg
}

// Option is a functional receiver config option.
type Option func(c *config)

// WithLogger sets up the receiver to use the logger.
func WithLogger(l slog.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithDiscoveryLogger sets the logger used during discovery. It defaults to
// the receiver's logger.
func WithDiscoveryLogger(l slog.Logger) Option {
	return func(c *config) {
		c.discLog = l
	}
}

// WithBindAddr sets the address of the socket packets are received on.
func WithBindAddr(addr string) Option {
	return func(c *config) {
		c.bindAddr = addr
	}
}

// WithStreamConn sets an already bound socket to receive packets on. When
// set, the bind address is ignored.
func WithStreamConn(conn *net.UDPConn) Option {
	return func(c *config) {
		c.streamConn = conn
	}
}

// WithDiscoveryBindAddr sets the address of the socket used to send discovery
// requests. It defaults to an ephemeral port.
func WithDiscoveryBindAddr(addr string) Option {
	return func(c *config) {
		c.discoveryBindAddr = addr
	}
}

// WithDiscoveryTarget sets the address discovery requests are sent to.
func WithDiscoveryTarget(addr netip.AddrPort) Option {
	return func(c *config) {
		c.discoveryTarget = addr
	}
}

// WithDiscoveryTimeout sets how long to wait for a server reply.
func WithDiscoveryTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.discoveryTimeout = timeout
	}
}

// WithReadBufferSize sets the requested size of the kernel receive buffer of
// the stream socket.
func WithReadBufferSize(size int) Option {
	return func(c *config) {
		c.readBufferSize = size
	}
}

// WithPacketSize sets the expected size of the stream packets, used to check
// the kernel receive buffer can hold a burst of packets. Larger packets
// received later trigger a new check.
func WithPacketSize(size int) Option {
	return func(c *config) {
		c.packetSize = size
	}
}

// WithPrometheusListenAddr sets the address to offer Prometheus metrics
// endpoint collection.
func WithPrometheusListenAddr(addr string) Option {
	return func(c *config) {
		c.promAddr = addr
	}
}

// WithReportStatsInterval sets the interval to log stats. If set to zero,
// reporting is disabled.
func WithReportStatsInterval(interval time.Duration) Option {
	return func(c *config) {
		c.statsReportInterval = interval
	}
}

// Receiver receives the packets of a stream.
type Receiver struct {
	cfg config
	log slog.Logger

	streamConn *net.UDPConn
	discConn   *net.UDPConn
	stats      *stats

	kernelReadBuf int
	warnedPktSize atomic.Int64

	serverMtx sync.Mutex
	server    netip.AddrPort
}

// New binds the sockets of a new receiver.
func New(opts ...Option) (*Receiver, error) {
	cfg := fillConfig(opts...)
	ctx := context.Background()

	streamConn := cfg.streamConn
	if streamConn == nil {
		var err error
		streamConn, err = netutils.ListenUDP(ctx, cfg.bindAddr, false)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to bind stream socket %s: %v",
				discovery.ErrNetwork, cfg.bindAddr, err)
		}
	}

	discConn, err := netutils.ListenUDP(ctx, cfg.discoveryBindAddr, false)
	if err != nil {
		streamConn.Close()
		return nil, fmt.Errorf("%w: unable to bind discovery socket %s: %v",
			discovery.ErrNetwork, cfg.discoveryBindAddr, err)
	}

	r := &Receiver{
		cfg:        cfg,
		log:        cfg.log,
		streamConn: streamConn,
		discConn:   discConn,
		stats:      newStats(),
	}
	r.checkReadBuffer()
	return r, nil
}

// checkReadBuffer attempts to increase the kernel receive buffer and warns
// when the resulting buffer can not hold a few packets.
func (r *Receiver) checkReadBuffer() {
	if r.cfg.readBufferSize > 0 {
		if err := r.streamConn.SetReadBuffer(r.cfg.readBufferSize); err != nil {
			r.log.Debugf("Unable to set read buffer size: %v", err)
		}
	}

	size, err := netutils.ReadBufferSize(r.streamConn)
	if err != nil {
		r.log.Debugf("Unable to query read buffer size: %v", err)
		return
	}
	r.stats.readBufferSize.Set(float64(size))
	r.kernelReadBuf = size
	r.checkReadBufferFor(r.cfg.packetSize)
}

// checkReadBufferFor warns when the kernel receive buffer can not hold a
// full queue of packets of the given size.
func (r *Receiver) checkReadBufferFor(pktSize int) {
	if r.kernelReadBuf <= 0 || pktSize <= 0 {
		return
	}
	minSize := audio.ChunkQueueSize * pktSize
	if r.kernelReadBuf < minSize {
		r.log.Warnf("Kernel read buffer of the stream socket (%s) is "+
			"smaller than %s needed for packets of %s. Packets may be "+
			"dropped during bursts", metrics.HBytes(uint64(r.kernelReadBuf)),
			metrics.HBytes(uint64(minSize)), metrics.HBytes(uint64(pktSize)))
		r.warnedPktSize.Store(int64(pktSize))
		return
	}
	r.log.Debugf("Kernel read buffer size: %s", metrics.HBytes(uint64(r.kernelReadBuf)))
}

// Close closes the sockets of the receiver.
func (r *Receiver) Close() error {
	return errors.Join(r.discConn.Close(), r.streamConn.Close())
}

// LocalAddr returns the address of the socket packets are received on.
func (r *Receiver) LocalAddr() netip.AddrPort {
	return netutils.LocalAddrPort(r.streamConn)
}

// DiscoverServer sends a discovery request and records the address of the
// first server that replies.
func (r *Receiver) DiscoverServer(ctx context.Context) (netip.AddrPort, error) {
	r.log.Infof("Looking for a server at %s", r.cfg.discoveryTarget)
	server, err := discovery.Discover(ctx, r.discConn, r.cfg.discoveryTarget,
		r.cfg.discoveryTimeout, r.cfg.discLog)
	if err != nil {
		return netip.AddrPort{}, err
	}

	r.serverMtx.Lock()
	r.server = server
	r.serverMtx.Unlock()
	r.log.Infof("Found server at %s", server)
	return server, nil
}

// ServerAddr returns the address of the server found by DiscoverServer.
func (r *Receiver) ServerAddr() (netip.AddrPort, error) {
	r.serverMtx.Lock()
	defer r.serverMtx.Unlock()
	if !r.server.IsValid() {
		return netip.AddrPort{}, discovery.ErrNoServerFound
	}
	return r.server, nil
}

// Stats returns the cumulative stats of the receiver.
func (r *Receiver) Stats() Stats {
	return Stats{
		Packets:        r.stats.totalPkts.Load(),
		Bytes:          r.stats.totalBytes.Load(),
		ShortPackets:   r.stats.totalShort.Load(),
		TrailingBytes:  r.stats.totalTrailing.Load(),
		ChunksReceived: r.stats.totalDelivered.Load(),
	}
}

func (r *Receiver) trackPacket(n int) {
	r.stats.bytesRead.Add(float64(n))
	r.stats.bytesReadAtomic.Add(uint64(n))
	r.stats.totalBytes.Add(uint64(n))
	r.stats.pktsRead.Inc()
	r.stats.pktsReadAtomic.Add(1)
	r.stats.totalPkts.Add(1)
}

// Receive reads packets from the stream socket and sends their samples to
// sink, in arrival order, until the context is canceled or reading fails.
// Sending to sink blocks. The sink is not closed.
func (r *Receiver) Receive(ctx context.Context, sink chan<- audio.SampleChunk) error {
	afterDone := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		r.streamConn.SetReadDeadline(time.Now())
		close(afterDone)
	})
	defer func() {
		if !stop() {
			<-afterDone
		}
		r.streamConn.SetReadDeadline(time.Time{})
	}()

	buf := make([]byte, rpc.MaxDatagramSize)
	var lastArrival time.Time
	var lastInterval time.Duration
	largestPkt := r.cfg.packetSize
	for {
		n, from, err := r.streamConn.ReadFromUDPAddrPort(buf)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("%w: unable to read from stream socket: %v",
				discovery.ErrNetwork, err)
		}
		r.trackPacket(n)
		if n > largestPkt {
			largestPkt = n
			r.checkReadBufferFor(n)
		}

		now := time.Now()
		if !lastArrival.IsZero() {
			interval := now.Sub(lastArrival)
			if lastInterval > 0 {
				jitter := (interval - lastInterval).Abs()
				r.stats.arrivalJitter.Observe(float64(jitter.Microseconds()))
			}
			lastInterval = interval
		}
		lastArrival = now

		var pkt rpc.AudioPacket
		if err := pkt.Decode(buf[:n]); err != nil {
			r.log.Tracef("Dropping datagram from %s: %v", from, err)
			r.stats.shortPkts.Inc()
			r.stats.shortPktsAtomic.Add(1)
			r.stats.totalShort.Add(1)
			continue
		}
		if trailing := (n - rpc.AudioPacketHeaderSize) % 4; trailing > 0 {
			r.stats.trailingBytes.Add(float64(trailing))
			r.stats.trailingBytesAtomic.Add(uint64(trailing))
			r.stats.totalTrailing.Add(uint64(trailing))
		}

		r.stats.chunksAtomic.Add(1)
		r.stats.totalDelivered.Add(1)
		start := time.Now()
		select {
		case sink <- audio.SampleChunk(pkt.Samples):
		case <-ctx.Done():
			return ctx.Err()
		}
		r.stats.sinkStall.Observe(float64(time.Since(start).Microseconds()))
	}
}

// Run receives packets like Receive, while also reporting stats and serving
// the metrics endpoint. Sockets are closed when Run returns.
func (r *Receiver) Run(ctx context.Context, sink chan<- audio.SampleChunk) error {
	g, gctx := errgroup.WithContext(ctx)

	r.log.Infof("Receiving stream on %s", r.LocalAddr())

	g.Go(func() error { return r.Receive(gctx, sink) })
	g.Go(func() error { return r.runReportStatsLoop(gctx, r.cfg.statsReportInterval) })
	if r.cfg.promAddr != "" {
		g.Go(func() error {
			return metrics.RunPrometheusListener(gctx, r.cfg.promAddr, r.stats.reg, r.log)
		})
	}

	// Close the sockets once the receiver is done.
	g.Go(func() error {
		<-gctx.Done()
		r.log.Debugf("Group context done. Closing sockets")
		r.Close()
		return nil
	})

	err := g.Wait()
	stats := r.Stats()
	r.log.Infof("Received %d packets (%s), delivered %d chunks, dropped %d short packets",
		stats.Packets, metrics.HBytes(stats.Bytes), stats.ChunksReceived,
		stats.ShortPackets)
	return err
}
