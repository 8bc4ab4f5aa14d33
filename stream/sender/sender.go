// Package sender implements the broadcaster side of the stream: it answers
// discovery requests and fans out every captured chunk to all subscribed
// listeners.
package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/companyzero/lanaudio/internal/audio"
	"github.com/companyzero/lanaudio/internal/metrics"
	"github.com/companyzero/lanaudio/internal/netutils"
	"github.com/companyzero/lanaudio/rpc"
	"github.com/companyzero/lanaudio/stream/discovery"
	"github.com/decred/slog"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// config determines a sender config.
type config struct {
	log           slog.Logger
	discLog       slog.Logger
	bindAddr      string
	discoveryAddr string
	broadcastAddr netip.AddrPort
	promAddr      string

	// clientPort is the port of the stream socket of listeners. If zero,
	// listeners are assumed to bind the same port as the sender.
	clientPort uint16

	announceInterval    time.Duration
	statsReportInterval time.Duration
}

// fillConfig fills a new config with the default config values, then applies
// all specified options.
func fillConfig(opts ...Option) config {
	cfg := config{
		log:                 slog.Disabled,
		bindAddr:            net.JoinHostPort("0.0.0.0", strconv.Itoa(rpc.DefaultStreamPort)),
		discoveryAddr:       net.JoinHostPort("0.0.0.0", strconv.Itoa(rpc.DiscoveryPort)),
		broadcastAddr:       discovery.DefaultBroadcastAddr,
		announceInterval:    rpc.DiscoveryInterval,
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

// Option is a functional sender config option.
type Option func(c *config)

// WithLogger sets up the sender to use the logger.
func WithLogger(l slog.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithDiscoveryLogger sets the logger of the discovery responder. It defaults
// to the sender's logger.
func WithDiscoveryLogger(l slog.Logger) Option {
	return func(c *config) {
		c.discLog = l
	}
}

// WithBindAddr sets the address of the socket used to send packets.
func WithBindAddr(addr string) Option {
	return func(c *config) {
		c.bindAddr = addr
	}
}

// WithDiscoveryAddr sets the address of the socket that answers discovery
// requests.
func WithDiscoveryAddr(addr string) Option {
	return func(c *config) {
		c.discoveryAddr = addr
	}
}

// WithBroadcastAddr sets the address where periodic announcements are sent.
func WithBroadcastAddr(addr netip.AddrPort) Option {
	return func(c *config) {
		c.broadcastAddr = addr
	}
}

// WithAnnounceInterval sets the interval between periodic announcements. If
// set to zero, announcements are disabled.
func WithAnnounceInterval(interval time.Duration) Option {
	return func(c *config) {
		c.announceInterval = interval
	}
}

// WithClientPort sets the port packets are sent to on subscribed listeners.
func WithClientPort(port uint16) Option {
	return func(c *config) {
		c.clientPort = port
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

// errCaptureEnded is returned by the send loop once the input channel is
// closed.
var errCaptureEnded = errors.New("capture ended")

// Sender streams chunks to every listener that sent a discovery request.
type Sender struct {
	cfg config
	log slog.Logger

	streamConn *net.UDPConn
	discConn   *net.UDPConn
	responder  *discovery.Responder
	clientPort uint16

	clients    *clientSet
	deliveries *xsync.MapOf[netip.AddrPort, *clientDelivery]
	stats      *stats
}

// New binds the sockets of a new sender.
func New(opts ...Option) (*Sender, error) {
	cfg := fillConfig(opts...)
	ctx := context.Background()

	streamConn, err := netutils.ListenUDP(ctx, cfg.bindAddr, false)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to bind stream socket %s: %v",
			discovery.ErrNetwork, cfg.bindAddr, err)
	}

	discConn, err := netutils.ListenUDP(ctx, cfg.discoveryAddr, true)
	if err != nil {
		streamConn.Close()
		return nil, fmt.Errorf("%w: unable to bind discovery socket %s: %v",
			discovery.ErrNetwork, cfg.discoveryAddr, err)
	}

	streamAddr := netutils.LocalAddrPort(streamConn)
	s := &Sender{
		cfg:        cfg,
		log:        cfg.log,
		streamConn: streamConn,
		discConn:   discConn,
		clientPort: cfg.clientPort,
		clients:    newClientSet(),
		deliveries: xsync.NewMapOf[netip.AddrPort, *clientDelivery](),
		stats:      newStats(),
	}
	if s.clientPort == 0 {
		s.clientPort = streamAddr.Port()
	}

	if err := netutils.SetDSCP(streamConn, netutils.DSCPExpeditedForwarding); err != nil {
		s.log.Debugf("Unable to set DSCP on stream socket: %v", err)
	}

	s.responder = discovery.NewResponder(discConn, streamAddr.Port(), s.subscribe,
		discovery.WithLogger(cfg.discLog),
		discovery.WithBroadcastAddr(cfg.broadcastAddr),
		discovery.WithAnnounceInterval(cfg.announceInterval))
	return s, nil
}

// subscribe adds the stream socket of the requester to the list of clients.
func (s *Sender) subscribe(requester netip.AddrPort) {
	s.stats.discoveries.Inc()
	client := netip.AddrPortFrom(requester.Addr(), s.clientPort)
	if !s.clients.add(client) {
		s.log.Debugf("Client %s already subscribed", client)
		return
	}
	s.deliveries.LoadOrCompute(client, func() *clientDelivery {
		return newClientDelivery(client, s.log)
	})
	s.stats.clients.Set(float64(s.clients.len()))
	s.log.Infof("New client %s (requested from %s)", client, requester)
}

// Close closes the sockets of a sender that was never run.
func (s *Sender) Close() error {
	return errors.Join(s.discConn.Close(), s.streamConn.Close())
}

// StreamAddr returns the address of the socket packets are sent from.
func (s *Sender) StreamAddr() netip.AddrPort {
	return netutils.LocalAddrPort(s.streamConn)
}

// DiscoveryAddr returns the address of the socket that answers discovery
// requests.
func (s *Sender) DiscoveryAddr() netip.AddrPort {
	return netutils.LocalAddrPort(s.discConn)
}

// Clients returns the addresses of the subscribed listeners, in subscription
// order.
func (s *Sender) Clients() []netip.AddrPort {
	list := s.clients.list()
	res := make([]netip.AddrPort, len(list))
	copy(res, list)
	return res
}

// ClientCount returns the number of subscribed listeners.
func (s *Sender) ClientCount() int {
	return s.clients.len()
}

// ClientStats returns the delivery stats of every subscribed listener,
// sorted by address.
func (s *Sender) ClientStats() []ClientStats {
	var res []ClientStats
	s.deliveries.Range(func(addr netip.AddrPort, cd *clientDelivery) bool {
		res = append(res, ClientStats{
			Addr:     addr,
			Packets:  cd.pkts.Load(),
			Bytes:    cd.bytes.Load(),
			Failures: cd.totalFailures.Load(),
		})
		return true
	})
	sortClientStats(res)
	return res
}

// sendChunk sends one chunk to every client. Only errors that make the
// stream socket unusable are returned.
func (s *Sender) sendChunk(buf []byte) error {
	start := time.Now()
	for _, client := range s.clients.list() {
		cd, _ := s.deliveries.LoadOrCompute(client, func() *clientDelivery {
			return newClientDelivery(client, s.log)
		})

		n, err := s.streamConn.WriteToUDPAddrPort(buf, client)
		if errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("%w: stream socket closed: %v",
				discovery.ErrNetwork, err)
		}
		if err != nil {
			cd.failed(err)
			s.stats.sendFails.Inc()
			s.stats.sendFailsAtomic.Add(1)
			continue
		}
		cd.sent(n)
		s.stats.pktsWritten.Inc()
		s.stats.pktsWrittenAtomic.Add(1)
		s.stats.bytesWritten.Add(float64(n))
		s.stats.bytesWrittenAtomic.Add(uint64(n))
	}
	s.stats.fanoutDelay.Observe(float64(time.Since(start).Microseconds()))
	return nil
}

// runSendLoop encodes every chunk read from the channel and sends it to all
// clients.
func (s *Sender) runSendLoop(ctx context.Context, chunks <-chan audio.SampleChunk) error {
	var pkt rpc.AudioPacket
	var buf []byte
	var warnedOversize bool
	for {
		var chunk audio.SampleChunk
		var ok bool
		select {
		case chunk, ok = <-chunks:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			return errCaptureEnded
		}
		s.stats.chunksRead.Inc()
		s.stats.chunksReadAtomic.Add(1)

		pkt.Timestamp = rpc.PacketTimestamp(time.Now())
		pkt.Samples = chunk
		buf = pkt.AppendEncoded(buf[:0])

		if len(buf) > rpc.MaxSafeDatagramSize && !warnedOversize {
			s.log.Warnf("Packets of %d bytes exceed the safe datagram "+
				"size of %d bytes and will be fragmented", len(buf),
				rpc.MaxSafeDatagramSize)
			warnedOversize = true
		}

		if err := s.sendChunk(buf); err != nil {
			return err
		}
	}
}

// Run answers discovery requests and streams the chunks read from the
// channel until the channel is closed, the context is canceled or the
// stream socket fails. Sockets are closed when Run returns, so Run may only
// be called once.
//
// Closing the channel is a graceful shutdown and Run returns nil.
func (s *Sender) Run(ctx context.Context, chunks <-chan audio.SampleChunk) error {
	g, gctx := errgroup.WithContext(ctx)

	s.log.Infof("Streaming from %s, discovery on %s", s.StreamAddr(), s.DiscoveryAddr())

	g.Go(func() error { return s.responder.Run(gctx) })
	g.Go(func() error { return s.runSendLoop(gctx, chunks) })
	g.Go(func() error { return s.runReportStatsLoop(gctx, s.cfg.statsReportInterval) })
	if s.cfg.promAddr != "" {
		g.Go(func() error {
			return metrics.RunPrometheusListener(gctx, s.cfg.promAddr, s.stats.reg, s.log)
		})
	}

	// Close the sockets once the sender is done.
	g.Go(func() error {
		<-gctx.Done()
		s.log.Debugf("Group context done. Closing sockets")
		s.discConn.Close()
		s.streamConn.Close()
		return nil
	})

	err := g.Wait()
	for _, cs := range s.ClientStats() {
		s.log.Debugf("Client %s: %d packets (%s), %d failures", cs.Addr,
			cs.Packets, metrics.HBytes(cs.Bytes), cs.Failures)
	}
	if errors.Is(err, errCaptureEnded) {
		s.log.Infof("Capture ended. Stopping stream")
		return nil
	}
	return err
}
