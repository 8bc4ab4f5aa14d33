package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/companyzero/lanaudio/rpc"
	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// SubscribeFunc is called with the address of every requester that was sent
// a server announcement.
type SubscribeFunc func(requester netip.AddrPort)

type config struct {
	log              slog.Logger
	broadcastAddr    netip.AddrPort
	announceInterval time.Duration
}

// Option is a responder configuration option.
type Option func(c *config)

// WithLogger defines the logger to use.
func WithLogger(log slog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithBroadcastAddr defines the address where periodic announcements are sent.
func WithBroadcastAddr(addr netip.AddrPort) Option {
	return func(c *config) {
		c.broadcastAddr = addr
	}
}

// WithAnnounceInterval defines the interval between periodic announcements.
// A zero or negative interval disables them.
func WithAnnounceInterval(interval time.Duration) Option {
	return func(c *config) {
		c.announceInterval = interval
	}
}

// Responder answers discovery requests received on a socket bound to the
// discovery port and periodically broadcasts the server's announcement.
type Responder struct {
	conn      *net.UDPConn
	subscribe SubscribeFunc
	announce  []byte
	cfg       config
	log       slog.Logger

	requests      atomic.Uint64
	announcements atomic.Uint64
}

// NewResponder creates a responder that announces streamPort on conn. The
// subscribe func is called for every requester that was replied to.
func NewResponder(conn *net.UDPConn, streamPort uint16, subscribe SubscribeFunc,
	opts ...Option) *Responder {

	cfg := config{
		log:              slog.Disabled,
		broadcastAddr:    DefaultBroadcastAddr,
		announceInterval: rpc.DiscoveryInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Responder{
		conn:      conn,
		subscribe: subscribe,
		announce:  rpc.ServerAnnouncement(streamPort),
		cfg:       cfg,
		log:       cfg.log,
	}
}

// Requests returns the number of discovery requests replied to.
func (r *Responder) Requests() uint64 {
	return r.requests.Load()
}

// Announcements returns the number of periodic announcements sent.
func (r *Responder) Announcements() uint64 {
	return r.announcements.Load()
}

func (r *Responder) serve(ctx context.Context) error {
	stop := cancelReads(ctx, r.conn)
	defer stop()

	buf := make([]byte, readBufferSize)
	for {
		n, from, err := r.conn.ReadFromUDPAddrPort(buf)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()

		case errors.Is(err, net.ErrClosed), errors.Is(err, os.ErrDeadlineExceeded):
			return fmt.Errorf("%w: discovery socket unusable: %v", ErrNetwork, err)

		case err != nil:
			r.log.Debugf("Ignoring discovery read error: %v", err)
			continue
		}

		if !rpc.IsDiscoverRequest(buf[:n]) {
			r.log.Tracef("Ignoring %d byte datagram from %s", n, from)
			continue
		}

		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
		if _, err := r.conn.WriteToUDPAddrPort(r.announce, from); err != nil {
			r.log.Warnf("Unable to reply to discovery request from %s: %v",
				from, err)
			continue
		}
		r.requests.Add(1)
		r.log.Debugf("Replied to discovery request from %s", from)
		if r.subscribe != nil {
			r.subscribe(from)
		}
	}
}

func (r *Responder) runAnnounceLoop(ctx context.Context) error {
	if r.cfg.announceInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.cfg.announceInterval)
	defer ticker.Stop()

	// Only the first failure of a sequence is logged as a warning.
	var failing bool
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}

		_, err := r.conn.WriteToUDPAddrPort(r.announce, r.cfg.broadcastAddr)
		switch {
		case errors.Is(err, net.ErrClosed):
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		case err != nil && !failing:
			r.log.Warnf("Unable to send announcement to %s: %v",
				r.cfg.broadcastAddr, err)
			failing = true
		case err != nil:
			r.log.Debugf("Unable to send announcement to %s: %v",
				r.cfg.broadcastAddr, err)
		default:
			if failing {
				r.log.Infof("Announcements to %s resumed", r.cfg.broadcastAddr)
			}
			failing = false
			r.announcements.Add(1)
		}
	}
}

// Run serves discovery requests and sends periodic announcements until the
// context is canceled. The socket is not closed when Run returns.
func (r *Responder) Run(ctx context.Context) error {
	r.log.Infof("Answering discovery requests on %s (announcing to %s every %s)",
		r.conn.LocalAddr(), r.cfg.broadcastAddr, r.cfg.announceInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.serve(gctx) })
	g.Go(func() error { return r.runAnnounceLoop(gctx) })
	return g.Wait()
}
