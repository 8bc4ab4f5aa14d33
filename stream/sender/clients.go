package sender

import (
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/companyzero/lanaudio/internal/logutil"
	"github.com/decred/slog"
)

// clientSet is the set of subscribed listener addresses. Clients are never
// removed.
//
// Readers get an immutable snapshot, so the send loop never holds the lock
// while writing to the network.
type clientSet struct {
	mtx      sync.Mutex
	set      map[netip.AddrPort]struct{}
	snapshot []netip.AddrPort
}

func newClientSet() *clientSet {
	return &clientSet{set: make(map[netip.AddrPort]struct{})}
}

// add adds the address to the set. It returns true if it was not yet a
// member.
func (cs *clientSet) add(addr netip.AddrPort) bool {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	if _, ok := cs.set[addr]; ok {
		return false
	}
	cs.set[addr] = struct{}{}

	// Copy on write. Previously returned snapshots are never modified.
	snapshot := make([]netip.AddrPort, len(cs.snapshot), len(cs.snapshot)+1)
	copy(snapshot, cs.snapshot)
	cs.snapshot = append(snapshot, addr)
	return true
}

// list returns the current snapshot. It MUST NOT be modified.
func (cs *clientSet) list() []netip.AddrPort {
	cs.mtx.Lock()
	res := cs.snapshot
	cs.mtx.Unlock()
	return res
}

func (cs *clientSet) len() int {
	cs.mtx.Lock()
	res := len(cs.set)
	cs.mtx.Unlock()
	return res
}

// clientDelivery tracks deliveries to a single client.
type clientDelivery struct {
	log     slog.Logger
	backoff logutil.BackoffLogger

	pkts  atomic.Uint64
	bytes atomic.Uint64

	// failing is the count of consecutive failures. totalFailures is the
	// count of all failures.
	failing       atomic.Uint64
	totalFailures atomic.Uint64
}

func newClientDelivery(addr netip.AddrPort, log slog.Logger) *clientDelivery {
	plog := logutil.PrefixLogger(log, addr.String())
	return &clientDelivery{
		log:     plog,
		backoff: logutil.NewBackoffLogger(plog),
	}
}

// sent records a successful delivery.
func (cd *clientDelivery) sent(n int) {
	cd.pkts.Add(1)
	cd.bytes.Add(uint64(n))
	if failures := cd.failing.Swap(0); failures > 0 {
		cd.backoff.Recovered(failures, "Delivery resumed")
	}
}

// failed records a failed delivery.
func (cd *clientDelivery) failed(err error) {
	cd.totalFailures.Add(1)
	cd.backoff.Failure(cd.failing.Add(1), "Unable to send packet: %v", err)
}

// ClientStats are the delivery stats of one subscribed listener.
type ClientStats struct {
	Addr     netip.AddrPort
	Packets  uint64
	Bytes    uint64
	Failures uint64
}

func sortClientStats(stats []ClientStats) {
	slices.SortFunc(stats, func(a, b ClientStats) int {
		return a.Addr.Compare(b.Addr)
	})
}
