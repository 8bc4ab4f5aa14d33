package receiver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/companyzero/lanaudio/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats are the cumulative stats of a receiver.
type Stats struct {
	Packets        uint64
	Bytes          uint64
	ShortPackets   uint64
	TrailingBytes  uint64
	ChunksReceived uint64
}

// stats holds receiver statistics.
type stats struct {
	reg *prometheus.Registry

	bytesRead      prometheus.Counter
	pktsRead       prometheus.Counter
	shortPkts      prometheus.Counter
	trailingBytes  prometheus.Counter
	sinkStall      prometheus.Histogram
	arrivalJitter  prometheus.Histogram
	readBufferSize prometheus.Gauge

	bytesReadAtomic     atomic.Uint64
	pktsReadAtomic      atomic.Uint64
	shortPktsAtomic     atomic.Uint64
	trailingBytesAtomic atomic.Uint64
	chunksAtomic        atomic.Uint64

	// The totals are never reset.
	totalBytes     atomic.Uint64
	totalPkts      atomic.Uint64
	totalShort     atomic.Uint64
	totalTrailing  atomic.Uint64
	totalDelivered atomic.Uint64
}

func newStats() *stats {
	reg := metrics.NewRegistry()
	f := promauto.With(reg)
	return &stats{
		reg: reg,

		bytesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_receiver_bytes_read",
			Help: "Total bytes read",
		}),
		pktsRead: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_receiver_packets_read",
			Help: "Total number of packets read",
		}),
		shortPkts: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_receiver_short_packets",
			Help: "Total number of datagrams dropped for being shorter than a packet header",
		}),
		trailingBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_receiver_trailing_bytes",
			Help: "Total number of bytes ignored for not forming a full sample",
		}),
		sinkStall: f.NewHistogram(prometheus.HistogramOpts{
			Name: "lanaudio_receiver_sink_stall_microseconds",
			Help: "Histogram of the time spent waiting for the sink to accept a chunk",
			Buckets: []float64{
				1, 5, 50, 100, 250, 500, 750, 1_000, 2_500, 5_000, 10_000, 20_000, 50_000, 100_000,
			},
		}),
		arrivalJitter: f.NewHistogram(prometheus.HistogramOpts{
			Name: "lanaudio_receiver_arrival_jitter_microseconds",
			Help: "Histogram of the difference between consecutive packet inter-arrival times",
			Buckets: []float64{
				10, 50, 100, 250, 500, 1_000, 2_500, 5_000, 10_000, 20_000, 50_000, 100_000,
			},
		}),
		readBufferSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "lanaudio_receiver_kernel_read_buffer_bytes",
			Help: "Size of the kernel receive buffer of the stream socket",
		}),
	}
}

// runReportStatsLoop runs a loop to report basic stats.
func (r *Receiver) runReportStatsLoop(ctx context.Context, reportInterval time.Duration) error {
	if reportInterval <= 0 {
		r.log.Infof("Logging of stats is disabled")
		return nil
	}

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	var tickTime, lastTick time.Time
	tickTime = time.Now()

	r.log.Debugf("Running report stats loop with interval %s", reportInterval)

	var bytesRead, pktsRead, shortPkts, trailing, chunks uint64
	for {
		lastTick = tickTime

		select {
		case <-ctx.Done():
			return ctx.Err()
		case tickTime = <-ticker.C:
		}

		bytesRead = r.stats.bytesReadAtomic.Swap(0)
		pktsRead = r.stats.pktsReadAtomic.Swap(0)
		shortPkts = r.stats.shortPktsAtomic.Swap(0)
		trailing = r.stats.trailingBytesAtomic.Swap(0)
		chunks = r.stats.chunksAtomic.Swap(0)

		if bytesRead|pktsRead|shortPkts|trailing|chunks == 0 {
			// Skip if there are no stats.
			continue
		}

		dt := tickTime.Sub(lastTick)
		if dt == 0 {
			continue
		}

		dts := float64(dt.Milliseconds()) / 1000
		rbr := float64(bytesRead) / dts
		rpr := float64(pktsRead) / dts
		ccr := float64(chunks) / dts

		r.log.Infof("Stats for the last %s - "+
			"IN: %8s (%7sB/sec) %8s Pkt (%7s/sec) ; "+
			"OUT: %8s Chunks (%7s/sec) ; "+
			"Dropped: %s short, %s trailing bytes",
			dt.Round(time.Millisecond),
			metrics.HBytes(bytesRead), metrics.HRate(rbr),
			metrics.HCount(pktsRead), metrics.HRate(rpr),
			metrics.HCount(chunks), metrics.HRate(ccr),
			metrics.HCount(shortPkts), metrics.HBytes(trailing),
		)
	}
}
