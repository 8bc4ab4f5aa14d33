package sender

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/companyzero/lanaudio/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// stats holds sender statistics.
type stats struct {
	reg *prometheus.Registry

	chunksRead   prometheus.Counter
	bytesWritten prometheus.Counter
	pktsWritten  prometheus.Counter
	sendFails    prometheus.Counter
	clients      prometheus.Gauge
	discoveries  prometheus.Counter
	fanoutDelay  prometheus.Histogram

	chunksReadAtomic   atomic.Uint64
	bytesWrittenAtomic atomic.Uint64
	pktsWrittenAtomic  atomic.Uint64
	sendFailsAtomic    atomic.Uint64
}

func newStats() *stats {
	reg := metrics.NewRegistry()
	f := promauto.With(reg)
	return &stats{
		reg: reg,

		chunksRead: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_sender_chunks_read",
			Help: "Total number of captured chunks read",
		}),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_sender_bytes_written",
			Help: "Total bytes written",
		}),
		pktsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_sender_packets_written",
			Help: "Total number of packets written",
		}),
		sendFails: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_sender_send_failures",
			Help: "Total number of packets that failed to be sent to a client",
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "lanaudio_sender_clients",
			Help: "Number of subscribed clients",
		}),
		discoveries: f.NewCounter(prometheus.CounterOpts{
			Name: "lanaudio_sender_discovery_requests",
			Help: "Total number of discovery requests replied to",
		}),
		fanoutDelay: f.NewHistogram(prometheus.HistogramOpts{
			Name: "lanaudio_sender_fanout_delay_microseconds",
			Help: "Histogram of the time taken to send a chunk to every client",
			Buckets: []float64{
				1, 5, 50, 100, 250, 500, 750, 1_000, 2_500, 5_000, 10_000, 20_000,
			},
		}),
	}
}

// runReportStatsLoop runs a loop to report basic stats.
func (s *Sender) runReportStatsLoop(ctx context.Context, reportInterval time.Duration) error {
	if reportInterval <= 0 {
		s.log.Infof("Logging of stats is disabled")
		return nil
	}

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	var tickTime, lastTick time.Time
	tickTime = time.Now()

	s.log.Debugf("Running report stats loop with interval %s", reportInterval)

	var chunksRead, bytesWritten, pktsWritten, sendFails uint64
	for {
		lastTick = tickTime

		select {
		case <-ctx.Done():
			return ctx.Err()
		case tickTime = <-ticker.C:
		}

		chunksRead = s.stats.chunksReadAtomic.Swap(0)
		bytesWritten = s.stats.bytesWrittenAtomic.Swap(0)
		pktsWritten = s.stats.pktsWrittenAtomic.Swap(0)
		sendFails = s.stats.sendFailsAtomic.Swap(0)

		if chunksRead|bytesWritten|pktsWritten|sendFails == 0 {
			// Skip if there are no stats.
			continue
		}

		dt := tickTime.Sub(lastTick)
		if dt == 0 {
			continue
		}

		dts := float64(dt.Milliseconds()) / 1000
		crr := float64(chunksRead) / dts
		wbr := float64(bytesWritten) / dts
		wpr := float64(pktsWritten) / dts

		s.log.Infof("Stats for the last %s - "+
			"IN: %8s Chunks (%7s/sec) ; "+
			"OUT: %8s (%7sB/sec) %8s Pkt (%7s/sec) ; "+
			"%d clients, %s failures",
			dt.Round(time.Millisecond),
			metrics.HCount(chunksRead), metrics.HRate(crr),
			metrics.HBytes(bytesWritten), metrics.HRate(wbr),
			metrics.HCount(pktsWritten), metrics.HRate(wpr),
			s.clients.len(), metrics.HCount(sendFails),
		)
	}
}
