package main

import (
	"context"
	"errors"
	"os"

	"github.com/companyzero/lanaudio/internal/audio"
	"github.com/companyzero/lanaudio/internal/metrics"
	"github.com/companyzero/lanaudio/rpc"
	"github.com/companyzero/lanaudio/stream/sender"
	"github.com/decred/slog"
)

// chooseDevice determines which device to capture from.
func chooseDevice(cfg *settings, src *audio.Source, log slog.Logger) (audio.DeviceSelector, error) {
	switch {
	case cfg.Device != "":
		return parseDeviceSelector(cfg.Device)
	case cfg.UseDefault:
		return audio.DefaultDeviceSelector, nil
	case !stdinIsTerminal():
		log.Infof("Not running on a terminal. Capturing from the default device")
		return audio.DefaultDeviceSelector, nil
	}

	devices, err := src.ListDevices()
	if err != nil {
		return 0, err
	}
	writeDeviceList(os.Stdout, src, devices)
	return pickDevice(src)
}

func runBroadcast(ctx context.Context, cfg *settings, lb *logBackend) error {
	log := lb.logger(subsysMain)

	src, err := audio.NewSource(cfg.Capture, lb.logger(subsysCapture))
	if err != nil {
		return err
	}
	defer src.Free()

	sel, err := chooseDevice(cfg, src, log)
	if err != nil {
		return err
	}

	if size := cfg.Capture.PacketSize(); size > rpc.MaxSafeDatagramSize {
		log.Warnf("Packets of %s exceed the %s that fit a single ethernet "+
			"frame. Reduce [capture] framechunksize to avoid IP fragmentation",
			metrics.HBytes(uint64(size)), metrics.HBytes(rpc.MaxSafeDatagramSize))
	}

	s, err := sender.New(
		sender.WithLogger(lb.logger(subsysSender)),
		sender.WithDiscoveryLogger(lb.logger(subsysDiscovery)),
		sender.WithBindAddr(cfg.BindAddr),
		sender.WithDiscoveryAddr(cfg.discoveryBindAddr()),
		sender.WithBroadcastAddr(cfg.BroadcastAddr),
		sender.WithAnnounceInterval(cfg.AnnounceInterval),
		sender.WithClientPort(cfg.ClientPort),
		sender.WithPrometheusListenAddr(cfg.ListenPrometheus),
		sender.WithReportStatsInterval(cfg.StatsInterval),
	)
	if err != nil {
		return err
	}

	chunks, cs, err := src.OpenCapture(ctx, sel)
	if err != nil {
		s.Close()
		return err
	}

	log.Infof("Broadcasting. Press Ctrl+C to stop")
	runErr := s.Run(ctx, chunks)
	cs.Stop()
	<-cs.Done()

	stats := cs.Stats()
	log.Debugf("Capture stats: %d callbacks, %d chunks, %d samples",
		stats.Callbacks, stats.Chunks, stats.Samples)
	return errors.Join(runErr, cs.Err())
}
