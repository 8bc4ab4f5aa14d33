package main

import (
	"context"

	"github.com/companyzero/lanaudio/internal/audio"
	"github.com/companyzero/lanaudio/stream/receiver"
)

func runListen(ctx context.Context, cfg *settings, lb *logBackend) error {
	log := lb.logger(subsysMain)

	src, err := audio.NewSource(cfg.Capture, lb.logger(subsysPlayback))
	if err != nil {
		return err
	}
	defer src.Free()

	r, err := receiver.New(
		receiver.WithLogger(lb.logger(subsysReceiver)),
		receiver.WithDiscoveryLogger(lb.logger(subsysDiscovery)),
		receiver.WithBindAddr(cfg.BindAddr),
		receiver.WithDiscoveryTarget(cfg.BroadcastAddr),
		receiver.WithDiscoveryTimeout(cfg.DiscoveryTimeout),
		receiver.WithPacketSize(cfg.Capture.PacketSize()),
		receiver.WithPrometheusListenAddr(cfg.ListenPrometheus),
		receiver.WithReportStatsInterval(cfg.StatsInterval),
	)
	if err != nil {
		return err
	}

	if _, err := r.DiscoverServer(ctx); err != nil {
		r.Close()
		return err
	}

	sink, ps, err := src.OpenPlayback(ctx)
	if err != nil {
		r.Close()
		return err
	}

	log.Infof("Playing stream. Press Ctrl+C to stop")
	runErr := r.Run(ctx, sink)

	// Nothing else is sent to the sink, so it renders silence until
	// stopped.
	close(sink)
	ps.Stop()
	<-ps.Done()

	stats := ps.Stats()
	log.Debugf("Playback stats: %d callbacks, %d chunks, %d underruns, "+
		"%d discarded samples", stats.Callbacks, stats.Chunks,
		stats.Underruns, stats.DiscardedSamples)
	if err := ps.Err(); err != nil {
		return err
	}
	return runErr
}

func runLsdev(cfg *settings, lb *logBackend) error {
	src, err := audio.NewSource(cfg.Capture, lb.logger(subsysCapture))
	if err != nil {
		return err
	}
	defer src.Free()

	devices, err := src.ListDevices()
	if err != nil {
		return err
	}
	writeDeviceList(lb.stdOut, src, devices)
	return nil
}
