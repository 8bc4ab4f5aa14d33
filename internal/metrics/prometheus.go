// Package metrics holds the metrics plumbing shared by broadcasters and
// listeners.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/companyzero/lanaudio/internal/netutils"
	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// NewRegistry returns a registry with the process and Go runtime collectors
// registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

// RunPrometheusListener runs the Prometheus metrics endpoint in the given
// address until the context is canceled.
func RunPrometheusListener(ctx context.Context, addr string, reg *prometheus.Registry, log slog.Logger) error {
	listeners, err := netutils.Listen(addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	promHandler := promhttp.InstrumentMetricHandler(
		reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)
	mux.Handle("/metrics", promHandler)
	hs := http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		log.Infof("Exposing prometheus metrics on %s", l.Addr())
		g.Go(func() error {
			err := hs.Serve(l)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return hs.Shutdown(ctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
